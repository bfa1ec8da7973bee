package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAbsentKeysReadEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	img, err := s.ModelImage(ctx)
	if err != nil {
		t.Fatalf("ModelImage: %v", err)
	}
	if img != "" {
		t.Errorf("fresh store model image = %q, want empty", img)
	}

	key, err := s.APIKey(ctx)
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if key != "" {
		t.Errorf("fresh store api key = %q, want empty", key)
	}
}

func TestSaveAndReloadModelImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SaveModelImage(ctx, "data:image/jpeg;base64,AAAA"); err != nil {
		t.Fatalf("SaveModelImage: %v", err)
	}
	if err := s.SaveAPIKey(ctx, "test-key"); err != nil {
		t.Fatalf("SaveAPIKey: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen and check both keys survived.
	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	img, err := s.ModelImage(ctx)
	if err != nil {
		t.Fatalf("ModelImage: %v", err)
	}
	if img != "data:image/jpeg;base64,AAAA" {
		t.Errorf("reloaded model image = %q", img)
	}
	key, err := s.APIKey(ctx)
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if key != "test-key" {
		t.Errorf("reloaded api key = %q", key)
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveAPIKey(ctx, "first"); err != nil {
		t.Fatalf("SaveAPIKey: %v", err)
	}
	if err := s.SaveAPIKey(ctx, "second"); err != nil {
		t.Fatalf("SaveAPIKey: %v", err)
	}
	key, err := s.APIKey(ctx)
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if key != "second" {
		t.Errorf("api key = %q, want %q", key, "second")
	}
}

func TestClearModelImage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveModelImage(ctx, "data:image/jpeg;base64,BBBB"); err != nil {
		t.Fatalf("SaveModelImage: %v", err)
	}
	if err := s.SaveAPIKey(ctx, "keep-me"); err != nil {
		t.Fatalf("SaveAPIKey: %v", err)
	}
	if err := s.ClearModelImage(ctx); err != nil {
		t.Fatalf("ClearModelImage: %v", err)
	}

	img, err := s.ModelImage(ctx)
	if err != nil {
		t.Fatalf("ModelImage: %v", err)
	}
	if img != "" {
		t.Errorf("cleared model image = %q, want empty", img)
	}

	// Clearing the model image must not touch the credential.
	key, err := s.APIKey(ctx)
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if key != "keep-me" {
		t.Errorf("api key after clear = %q, want %q", key, "keep-me")
	}
}

func TestClearAbsentIsNoop(t *testing.T) {
	s := openTestStore(t)
	if err := s.ClearModelImage(context.Background()); err != nil {
		t.Fatalf("ClearModelImage on empty store: %v", err)
	}
}
