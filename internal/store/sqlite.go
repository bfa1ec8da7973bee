package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Schema version. Bump when the settings layout changes; an outdated
// database is dropped and recreated since session state is best-effort.
const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// Setting keys carried over from the browser-side storage layout so an
// exported database stays recognizable.
const (
	keyModelImage = "user-photo-base64"
	keyAPIKey     = "gemini-api-key"
)

// SQLite is the Store implementation backed by a local sqlite file.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// Open opens (or creates) the session database at path and ensures the
// schema is at the current version. An outdated schema is dropped and
// recreated.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}

	ver, err := currentSchemaVersion(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("check schema version: %w", err)
	}
	if ver != 0 && ver != schemaVersion {
		log.Warn().Int("found", ver).Int("want", schemaVersion).
			Msg("session db schema outdated, recreating")
		for _, stmt := range []string{
			"DROP TABLE IF EXISTS settings",
			"DROP TABLE IF EXISTS schema_meta",
		} {
			if _, err := db.Exec(stmt); err != nil {
				db.Close()
				return nil, fmt.Errorf("drop outdated schema: %w", err)
			}
		}
		ver = 0
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if ver == 0 {
		if _, err := db.Exec("INSERT INTO schema_meta (version) VALUES (?)", schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("record schema version: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

func currentSchemaVersion(db *sql.DB) (int, error) {
	var name string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_meta'
	`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var ver int
	err = db.QueryRow("SELECT version FROM schema_meta LIMIT 1").Scan(&ver)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return ver, err
}

func (s *SQLite) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLite) put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) ModelImage(ctx context.Context) (string, error) {
	return s.get(ctx, keyModelImage)
}

func (s *SQLite) SaveModelImage(ctx context.Context, dataURI string) error {
	return s.put(ctx, keyModelImage, dataURI)
}

func (s *SQLite) ClearModelImage(ctx context.Context) error {
	return s.delete(ctx, keyModelImage)
}

func (s *SQLite) APIKey(ctx context.Context) (string, error) {
	return s.get(ctx, keyAPIKey)
}

func (s *SQLite) SaveAPIKey(ctx context.Context, key string) error {
	return s.put(ctx, keyAPIKey, key)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
