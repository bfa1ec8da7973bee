package share

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fpang/ai-virtual-tryon/internal/imageref"
)

func newTestClient(server *httptest.Server) *Client {
	c := NewClient("host-key")
	c.baseURL = server.URL
	c.httpClient = server.Client()
	return c
}

func TestUploadSendsPureBase64(t *testing.T) {
	var gotKey, gotImage string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotImage = r.FormValue("image")
		fmt.Fprint(w, `{"success":true,"data":{"url":"https://i.ibb.co/abc/look.jpg"}}`)
	}))
	defer server.Close()

	c := newTestClient(server)
	url, err := c.Upload(context.Background(), imageref.FromURL("data:image/jpeg;base64,QUJD"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://i.ibb.co/abc/look.jpg" {
		t.Errorf("uploaded url = %q", url)
	}
	if gotKey != "host-key" {
		t.Errorf("key query param = %q", gotKey)
	}
	// The form carries the bare base64, not the data URI prefix.
	if gotImage != "QUJD" {
		t.Errorf("image field = %q, want %q", gotImage, "QUJD")
	}
}

func TestUploadRejectsRemoteRef(t *testing.T) {
	c := NewClient("host-key")
	if _, err := c.Upload(context.Background(), imageref.FromURL("https://example.com/a.jpg")); err == nil {
		t.Fatal("expected error for non-inline image")
	}
}

func TestUploadRequiresKey(t *testing.T) {
	c := NewClient("")
	_, err := c.Upload(context.Background(), imageref.FromURL("data:image/jpeg;base64,QUJD"))
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("err = %v, want missing key error", err)
	}
}

func TestUploadSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"error":{"message":"Invalid API v1 key"}}`)
	}))
	defer server.Close()

	_, err := newTestClient(server).Upload(context.Background(), imageref.FromURL("data:image/jpeg;base64,QUJD"))
	if err == nil || !strings.Contains(err.Error(), "Invalid API v1 key") {
		t.Fatalf("err = %v, want API message surfaced", err)
	}
}

func TestUploadSurfacesHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server).Upload(context.Background(), imageref.FromURL("data:image/jpeg;base64,QUJD"))
	if err == nil || !strings.Contains(err.Error(), "status 502") {
		t.Fatalf("err = %v, want status error", err)
	}
}

func TestBuildShareURL(t *testing.T) {
	const hosted = "https://i.ibb.co/abc/look.jpg"

	tests := []struct {
		platform Platform
		want     []string
	}{
		{PlatformTwitter, []string{"https://twitter.com/intent/tweet?", "url=https%3A%2F%2Fi.ibb.co", "text=Check+out+my+new+look"}},
		{PlatformPinterest, []string{"https://pinterest.com/pin/create/button/?", "media=https%3A%2F%2Fi.ibb.co", "description="}},
		{PlatformFacebook, []string{"https://www.facebook.com/sharer/sharer.php?u=https%3A%2F%2Fi.ibb.co"}},
	}
	for _, tt := range tests {
		got, err := BuildShareURL(tt.platform, hosted)
		if err != nil {
			t.Fatalf("BuildShareURL(%s): %v", tt.platform, err)
		}
		for _, frag := range tt.want {
			if !strings.Contains(got, frag) {
				t.Errorf("%s url %q missing %q", tt.platform, got, frag)
			}
		}
	}
}

func TestBuildShareURLUnsupported(t *testing.T) {
	if _, err := BuildShareURL(Platform("myspace"), "https://example.com/x.jpg"); err == nil {
		t.Fatal("expected error for unsupported platform")
	}
}
