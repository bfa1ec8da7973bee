// Package share publishes a generated try-on image to social platforms.
// Social intent links require a public URL, so the image is first
// uploaded to an imgbb-compatible hosting service; the resulting URL is
// then embedded in a platform-specific share link the user opens in a
// browser.
package share

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-virtual-tryon/internal/imageref"
)

const (
	// defaultBaseURL is the imgbb upload API base URL.
	defaultBaseURL = "https://api.imgbb.com/1"

	// defaultTimeout is the HTTP client timeout for uploads.
	defaultTimeout = 30 * time.Second
)

// shareText is the caption attached to share links on platforms that
// accept one.
const shareText = "Check out my new look! Generated by the AI Virtual Try-On Chrome extension."

// Platform identifies a supported share destination.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformPinterest Platform = "pinterest"
	PlatformFacebook  Platform = "facebook"
)

// Uploader uploads an image to a public hosting service and returns its
// public URL.
type Uploader interface {
	Upload(ctx context.Context, img imageref.Ref) (string, error)
}

// Client is the imgbb upload client.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewClient creates an imgbb upload client. The API key is the hosting
// service credential, distinct from the generation backend key.
func NewClient(apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
	}
}

// uploadResponse is the imgbb API response envelope.
type uploadResponse struct {
	Success bool `json:"success"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Upload posts the image to the hosting service and returns its public
// URL. The image must be an inline data URI; the API takes the bare
// base64 payload without the data URI prefix.
func (c *Client) Upload(ctx context.Context, img imageref.Ref) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("image hosting API key is not configured")
	}
	payload, err := img.PureBase64()
	if err != nil {
		return "", fmt.Errorf("image must be inline to upload: %w", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("image", payload); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	endpoint := fmt.Sprintf("%s/upload?key=%s", c.baseURL, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("image upload service failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image upload service failed: status %d", resp.StatusCode)
	}

	var result uploadResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if !result.Success || result.Data.URL == "" {
		msg := "unknown error"
		if result.Error != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		return "", fmt.Errorf("image upload failed: %s", msg)
	}

	log.Debug().
		Str("url", result.Data.URL).
		Dur("duration", time.Since(start)).
		Msg("image uploaded for sharing")
	return result.Data.URL, nil
}

// BuildShareURL returns the platform share link for a hosted image URL.
func BuildShareURL(platform Platform, imageURL string) (string, error) {
	u := url.QueryEscape(imageURL)
	text := url.QueryEscape(shareText)
	switch platform {
	case PlatformTwitter:
		return fmt.Sprintf("https://twitter.com/intent/tweet?text=%s&url=%s", text, u), nil
	case PlatformPinterest:
		return fmt.Sprintf("https://pinterest.com/pin/create/button/?url=%s&media=%s&description=%s", u, u, text), nil
	case PlatformFacebook:
		return fmt.Sprintf("https://www.facebook.com/sharer/sharer.php?u=%s", u), nil
	default:
		return "", fmt.Errorf("unsupported share platform: %q", platform)
	}
}
