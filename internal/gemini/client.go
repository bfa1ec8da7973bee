// Package gemini provides a REST API client for the Gemini image model.
// This uses direct HTTP calls instead of the Go SDK because the SDK does
// not support image output, and every call in this pipeline is an
// image-output call.
//
// Four call shapes are exposed, one per workflow operation: full-body
// extension, category-conditioned apparel extraction, two-image virtual
// try-on, and creative regeneration. All of them funnel through a single
// generateContent request with an instruction plus one or two inlined
// base64 JPEG payloads.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-virtual-tryon/internal/assets"
	"github.com/fpang/ai-virtual-tryon/internal/imageref"
)

const (
	// defaultBaseURL is the Gemini REST API base URL.
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is the image-capable model used for every call shape.
	DefaultModel = "gemini-2.5-flash-image-preview"

	// mimeJPEG is the fixed payload encoding. ImageRefs are normalized
	// to JPEG before they reach this client.
	mimeJPEG = "image/jpeg"
)

// Client calls the Gemini image model via REST API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new client for the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // Image generation can take 10-30s
		},
	}
}

// --- REST API request/response types ---

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiBlobData `json:"inlineData,omitempty"`
}

type geminiBlobData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
	Error          *geminiError          `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// --- Call shapes ---

// ExtendFullBody extends the person in the photo into a full-body shot
// against a neutral background. The input must already be inline.
func (c *Client) ExtendFullBody(ctx context.Context, model imageref.Ref) (imageref.Ref, error) {
	return c.generateImage(ctx, "full-body", assets.FullBodyPrompt, model)
}

// ExtractApparel isolates the fashion items of the given category onto a
// plain background. Unrecognized category tags behave like "all items".
func (c *Client) ExtractApparel(ctx context.Context, apparel imageref.Ref, category string) (imageref.Ref, error) {
	return c.generateImage(ctx, "extraction", assets.ExtractionPrompt(category), apparel)
}

// VirtualTryOn dresses the person from the model image in the apparel
// image. Both inputs must already be inline.
func (c *Client) VirtualTryOn(ctx context.Context, model, apparel imageref.Ref) (imageref.Ref, error) {
	return c.generateImage(ctx, "try-on", assets.TryOnPrompt, model, apparel)
}

// CreativeEdit regenerates the base image under the given creative
// directive, preserving the person and the clothing.
func (c *Client) CreativeEdit(ctx context.Context, base imageref.Ref, directive string) (imageref.Ref, error) {
	return c.generateImage(ctx, "creative-edit", assets.RegenerationPrompt(directive), base)
}

// generateImage sends an instruction plus inlined image payloads and
// returns the generated image. A completed call with no image part is
// converted into a *RefusalError; transport and API errors come back as
// plain errors with the underlying message.
func (c *Client) generateImage(ctx context.Context, operation, instruction string, images ...imageref.Ref) (imageref.Ref, error) {
	startTime := time.Now()

	parts := []geminiPart{{Text: instruction}}
	for _, img := range images {
		payload, err := img.PureBase64()
		if err != nil {
			return imageref.Ref{}, fmt.Errorf("image payload not normalized: %w", err)
		}
		parts = append(parts, geminiPart{
			InlineData: &geminiBlobData{MIMEType: mimeJPEG, Data: payload},
		})
	}

	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return imageref.Ref{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	log.Info().
		Str("operation", operation).
		Str("model", c.model).
		Int("images", len(images)).
		Int("request_bytes", len(body)).
		Msg("Sending generation request to Gemini")

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return imageref.Ref{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return imageref.Ref{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return imageref.Ref{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// Error bodies carry a structured message worth surfacing.
		var apiResp geminiResponse
		if jsonErr := json.Unmarshal(respBody, &apiResp); jsonErr == nil && apiResp.Error != nil {
			return imageref.Ref{}, fmt.Errorf("API request failed: %s (status %d)", apiResp.Error.Message, resp.StatusCode)
		}
		log.Error().
			Str("operation", operation).
			Int("status", resp.StatusCode).
			Str("body", truncateString(string(respBody), 500)).
			Msg("Gemini API returned error")
		return imageref.Ref{}, fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncateString(string(respBody), 200))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return imageref.Ref{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if geminiResp.Error != nil {
		return imageref.Ref{}, fmt.Errorf("API error: %s (code: %d)", geminiResp.Error.Message, geminiResp.Error.Code)
	}

	imageData := extractImagePayload(&geminiResp)
	if imageData == "" {
		blockReason := ""
		if geminiResp.PromptFeedback != nil {
			blockReason = geminiResp.PromptFeedback.BlockReason
		}
		finishReason := ""
		if len(geminiResp.Candidates) > 0 {
			finishReason = geminiResp.Candidates[0].FinishReason
		}
		refusal := refusalFromResponse(blockReason, finishReason)
		log.Warn().
			Str("operation", operation).
			Str("refusal", string(refusal.Reason)).
			Str("block_reason", blockReason).
			Str("finish_reason", finishReason).
			Msg("Gemini returned no image")
		return imageref.Ref{}, refusal
	}

	log.Info().
		Str("operation", operation).
		Int("output_base64_bytes", len(imageData)).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini generation complete")

	return imageref.Ref{DataURI: "data:" + mimeJPEG + ";base64," + imageData}, nil
}

// extractImagePayload returns the first inline image payload in the
// response, or "" when none was produced.
func extractImagePayload(resp *geminiResponse) string {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return part.InlineData.Data
			}
		}
	}
	return ""
}

// truncateString truncates a string to maxLen, appending "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
