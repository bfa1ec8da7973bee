// Package imageref models image payloads that cross context boundaries.
//
// A Ref addresses an image either as a self-contained data URI (base64
// JPEG) or as a remote URL on the host page. Every Ref must be normalized
// to the inline form before it is sent to the generation backend: URL refs
// are fetched, decoded, downscaled when oversized, and re-encoded as JPEG.
// The message bus and the backend both carry payloads by value, so the
// inline form is also bounded by MaxDimension to keep payloads within the
// channel's size constraints.
package imageref

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

const (
	// MaxDimension bounds the longest side of an inlined image. Larger
	// inputs are downscaled before crossing the bus or the backend wire.
	MaxDimension = 1536

	// jpegQuality is the encoding quality for normalized payloads.
	jpegQuality = 90

	// dataURIPrefix is the fixed prefix of the inline form. Output is
	// always JPEG regardless of the source encoding.
	dataURIPrefix = "data:image/jpeg;base64,"

	// fetchTimeout bounds a remote fetch during normalization.
	fetchTimeout = 30 * time.Second

	// maxFetchBytes caps how much of a remote image is read (20 MB).
	maxFetchBytes = 20 << 20
)

// Ref is an image payload addressed either as an inline data URI or as a
// remote locator. Exactly one of the two fields is set on a non-zero Ref.
type Ref struct {
	// DataURI is the self-contained form: "data:image/jpeg;base64,<payload>".
	DataURI string `json:"dataUri,omitempty"`

	// URL is the remote form, set when the image has not been fetched yet.
	URL string `json:"url,omitempty"`
}

// FromURL returns a Ref in the remote form.
func FromURL(url string) Ref {
	return Ref{URL: url}
}

// FromJPEG returns an inline Ref wrapping already-encoded JPEG bytes.
func FromJPEG(data []byte) Ref {
	return Ref{DataURI: dataURIPrefix + base64.StdEncoding.EncodeToString(data)}
}

// IsZero reports whether the Ref holds no image at all.
func (r Ref) IsZero() bool {
	return r.DataURI == "" && r.URL == ""
}

// Inline reports whether the Ref is in the self-contained encoded form.
func (r Ref) Inline() bool {
	return r.DataURI != ""
}

// PureBase64 returns the base64 payload of an inline Ref with the data URI
// header stripped, which is the form the backend and the hosting upload
// both expect.
func (r Ref) PureBase64() (string, error) {
	if !r.Inline() {
		return "", fmt.Errorf("image is not in inline form (url: %s)", r.URL)
	}
	_, payload, found := strings.Cut(r.DataURI, ",")
	if !found {
		return "", fmt.Errorf("malformed data URI (length %d)", len(r.DataURI))
	}
	return payload, nil
}

// Bytes returns the decoded image bytes of an inline Ref.
func (r Ref) Bytes() ([]byte, error) {
	payload, err := r.PureBase64()
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data URI payload: %w", err)
	}
	return data, nil
}

// Ingest converts a user-uploaded image into the normalized inline form.
// The input may be JPEG, PNG, or GIF; it is decoded, downscaled when either
// side exceeds MaxDimension, and re-encoded as JPEG.
func Ingest(data []byte) (Ref, error) {
	sniffMetadata(data)

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Ref{}, fmt.Errorf("unsupported or corrupt image: %w", err)
	}

	bounds := img.Bounds()
	origWidth := bounds.Dx()
	origHeight := bounds.Dy()

	if origWidth > MaxDimension || origHeight > MaxDimension {
		newWidth, newHeight := fitDimensions(origWidth, origHeight, MaxDimension)
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		img = resized

		log.Debug().
			Int("orig_width", origWidth).
			Int("orig_height", origHeight).
			Int("new_width", newWidth).
			Int("new_height", newHeight).
			Msg("Downscaled oversized image")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Ref{}, fmt.Errorf("failed to encode image as JPEG: %w", err)
	}

	log.Debug().
		Str("source_format", format).
		Int("input_bytes", len(data)).
		Int("output_bytes", buf.Len()).
		Msg("Image ingested")

	return FromJPEG(buf.Bytes()), nil
}

// Normalize returns the Ref in inline form, fetching and re-encoding it if
// it is a remote locator. Inline refs are returned unchanged.
func Normalize(ctx context.Context, client *http.Client, r Ref) (Ref, error) {
	if r.Inline() {
		return r, nil
	}
	if r.URL == "" {
		return Ref{}, fmt.Errorf("cannot normalize an empty image reference")
	}
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to create fetch request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Ref{}, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return Ref{}, fmt.Errorf("failed to read image body: %w", err)
	}

	log.Debug().
		Str("url", r.URL).
		Int("bytes", len(data)).
		Msg("Fetched remote image for normalization")

	return Ingest(data)
}

// sniffMetadata extracts EXIF metadata from an upload for diagnostics.
// Metadata failures are expected (screenshots, stripped images) and never
// block ingestion.
func sniffMetadata(data []byte) {
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Msg("No EXIF metadata in upload")
		return
	}
	log.Debug().
		Str("camera_make", strings.TrimSpace(exifData.Make)).
		Str("camera_model", strings.TrimSpace(exifData.Model)).
		Msg("Upload EXIF metadata")
}

// fitDimensions scales (width, height) to fit within maxDimension while
// preserving aspect ratio. Assumes at least one side exceeds the limit.
func fitDimensions(width, height, maxDimension int) (int, int) {
	if width >= height {
		newHeight := height * maxDimension / width
		if newHeight < 1 {
			newHeight = 1
		}
		return maxDimension, newHeight
	}
	newWidth := width * maxDimension / height
	if newWidth < 1 {
		newWidth = 1
	}
	return newWidth, maxDimension
}
