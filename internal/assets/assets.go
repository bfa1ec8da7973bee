// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at
// compile time, so a binary is always shipped with the exact instruction
// text it was tested against.
package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

// --- Static prompts (no dynamic data) ---

// FullBodyPrompt instructs the model to extend a portrait into a
// full-body photograph while preserving clothing, lighting and pose style.
//
//go:embed prompts/full-body.txt
var FullBodyPrompt string

// TryOnPrompt instructs the model to dress the person from the first
// image in the apparel from the second image.
//
//go:embed prompts/try-on.txt
var TryOnPrompt string

// --- Extraction prompt (category-conditioned) ---

//go:embed prompts/extraction-base.txt
var extractionBase string

//go:embed prompts/extraction-all-items.txt
var extractionAllItems string

//go:embed prompts/extraction-clothing.txt
var extractionClothing string

//go:embed prompts/extraction-accessories.txt
var extractionAccessories string

// ExtractionPrompt builds the apparel-extraction instruction for the given
// category tag. Category is a closed set ("all items", "clothing",
// "accessories"); any other value degrades to the "all items" behavior
// rather than failing, so a stray UI value never aborts an extraction.
func ExtractionPrompt(category string) string {
	var body string
	switch category {
	case "all items":
		body = extractionAllItems
	case "clothing":
		body = extractionClothing
	case "accessories":
		body = extractionAccessories
	default:
		body = extractionAllItems
	}
	return extractionBase + body
}

// --- Dynamic prompt templates ---

//go:embed prompts/regeneration.txt
var regenerationTemplate string

// Pre-parsed at init. template.Must panics on malformed templates,
// catching errors at program startup rather than at call time.
var regenerationTmpl = template.Must(template.New("regeneration").Parse(regenerationTemplate))

// regenerationData holds the dynamic data injected into the regeneration template.
type regenerationData struct {
	// Directive is the concatenated creative instruction (background,
	// angle, free text) assembled by the orchestrator.
	Directive string
}

// RegenerationPrompt renders the creative-regeneration instruction with the
// given directive embedded in the creative-task section.
func RegenerationPrompt(directive string) string {
	var buf bytes.Buffer
	// Template execution errors are not expected with our simple templates,
	// but we handle them gracefully by returning whatever was rendered.
	_ = regenerationTmpl.Execute(&buf, regenerationData{Directive: directive})
	return buf.String()
}
