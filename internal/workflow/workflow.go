// Package workflow implements the try-on pipeline state machine resident
// in the control surface.
//
// The Orchestrator is an explicit object constructed once per control
// surface session; it owns the single mutable WorkflowState record and is
// the only component that mutates it. Transitions are serialized by a
// mutex, so each transition's critical section runs to completion before
// the next begins. Every remote-call failure is caught at the transition
// boundary, converted into a user-visible notification, and leaves the
// state machine in its pre-call state, safe to retry manually. There are
// no automatic retries.
//
// Two fields survive the session: the model image and the backend
// credential, mirrored to the store on every successful mutation and read
// back once at construction.
package workflow

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-virtual-tryon/internal/bus"
	"github.com/fpang/ai-virtual-tryon/internal/imageref"
	"github.com/fpang/ai-virtual-tryon/internal/share"
	"github.com/fpang/ai-virtual-tryon/internal/store"
)

// State names one step of the pipeline.
type State string

const (
	StateEmpty            State = "Empty"
	StateModelReady       State = "ModelReady"
	StatePickingApparel   State = "PickingApparel"
	StateApparelPreview   State = "ApparelPreview"
	StateApparelExtracted State = "ApparelExtracted"
	StateTryOnReady       State = "TryOnReady"
	StateCreativeEdit     State = "CreativeEdit"
)

// pingTimeout bounds the viewer liveness probe before a full-screen
// preview. No reply within the window means the page context is treated
// as unreachable and the preview falls back locally.
const pingTimeout = time.Second

// Generator is the generative backend surface the orchestrator calls.
// All four call shapes take normalized inline images and return either a
// result image or an error (refusal or transport failure).
type Generator interface {
	ExtendFullBody(ctx context.Context, model imageref.Ref) (imageref.Ref, error)
	ExtractApparel(ctx context.Context, apparel imageref.Ref, category string) (imageref.Ref, error)
	VirtualTryOn(ctx context.Context, model, apparel imageref.Ref) (imageref.Ref, error)
	CreativeEdit(ctx context.Context, base imageref.Ref, directive string) (imageref.Ref, error)
}

// GeneratorFactory builds a backend client for the current credential.
// Called per transition so a newly saved key takes effect immediately.
type GeneratorFactory func(apiKey string) Generator

// Injector activates the selection agent in the page context. Both the
// in-process page host and the websocket gateway satisfy it.
type Injector interface {
	InjectPicker(ctx context.Context) error
}

// Notifier surfaces user-visible workflow notifications. Transition
// failures pass through it exactly once each.
type Notifier interface {
	Notify(message string)
}

// logNotifier is the default Notifier, logging notifications instead of
// displaying them.
type logNotifier struct{}

func (logNotifier) Notify(message string) {
	log.Info().Str("message", message).Msg("Workflow notification")
}

// Config carries the orchestrator's collaborators.
type Config struct {
	Bus          *bus.Bus
	Injector     Injector
	NewGenerator GeneratorFactory
	Store        store.Store
	Uploader     share.Uploader

	// Notifier is optional; defaults to logging.
	Notifier Notifier

	// HTTPClient is optional; used to fetch remote apparel URLs during
	// normalization. Defaults to a fresh client.
	HTTPClient *http.Client
}

// Orchestrator owns the workflow state and exposes one method per
// transition.
type Orchestrator struct {
	mu sync.Mutex

	state            State
	modelImage       imageref.Ref
	apparelImage     imageref.Ref
	apparelSourceURL string
	tryOnImage       imageref.Ref
	sharedImageURL   string
	isPicking        bool
	apiKey           string

	// prevState is where toggling picking off (or a failed injection)
	// returns to.
	prevState State

	bus          *bus.Bus
	injector     Injector
	newGenerator GeneratorFactory
	store        store.Store
	uploader     share.Uploader
	notifier     Notifier
	httpClient   *http.Client
}

// New hydrates the durable fields from the store, attaches the control
// surface context to the bus, and returns the ready orchestrator.
func New(ctx context.Context, cfg Config) (*Orchestrator, error) {
	o := &Orchestrator{
		state:        StateEmpty,
		bus:          cfg.Bus,
		injector:     cfg.Injector,
		newGenerator: cfg.NewGenerator,
		store:        cfg.Store,
		uploader:     cfg.Uploader,
		notifier:     cfg.Notifier,
		httpClient:   cfg.HTTPClient,
	}
	if o.notifier == nil {
		o.notifier = logNotifier{}
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}

	model, err := o.store.ModelImage(ctx)
	if err != nil {
		return nil, fmt.Errorf("hydrate model image: %w", err)
	}
	if model != "" {
		o.modelImage = imageref.Ref{DataURI: model}
		o.state = StateModelReady
	}
	key, err := o.store.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("hydrate api key: %w", err)
	}
	o.apiKey = key

	o.bus.Attach(bus.ContextSidebar, o.dispatch)
	log.Info().Str("state", string(o.state)).Bool("has_key", key != "").Msg("Workflow orchestrator ready")
	return o, nil
}

// dispatch is the control surface's single dispatch function. The only
// inbound type it acts on is the picker's selection report; everything
// else is ignored.
func (o *Orchestrator) dispatch(msg bus.Message) *bus.Message {
	switch msg.Type {
	case bus.TypeImageSelected:
		var payload bus.ImageSelectedPayload
		if err := msg.DecodePayload(&payload); err != nil || payload.URL == "" {
			return nil
		}
		reply := msg.Ack(o.handleImageSelected(payload.URL))
		return &reply
	default:
		return nil
	}
}

// handleImageSelected is the one transition driven by an inbound message
// rather than a local user action. A selection arriving after picking was
// toggled off is stale and discarded without touching the state.
func (o *Orchestrator) handleImageSelected(url string) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.isPicking {
		log.Warn().Str("url", url).Msg("Discarding stale apparel selection")
		return "stale"
	}
	o.apparelImage = imageref.FromURL(url)
	o.apparelSourceURL = url
	o.isPicking = false
	o.state = StateApparelPreview
	log.Info().Str("url", url).Msg("Apparel image selected")
	return "received"
}

// UploadModel ingests raw uploaded image bytes as the model photo. The
// image is normalized (decoded, downscaled, re-encoded as JPEG) and
// persisted before the in-memory state changes.
func (o *Orchestrator) UploadModel(ctx context.Context, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateEmpty && o.state != StateModelReady {
		return fmt.Errorf("finish the current try-on or start over before changing the model photo")
	}
	ref, err := imageref.Ingest(data)
	if err != nil {
		return fmt.Errorf("could not process the uploaded photo: %w", err)
	}
	if err := o.store.SaveModelImage(ctx, ref.DataURI); err != nil {
		return fmt.Errorf("save model photo: %w", err)
	}
	o.modelImage = ref
	o.state = StateModelReady
	return nil
}

// SaveAPIKey persists the backend credential. An empty key is a
// validation error.
func (o *Orchestrator) SaveAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("please enter a valid API Key")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.store.SaveAPIKey(ctx, key); err != nil {
		return fmt.Errorf("save api key: %w", err)
	}
	o.apiKey = key
	return nil
}

// ClearModel removes the model photo from memory and the store and resets
// the whole pipeline to Empty. Everything downstream of the model photo
// is moot without it.
func (o *Orchestrator) ClearModel(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.store.ClearModelImage(ctx); err != nil {
		return fmt.Errorf("clear model photo: %w", err)
	}
	if o.isPicking {
		o.cancelPickerLocked()
	}
	o.modelImage = imageref.Ref{}
	o.apparelImage = imageref.Ref{}
	o.apparelSourceURL = ""
	o.tryOnImage = imageref.Ref{}
	o.sharedImageURL = ""
	o.isPicking = false
	o.state = StateEmpty
	return nil
}

// backendLocked returns a generator for the current credential, or a
// validation error when none is configured.
func (o *Orchestrator) backendLocked() (Generator, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("please set your Gemini API Key first")
	}
	return o.newGenerator(o.apiKey), nil
}

// ExtendFullBody asks the backend to extend the model photo to a
// full-body shot. On success the result replaces and re-persists the
// model image; on failure nothing changes and a retry is safe.
func (o *Orchestrator) ExtendFullBody(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	gen, err := o.backendLocked()
	if err != nil {
		return err
	}
	if o.modelImage.IsZero() {
		return fmt.Errorf("no image found to process")
	}

	result, err := gen.ExtendFullBody(ctx, o.modelImage)
	if err != nil {
		o.notifier.Notify(fmt.Sprintf("Image generation failed: %v", err))
		return err
	}
	if err := o.store.SaveModelImage(ctx, result.DataURI); err != nil {
		return fmt.Errorf("save extended model photo: %w", err)
	}
	o.modelImage = result
	return nil
}

// TogglePicking enters or leaves apparel-picking mode. Entry injects the
// picker into the page; if injection fails the transition is rolled back
// so the machine is never left in PickingApparel with no live picker.
// Exit sends a best-effort cancellation. Returns whether picking is now
// active.
func (o *Orchestrator) TogglePicking(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.isPicking {
		o.cancelPickerLocked()
		o.isPicking = false
		o.state = o.prevState
		return false, nil
	}
	return true, o.enterPickingLocked(ctx)
}

func (o *Orchestrator) enterPickingLocked(ctx context.Context) error {
	if o.modelImage.IsZero() {
		return fmt.Errorf("upload your photo before selecting apparel")
	}
	prev := o.state
	o.prevState = prev
	o.isPicking = true
	o.state = StatePickingApparel

	if err := o.injector.InjectPicker(ctx); err != nil {
		o.isPicking = false
		o.state = prev
		o.notifier.Notify("Cannot select images on this page. Please try refreshing or using it on another page.")
		return fmt.Errorf("inject picker: %w", err)
	}
	return nil
}

// cancelPickerLocked sends CANCEL_SELECTION best-effort. A send failure
// means the page context is gone, and a picker without a page needs no
// cleanup.
func (o *Orchestrator) cancelPickerLocked() {
	msg := bus.NewMessage(bus.ContextSidebar, bus.ContextPage, bus.TypeCancelSelection, nil)
	if err := o.bus.Send(msg); err != nil {
		log.Debug().Err(err).Msg("Picker cancellation not delivered, page context gone")
	}
}

// ExtractApparel normalizes the selected apparel image to inline bytes
// (fetching it when it is still a URL) and asks the backend to isolate
// the selected category of items. On failure the state remains
// ApparelPreview.
func (o *Orchestrator) ExtractApparel(ctx context.Context, category string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	gen, err := o.backendLocked()
	if err != nil {
		return err
	}
	if o.apparelImage.IsZero() {
		return fmt.Errorf("no apparel image found to process")
	}

	normalized, err := imageref.Normalize(ctx, o.httpClient, o.apparelImage)
	if err != nil {
		o.notifier.Notify(fmt.Sprintf("Apparel extraction failed: %v", err))
		return err
	}
	result, err := gen.ExtractApparel(ctx, normalized, category)
	if err != nil {
		o.notifier.Notify(fmt.Sprintf("Apparel extraction failed: %v", err))
		return err
	}
	o.apparelImage = result
	o.state = StateApparelExtracted
	return nil
}

// BackToPreview returns from the extracted apparel to the original
// selection preview, keeping the selected URL.
func (o *Orchestrator) BackToPreview() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateApparelExtracted || o.apparelSourceURL == "" {
		return fmt.Errorf("no extracted apparel to go back from")
	}
	o.apparelImage = imageref.FromURL(o.apparelSourceURL)
	o.state = StateApparelPreview
	return nil
}

// ChangeApparel discards the current apparel image and re-enters picking
// so the user can select a different one.
func (o *Orchestrator) ChangeApparel(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.apparelImage = imageref.Ref{}
	o.apparelSourceURL = ""
	o.state = StateModelReady
	return o.enterPickingLocked(ctx)
}

// VirtualTryOn composes the model photo and the extracted apparel into a
// try-on image. The shared URL is invalidated: it was produced from the
// previous image and is not valid for this one.
func (o *Orchestrator) VirtualTryOn(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	gen, err := o.backendLocked()
	if err != nil {
		return err
	}
	if o.modelImage.IsZero() || o.apparelImage.IsZero() {
		return fmt.Errorf("missing model or apparel image data, please go back and retry")
	}

	result, err := gen.VirtualTryOn(ctx, o.modelImage, o.apparelImage)
	if err != nil {
		o.notifier.Notify(fmt.Sprintf("Virtual try-on failed: %v", err))
		return err
	}
	o.tryOnImage = result
	o.sharedImageURL = ""
	o.state = StateTryOnReady
	return nil
}

// BuildDirective concatenates the non-empty creative instructions, in
// fixed order, into the single directive string sent to the backend. An
// empty result means no instruction was given.
func BuildDirective(background, angle, custom string) string {
	var parts []string
	if background = strings.TrimSpace(background); background != "" {
		parts = append(parts, fmt.Sprintf("Change the background to: %s.", background))
	}
	if angle = strings.TrimSpace(angle); angle != "" {
		parts = append(parts, fmt.Sprintf("Change the model's pose and camera angle to: %s.", angle))
	}
	if custom = strings.TrimSpace(custom); custom != "" {
		parts = append(parts, custom)
	}
	return strings.Join(parts, " ")
}

// Regenerate replaces the try-on image with a creative edit of it. At
// least one instruction is required; an empty set fails validation before
// any backend call. Success invalidates the shared URL and lands (or
// stays) in CreativeEdit.
func (o *Orchestrator) Regenerate(ctx context.Context, background, angle, custom string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	gen, err := o.backendLocked()
	if err != nil {
		return err
	}
	if o.tryOnImage.IsZero() {
		return fmt.Errorf("missing base image, cannot regenerate")
	}
	directive := BuildDirective(background, angle, custom)
	if directive == "" {
		return fmt.Errorf("please enter or select at least one creative instruction")
	}

	result, err := gen.CreativeEdit(ctx, o.tryOnImage, directive)
	if err != nil {
		o.notifier.Notify(fmt.Sprintf("Creative regeneration failed: %v", err))
		return err
	}
	o.tryOnImage = result
	o.sharedImageURL = ""
	o.state = StateCreativeEdit
	return nil
}

// StartOver clears the apparel and try-on artifacts and returns to
// apparel selection, keeping the model photo.
func (o *Orchestrator) StartOver() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.apparelImage = imageref.Ref{}
	o.apparelSourceURL = ""
	o.tryOnImage = imageref.Ref{}
	o.sharedImageURL = ""
	if !o.modelImage.IsZero() {
		o.state = StateModelReady
	} else {
		o.state = StateEmpty
	}
}

// PreviewTarget selects which workflow image a preview request shows.
type PreviewTarget string

const (
	PreviewModel   PreviewTarget = "model"
	PreviewApparel PreviewTarget = "apparel"
	PreviewTryOn   PreviewTarget = "tryon"
)

// PreviewResult reports where the preview was displayed. When Local is
// true the page context was unreachable and the control surface renders
// Src itself.
type PreviewResult struct {
	Local bool   `json:"local"`
	Src   string `json:"src,omitempty"`
}

// Preview displays the requested image full-screen in the host page. The
// viewer's liveness is probed first; no acknowledgment within the probe
// window falls back to a local overlay, silently; the fallback is not an
// error condition.
func (o *Orchestrator) Preview(ctx context.Context, target PreviewTarget) (PreviewResult, error) {
	o.mu.Lock()
	var img imageref.Ref
	switch target {
	case PreviewModel:
		img = o.modelImage
	case PreviewApparel:
		img = o.apparelImage
	case PreviewTryOn:
		img = o.tryOnImage
	default:
		o.mu.Unlock()
		return PreviewResult{}, fmt.Errorf("unknown preview target: %q", target)
	}
	o.mu.Unlock()

	if img.IsZero() {
		return PreviewResult{}, fmt.Errorf("no image to preview")
	}
	src := img.DataURI
	if src == "" {
		src = img.URL
	}

	probeCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	ping := bus.NewMessage(bus.ContextSidebar, bus.ContextPage, bus.TypePing, nil)
	reply, err := o.bus.Request(probeCtx, ping)
	alive := false
	if err == nil {
		var status bus.StatusPayload
		alive = reply.DecodePayload(&status) == nil && status.Status == bus.StatusPong
	}
	if !alive {
		log.Debug().Err(err).Msg("Viewer unreachable, showing preview locally")
		return PreviewResult{Local: true, Src: src}, nil
	}

	show := bus.NewMessage(bus.ContextSidebar, bus.ContextPage, bus.TypeShowFullScreenImage, bus.ShowImagePayload{Src: src})
	if err := o.bus.Send(show); err != nil {
		// The page vanished between the probe and the send.
		return PreviewResult{Local: true, Src: src}, nil
	}
	return PreviewResult{}, nil
}

// Share uploads the try-on image to the hosting service (memoized per
// image) and returns the platform share URL. Upload failure aborts the
// share without touching the try-on image or the memoized URL.
func (o *Orchestrator) Share(ctx context.Context, platform share.Platform) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.tryOnImage.IsZero() {
		return "", fmt.Errorf("no image available to share")
	}
	if o.sharedImageURL == "" {
		url, err := o.uploader.Upload(ctx, o.tryOnImage)
		if err != nil {
			o.notifier.Notify(fmt.Sprintf("Share failed: %v", err))
			return "", err
		}
		o.sharedImageURL = url
	}
	shareURL, err := share.BuildShareURL(platform, o.sharedImageURL)
	if err != nil {
		return "", err
	}
	return shareURL, nil
}

// Snapshot is the read-only view of the workflow state served to the
// control surface UI.
type Snapshot struct {
	State          State        `json:"state"`
	IsPicking      bool         `json:"isPicking"`
	HasAPIKey      bool         `json:"hasApiKey"`
	ModelImage     imageref.Ref `json:"modelImage"`
	ApparelImage   imageref.Ref `json:"apparelImage"`
	TryOnImage     imageref.Ref `json:"tryOnImage"`
	SharedImageURL string       `json:"sharedImageUrl,omitempty"`
}

// Snapshot returns a copy of the current workflow state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		State:          o.state,
		IsPicking:      o.isPicking,
		HasAPIKey:      o.apiKey != "",
		ModelImage:     o.modelImage,
		ApparelImage:   o.apparelImage,
		TryOnImage:     o.tryOnImage,
		SharedImageURL: o.sharedImageURL,
	}
}
