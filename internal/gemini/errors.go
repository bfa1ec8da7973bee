package gemini

import "fmt"

// RefusalReason classifies a completed generation call that produced no
// usable image. The vocabulary is small and fixed; anything the API
// returns outside of it maps to ReasonUnknown.
type RefusalReason string

const (
	// ReasonBlocked means prompt feedback carried a block reason.
	ReasonBlocked RefusalReason = "blocked"
	// ReasonStopWithoutImage means the model finished normally (STOP)
	// but emitted no image part.
	ReasonStopWithoutImage RefusalReason = "stop-without-image"
	// ReasonSafety maps the SAFETY finish reason.
	ReasonSafety RefusalReason = "safety"
	// ReasonRecitation maps the RECITATION finish reason.
	ReasonRecitation RefusalReason = "recitation"
	// ReasonUnknown covers every other finish reason.
	ReasonUnknown RefusalReason = "unknown"
)

// RefusalError reports a generation call that completed at the transport
// level but returned no image. Each reason renders a distinct user-facing
// message; the workflow surfaces Error() verbatim.
type RefusalError struct {
	Reason RefusalReason

	// BlockReason is the raw prompt-feedback block reason when
	// Reason == ReasonBlocked.
	BlockReason string

	// Detail carries the raw finish reason or a response fragment for
	// the unknown case.
	Detail string
}

func (e *RefusalError) Error() string {
	switch e.Reason {
	case ReasonBlocked:
		return fmt.Sprintf("the request was blocked by the safety policy (%s); try a different or more conventional photo", e.BlockReason)
	case ReasonStopWithoutImage:
		return "the model finished without producing an image; this usually means a safety restriction applied, try a different photo"
	case ReasonSafety:
		return "the request was rejected for safety reasons; make sure the photos are appropriate"
	case ReasonRecitation:
		return "the request was rejected because it could reproduce copyrighted content"
	default:
		return fmt.Sprintf("no image was generated; the API returned an unknown reason: %s", e.Detail)
	}
}

// refusalFromResponse classifies a response that carried no image part.
func refusalFromResponse(blockReason, finishReason string) *RefusalError {
	if blockReason != "" {
		return &RefusalError{Reason: ReasonBlocked, BlockReason: blockReason}
	}
	switch finishReason {
	case "STOP":
		return &RefusalError{Reason: ReasonStopWithoutImage, Detail: finishReason}
	case "SAFETY":
		return &RefusalError{Reason: ReasonSafety, Detail: finishReason}
	case "RECITATION":
		return &RefusalError{Reason: ReasonRecitation, Detail: finishReason}
	default:
		return &RefusalError{Reason: ReasonUnknown, Detail: finishReason}
	}
}
