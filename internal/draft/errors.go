package draft

import "errors"

// Error kinds surfaced to callers. Handlers map these to HTTP statuses and to
// the machine-readable "kind" field the frontend switches on, so they must
// stay distinguishable via errors.Is.
var (
	ErrNotFound         = errors.New("draft not found")
	ErrForbidden        = errors.New("draft owned by another user")
	ErrInvalidState     = errors.New("operation not allowed in current draft state")
	ErrGenerationFailed = errors.New("generation failed")
	ErrRenderFailed     = errors.New("document render failed")
	ErrUploadFailed     = errors.New("classroom upload failed")
)

// Kind returns the wire name for a lifecycle error, or "internal" when the
// error is not part of the taxonomy.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, ErrRenderFailed):
		return "render_failed"
	case errors.Is(err, ErrUploadFailed):
		return "upload_failed"
	default:
		return "internal"
	}
}
