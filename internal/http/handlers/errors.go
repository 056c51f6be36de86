// Stable machine-readable error codes for the API surface.
//
// Handlers pick the most specific code and pass it to fail() together with
// the HTTP status; clients branch on the code rather than parsing messages.
// Generic codes mirror HTTP semantics; the domain codes cover business
// rejections a bare status cannot convey, like the active-listing quota or
// the one-photo minimum.
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "rate_limited" // emitted by the rate-limit middleware
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeMissingPhoto     = "missing_photo"
	ErrCodePhotoMinimum     = "photo_minimum"
	ErrCodeQuotaExceeded    = "quota_exceeded"
	ErrCodeDuplicateListing = "duplicate_listing"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
