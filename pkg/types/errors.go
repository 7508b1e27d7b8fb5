package types

import "errors"

// Error taxonomy shared across the connectivity layer
// ARCHITECTURAL DISCOVERY: Specific error types enable proper recovery
// decisions at each layer instead of string matching on messages
var (
	// ErrNetworkUnavailable marks a transient transport failure; callers may
	// retry or fall back to cached data.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrAuthRejected marks a request whose access credential was rejected;
	// the authenticated client recovers it via refresh.
	ErrAuthRejected = errors.New("access credential rejected")

	// ErrSessionExpired marks a failed refresh; the session is gone and the
	// caller must re-authenticate.
	ErrSessionExpired = errors.New("session expired")

	// ErrPermissionDenied marks a declined push opt-in; surfaced as a
	// disabled state, not a failure banner.
	ErrPermissionDenied = errors.New("notification permission denied")

	// ErrSubscriptionInvalid marks a push subscription revoked by the
	// platform; treated as already disabled.
	ErrSubscriptionInvalid = errors.New("push subscription no longer valid")

	ErrInvalidRoom     = errors.New("room name must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrEmptyContent    = errors.New("message content cannot be empty")
	ErrContentTooLarge = errors.New("message content exceeds 64KB limit")
)
