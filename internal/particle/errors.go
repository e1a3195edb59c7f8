package particle

import "errors"

// Domain-specific errors for cloud API operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConfigured is returned when no cloud credentials are available.
	ErrNotConfigured = errors.New("particle: credentials not configured")

	// ErrInvalidCredentials is returned when a credential field has the
	// wrong length. Tokens and device IDs are fixed-format values; anything
	// else is a copy/paste mistake, not a value worth sending to the API.
	ErrInvalidCredentials = errors.New("particle: invalid credentials")

	// ErrNameTooLong is returned when a function or variable name exceeds
	// the configured length limit.
	ErrNameTooLong = errors.New("particle: name exceeds length limit")

	// ErrArgumentTooLong is returned when a function argument exceeds the
	// configured length limit.
	ErrArgumentTooLong = errors.New("particle: argument exceeds length limit")

	// ErrThrottled is returned when the per-endpoint rate limit denies a call.
	ErrThrottled = errors.New("particle: endpoint throttled")

	// ErrSaturated is returned when the in-flight call limit is reached and
	// a new worker cannot be admitted.
	ErrSaturated = errors.New("particle: dispatcher saturated")

	// ErrFieldMissing is returned when the expected field marker is absent
	// from a response body.
	ErrFieldMissing = errors.New("particle: response field missing")

	// ErrFieldMalformed is returned when a field marker is present but the
	// value cannot be extracted (e.g. unterminated string).
	ErrFieldMalformed = errors.New("particle: response field malformed")

	// ErrTransport is returned for connection failures and non-2xx responses.
	ErrTransport = errors.New("particle: transport failure")
)
