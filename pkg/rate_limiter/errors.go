package rate_limiter

import "errors"

var (
	ErrStoreUnavailable = errors.New("counter store unavailable")
	ErrUnknownAction    = errors.New("unknown rate limit action")
	ErrUnsupported      = errors.New("operation not supported by the counter store")
)
