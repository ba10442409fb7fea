package aigateway

import "errors"

// Sentinel errors mapped from upstream HTTP status codes. Callers decide
// retry and user-facing behavior from these.
var (
	ErrUnauthorized    = errors.New("ai gateway unauthorized")
	ErrRateLimited     = errors.New("ai gateway rate limited")
	ErrPaymentRequired = errors.New("ai gateway payment required")
	ErrUnavailable     = errors.New("ai gateway unavailable")
	ErrEmptyResponse   = errors.New("ai gateway empty response")
)
