package bolapi

import (
	"errors"
	"fmt"
)

// TransportError wraps a network level failure. The item stays queued and
// is retried on the next pass.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport error: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// AuthError is returned for 400/401 responses. Callers refresh the token
// once and retry.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%d): %s", e.StatusCode, e.Body)
}

// RateLimitedError is a 429. Callers back off and retry once.
type RateLimitedError struct {
	RetryAfter int
}

func (e *RateLimitedError) Error() string { return "rate limited" }

// NotFoundError is a 404; export drivers skip the item permanently.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string { return "not found: " + e.Path }

// ValidationError is any other 4xx with a response body.
type ValidationError struct {
	StatusCode int
	Body       string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("request rejected (%d): %s", e.StatusCode, e.Body)
}

func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}

func IsAuth(err error) bool {
	var t *AuthError
	return errors.As(err, &t)
}

func IsRateLimited(err error) bool {
	var t *RateLimitedError
	return errors.As(err, &t)
}

func IsNotFound(err error) bool {
	var t *NotFoundError
	return errors.As(err, &t)
}
