package tranzy

import (
	"errors"
	"fmt"
	"time"
)

// AuthError means the API key / agency id pairing was rejected (HTTP 401
// or 403). It is a configuration problem, not a transient fault: retrying
// on the next tick will not fix it, so diagnostics must surface it
// distinctly from network blips.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("tranzy: authentication rejected (HTTP %d): check API key and agency id", e.Status)
}

// RateLimitError means the upstream throttled us (HTTP 429). Treated as a
// transient failure; the poll interval itself is the backoff.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("tranzy: rate limited by upstream, retry after %s", e.RetryAfter)
	}
	return "tranzy: rate limited by upstream"
}

// FetchError wraps transient transport-level failures: timeouts, 5xx
// responses, oversized or malformed payloads. Callers retry on the next
// natural poll tick.
type FetchError struct {
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("tranzy: fetching %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrorKind labels an error for metrics and diagnostics.
func ErrorKind(err error) string {
	var authErr *AuthError
	var rateErr *RateLimitError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &rateErr):
		return "rate_limit"
	default:
		return "transient"
	}
}
