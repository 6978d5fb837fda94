package upstream

import (
	"errors"
	"fmt"
)

// ErrBlocked means the upstream has blocked this client outright.
// Retrying without operator intervention will not help.
var ErrBlocked = errors.New("upstream: blocked by server")

// ErrAuthExpired means the session cookie is no longer accepted.
var ErrAuthExpired = errors.New("upstream: session expired or invalid")

// RateLimitError is returned by endpoints that report a structured
// rate limit instead of a bare 429.
type RateLimitError struct {
	RetryAfter int64
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("upstream: rate limited, retry after %ds: %s", e.RetryAfter, e.Message)
}

// StatusError is a non-success HTTP status that carries no more
// specific meaning.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: %s returned status %d", e.URL, e.Status)
}
