package harvester

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a repository lookup that matched nothing.
var ErrNotFound = errors.New("not found")

// StatusError reports a fetch that completed with a non-success HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Code)
}

// Transient reports whether the status warrants a retry (rate limiting or a
// server-side failure).
func (e *StatusError) Transient() bool {
	return e.Code == 429 || e.Code >= 500
}

// IsTransientStatus reports whether err wraps a retryable StatusError.
func IsTransientStatus(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Transient()
}
