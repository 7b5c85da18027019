package coordinator

import (
	"context"
	"errors"
	"math"
	"net"
	"time"

	"github.com/madfam-io/renec-harvester-sub000/internal/config"
	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = 250 * time.Millisecond
	defaultBackoffCeil = 5 * time.Second
)

// retryPolicy decides whether a failed fetch is worth repeating and how long
// to wait before the next attempt, using jittered exponential backoff.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func newRetryPolicy(cfg config.FetchConfig) *retryPolicy {
	p := &retryPolicy{
		maxRetries: cfg.MaxRetries,
		baseDelay:  time.Duration(cfg.BackoffInitialMs) * time.Millisecond,
		maxDelay:   time.Duration(cfg.BackoffMaxMs) * time.Millisecond,
	}
	if p.maxRetries <= 0 {
		p.maxRetries = defaultMaxRetries
	}
	if p.baseDelay <= 0 {
		p.baseDelay = defaultBackoffBase
	}
	if p.maxDelay <= 0 {
		p.maxDelay = defaultBackoffCeil
	}
	return p
}

// shouldRetry reports whether attempt (zero-based) may be repeated. HTTP 429
// and 5xx are retryable, other status failures are not. Network timeouts are
// retryable, context cancellation never is. Errors of unknown shape
// (connection resets and the like) are treated as transient.
func (p *retryPolicy) shouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if harvester.IsTransientStatus(err) {
		return true
	}
	var statusErr *harvester.StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// backoff returns the wait before retrying attempt (zero-based).
func (p *retryPolicy) backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}
