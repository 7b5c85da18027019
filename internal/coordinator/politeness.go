package coordinator

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/madfam-io/renec-harvester-sub000/internal/config"
	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

// PoliteFetcher wraps a PageFetcher with the site courtesy gate: a global
// requests-per-second token bucket, a hard in-flight ceiling, and a random
// per-request delay. Every fetch in the pipeline goes through one shared
// instance, so driver sub-fetches count against the same ceiling as
// top-level target fetches.
type PoliteFetcher struct {
	inner    harvester.PageFetcher
	limiter  *rate.Limiter
	slots    chan struct{}
	delayMin time.Duration
	delayMax time.Duration
	logger   *zap.Logger
}

// NewPoliteFetcher builds the gate from harvest configuration.
func NewPoliteFetcher(inner harvester.PageFetcher, cfg config.HarvestConfig, logger *zap.Logger) *PoliteFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	inFlight := cfg.MaxInFlight
	if inFlight <= 0 {
		inFlight = 1
	}
	return &PoliteFetcher{
		inner:    inner,
		limiter:  rate.NewLimiter(limit, 1),
		slots:    make(chan struct{}, inFlight),
		delayMin: time.Duration(cfg.PoliteDelayMinMs) * time.Millisecond,
		delayMax: time.Duration(cfg.PoliteDelayMaxMs) * time.Millisecond,
		logger:   logger,
	}
}

// Fetch blocks until the gate admits the request, then delegates.
func (p *PoliteFetcher) Fetch(ctx context.Context, url string, opts harvester.FetchOptions) (harvester.RawPage, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return harvester.RawPage{}, fmt.Errorf("awaiting fetch slot: %w", ctx.Err())
	}
	defer func() { <-p.slots }()

	if err := p.limiter.Wait(ctx); err != nil {
		return harvester.RawPage{}, fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := p.politeDelay(); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return harvester.RawPage{}, fmt.Errorf("polite delay: %w", ctx.Err())
		}
	}
	return p.inner.Fetch(ctx, url, opts)
}

func (p *PoliteFetcher) politeDelay() time.Duration {
	if p.delayMax <= p.delayMin {
		return p.delayMin
	}
	return p.delayMin + randomJitter(p.delayMax-p.delayMin)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
