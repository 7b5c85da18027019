// Package fetcher routes page fetches between the static HTTP fetcher and
// the headless renderer based on the per-request options.
package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

// Router picks a backend per fetch. Requests asking for JavaScript rendering
// go to the rendered fetcher; everything else takes the static path. When no
// renderer is configured, rendering requests degrade to the static fetcher.
type Router struct {
	static   harvester.PageFetcher
	rendered harvester.PageFetcher
	logger   *zap.Logger
}

// NewRouter builds a Router. The static fetcher is required; rendered may be
// nil.
func NewRouter(static, rendered harvester.PageFetcher, logger *zap.Logger) (*Router, error) {
	if static == nil {
		return nil, fmt.Errorf("static fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{static: static, rendered: rendered, logger: logger}, nil
}

// Fetch implements harvester.PageFetcher.
func (r *Router) Fetch(ctx context.Context, url string, opts harvester.FetchOptions) (harvester.RawPage, error) {
	if opts.RenderJS {
		if r.rendered != nil {
			return r.rendered.Fetch(ctx, url, opts)
		}
		r.logger.Warn("renderer unavailable, falling back to static fetch",
			zap.String("url", url))
	}
	return r.static.Fetch(ctx, url, opts)
}
