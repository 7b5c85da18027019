package drivers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/madfam-io/renec-harvester-sub000/internal/config"
	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

// constructors maps endpoint-registry component names to driver builders.
var constructors = map[string]func(Options) harvester.Driver{
	"standard":  func(o Options) harvester.Driver { return NewStandard(o) },
	"certifier": func(o Options) harvester.Driver { return NewCertifier(o) },
	"center":    func(o Options) harvester.Driver { return NewCenter(o) },
	"sector":    func(o Options) harvester.Driver { return NewSector(o) },
	"committee": func(o Options) harvester.Driver { return NewCommittee(o) },
}

// componentOrder fixes driver registration order so dispatch precedence and
// run summaries are stable regardless of config map iteration.
var componentOrder = []string{"standard", "certifier", "center", "sector", "committee"}

// FromConfig builds the driver registry from the endpoint registry. Unknown
// component names are rejected; a structured transport hint requests
// JavaScript rendering so the backing exchanges get intercepted.
func FromConfig(
	cfg config.Config,
	fetcher harvester.PageFetcher,
	logger *zap.Logger,
) (*Registry, error) {
	var built []harvester.Driver
	for _, name := range componentOrder {
		ep, ok := cfg.Endpoints[name]
		if !ok {
			continue
		}
		construct, known := constructors[name]
		if !known {
			return nil, fmt.Errorf("no driver for component %q", name)
		}
		built = append(built, construct(Options{
			SeedURL:    ep.SeedURL,
			URLPattern: ep.URLPattern,
			RenderJS:   ep.TransportHint == "structured",
			MaxPages:   cfg.Harvest.MaxPagesPerSeed,
			Fetcher:    fetcher,
			FetchOpts: harvester.FetchOptions{
				RenderJS: ep.TransportHint == "structured",
				Timeout:  cfg.FetchTimeout(),
			},
			Logger: logger,
		}))
	}
	for name := range cfg.Endpoints {
		if _, known := constructors[name]; !known {
			return nil, fmt.Errorf("no driver for component %q", name)
		}
	}
	if len(built) == 0 {
		return nil, fmt.Errorf("endpoint registry is empty")
	}
	return NewRegistry(built...)
}
