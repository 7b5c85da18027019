package headless

import (
	"context"
	"errors"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

// Noop implements PageFetcher but always returns an error, for builds where
// headless rendering is disabled.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch returns an error since no browser is available.
func (Noop) Fetch(_ context.Context, _ string, _ harvester.FetchOptions) (harvester.RawPage, error) {
	return harvester.RawPage{}, errors.New("headless fetcher not configured")
}
