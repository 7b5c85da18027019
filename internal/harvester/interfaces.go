package harvester

import (
	"context"
	"time"
)

// FetchOptions carries per-fetch behavior hints for a PageFetcher.
type FetchOptions struct {
	RenderJS bool
	Timeout  time.Duration
}

// PageFetcher retrieves a page and returns the rendered DOM, the raw body
// and any background exchanges intercepted while the page loaded. The core
// is agnostic to how the implementation renders JavaScript.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, opts FetchOptions) (RawPage, error)
}

// Driver is the pluggable unit of extraction logic for one registry
// component. Seeds enumerates list pages (performing bounded pagination
// discovery itself); Parse turns a fetched page into typed records plus
// per-row parse errors. Sub-target fetches (row detail panels) are issued by
// the driver through its own PageFetcher, not by the coordinator.
type Driver interface {
	Component() string
	Variant() Variant
	Matches(url string) bool
	Seeds(ctx context.Context) ([]Target, error)
	Parse(ctx context.Context, target Target, page RawPage) ([]EntityRecord, []RelationshipRecord, []ParseError)
}

// Repository persists entities, relationships and run records. It is the
// only shared mutable resource: upserts must be atomic per natural key, with
// last-write-wins attributes, preserved first_seen and max last_seen.
type Repository interface {
	BeginRun(ctx context.Context, run Run) error
	FinalizeRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (Run, error)
	LatestRun(ctx context.Context) (Run, error)
	PreviousSuccessfulRun(ctx context.Context) (string, error)

	UpsertEntity(ctx context.Context, rec EntityRecord, runID string) error
	UpsertEdge(ctx context.Context, rec RelationshipRecord, runID string) error
	CurrentSnapshot(ctx context.Context, runID string, variant Variant) ([]EntityRecord, error)
	CurrentEdges(ctx context.Context, runID string, relType RelationType) ([]RelationshipRecord, error)

	// SweepMissingEdges increments the absence counter on edges not observed
	// in runID and deletes those absent for at least retention consecutive
	// runs. Returns the number of edges removed.
	SweepMissingEdges(ctx context.Context, runID string, retention int) (int, error)
}

// BlobStore archives raw page bodies for provenance and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes finalized run summaries to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for content hashing and provenance.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
