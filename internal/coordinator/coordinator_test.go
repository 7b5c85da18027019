package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/madfam-io/renec-harvester-sub000/internal/config"
	"github.com/madfam-io/renec-harvester-sub000/internal/drivers"
	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
	"github.com/madfam-io/renec-harvester-sub000/internal/hash/sha256"
	"github.com/madfam-io/renec-harvester-sub000/internal/store/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu  sync.Mutex
	ids []string
	i   int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.i >= len(g.ids) {
		return "", fmt.Errorf("out of ids")
	}
	id := g.ids[g.i]
	g.i++
	return id, nil
}

// fakeFetcher serves canned pages and can fail a URL a set number of times
// before succeeding. It tracks the peak number of concurrent fetches.
type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]harvester.RawPage
	failures map[string][]error
	delay    time.Duration
	inFlight int
	peak     int
	fetched  []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, _ harvester.FetchOptions) (harvester.RawPage, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	queued := f.failures[url]
	var pending error
	if len(queued) > 0 {
		pending = queued[0]
		f.failures[url] = queued[1:]
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if pending != nil {
		return harvester.RawPage{}, pending
	}
	page, ok := f.pages[url]
	if !ok {
		return harvester.RawPage{}, &harvester.StatusError{URL: url, Code: 404}
	}
	return page, nil
}

func (f *fakeFetcher) peakInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

// fakeDriver emits fixed records for each of its seed targets.
type fakeDriver struct {
	component string
	variant   harvester.Variant
	seeds     []harvester.Target
	seedErr   error
	entities  map[string][]harvester.EntityRecord
	edges     map[string][]harvester.RelationshipRecord
	parseErrs map[string][]harvester.ParseError
}

func (d *fakeDriver) Component() string          { return d.component }
func (d *fakeDriver) Variant() harvester.Variant { return d.variant }
func (d *fakeDriver) Matches(url string) bool    { return strings.Contains(url, d.component) }

func (d *fakeDriver) Seeds(context.Context) ([]harvester.Target, error) {
	return d.seeds, d.seedErr
}

func (d *fakeDriver) Parse(_ context.Context, target harvester.Target, _ harvester.RawPage) ([]harvester.EntityRecord, []harvester.RelationshipRecord, []harvester.ParseError) {
	return d.entities[target.URL], d.edges[target.URL], d.parseErrs[target.URL]
}

type fakeBlobStore struct {
	mu    sync.Mutex
	paths []string
}

func (b *fakeBlobStore) PutObject(_ context.Context, path, _ string, _ []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paths = append(b.paths, path)
	return "mem://" + path, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []any
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}

func target(component, url string) harvester.Target {
	return harvester.Target{Component: component, URL: url}
}

func entity(variant harvester.Variant, key, title string) harvester.EntityRecord {
	return harvester.EntityRecord{
		Variant:    variant,
		NaturalKey: key,
		Attributes: map[string]string{"title": title},
	}
}

func baseConfig() config.Config {
	cfg := config.Config{}
	cfg.Harvest.MaxConcurrency = 4
	cfg.Fetch.MaxRetries = 3
	cfg.Fetch.BackoffInitialMs = 1
	cfg.Fetch.BackoffMaxMs = 2
	return cfg
}

// standardAndSector builds a two-driver registry whose standard driver also
// emits a classified-as edge into the sector driver's entity.
func standardAndSector(entities map[string][]harvester.EntityRecord, edges map[string][]harvester.RelationshipRecord) (*drivers.Registry, error) {
	std := &fakeDriver{
		component: "standard",
		variant:   harvester.VariantStandard,
		seeds:     []harvester.Target{target("standard", "https://reg.test/standard/list")},
		entities:  entities,
		edges:     edges,
	}
	sec := &fakeDriver{
		component: "sector",
		variant:   harvester.VariantSector,
		seeds:     []harvester.Target{target("sector", "https://reg.test/sector/list")},
		entities: map[string][]harvester.EntityRecord{
			"https://reg.test/sector/list": {entity(harvester.VariantSector, "SEC-01", "Turismo")},
		},
	}
	return drivers.NewRegistry(std, sec)
}

func newCoordinator(t *testing.T, cfg config.Config, deps Deps) *Coordinator {
	t.Helper()
	if deps.Hasher == nil {
		deps.Hasher = sha256.New()
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	}
	if deps.IDs == nil {
		deps.IDs = &seqIDs{ids: []string{"run-1", "run-2", "run-3"}}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	coord, err := New(cfg, deps)
	require.NoError(t, err)
	return coord
}

func TestRun_FreshRunSucceeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	registry, err := standardAndSector(
		map[string][]harvester.EntityRecord{
			"https://reg.test/standard/list": {
				entity(harvester.VariantStandard, "EC0100", "Alfarería"),
				entity(harvester.VariantStandard, "EC0200", "Bordado"),
			},
		},
		map[string][]harvester.RelationshipRecord{
			"https://reg.test/standard/list": {{
				Type:          harvester.RelationClassifiedAs,
				SourceVariant: harvester.VariantStandard,
				SourceKey:     "EC0100",
				TargetVariant: harvester.VariantSector,
				TargetKey:     "SEC-01",
			}},
		},
	)
	require.NoError(t, err)

	fetcher := &fakeFetcher{pages: map[string]harvester.RawPage{
		"https://reg.test/standard/list": {URL: "https://reg.test/standard/list", StatusCode: 200, Body: []byte("<html>std</html>")},
		"https://reg.test/sector/list":   {URL: "https://reg.test/sector/list", StatusCode: 200, Body: []byte("<html>sec</html>")},
	}}
	repo := memory.New(fixedClock{now: time.Now()})
	blobs := &fakeBlobStore{}
	pub := &fakePublisher{}

	cfg := baseConfig()
	cfg.Gates.CoverageThresholds = map[string]int{"standard": 2, "sector": 1}
	cfg.PubSub.Enabled = true
	cfg.PubSub.TopicName = "harvest-runs"

	coord := newCoordinator(t, cfg, Deps{
		Registry:  registry,
		Fetcher:   fetcher,
		Repo:      repo,
		BlobStore: blobs,
		Publisher: pub,
	})

	summary, changeSet, err := coord.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, harvester.RunStatusSucceeded, summary.Status)
	require.True(t, summary.NoBaseline)
	require.Equal(t, 2, summary.PerDriverCounts["standard"].Extracted)
	require.Equal(t, 1, summary.PerDriverCounts["standard"].Relationships)
	require.Equal(t, 1, summary.PerDriverCounts["sector"].Extracted)
	for _, gate := range summary.MandatoryGates {
		require.True(t, gate.Passed, gate.Name)
	}

	require.True(t, changeSet.NoBaseline)
	require.Len(t, changeSet.Entities[harvester.VariantStandard].Added, 2)

	run, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, harvester.RunStatusSucceeded, run.Status)
	require.NotNil(t, run.FinishedAt)

	require.Len(t, blobs.paths, 3, "two pages plus the summary artifact")
	require.Contains(t, blobs.paths[0], "run-1/")
	require.Equal(t, "run-1/summary.json", blobs.paths[2])
	require.Equal(t, []string{"harvest-runs"}, pub.topics)
}

func TestRun_RemovedAndModifiedAgainstBaseline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fetcher := &fakeFetcher{pages: map[string]harvester.RawPage{
		"https://reg.test/standard/list": {StatusCode: 200, Body: []byte("a")},
		"https://reg.test/sector/list":   {StatusCode: 200, Body: []byte("b")},
	}}
	repo := memory.New(fixedClock{now: time.Now()})
	ids := &seqIDs{ids: []string{"run-1", "run-2"}}
	cfg := baseConfig()

	runOnce := func(titles map[string]string) (harvester.RunSummary, *harvester.ChangeSet) {
		var recs []harvester.EntityRecord
		for key, title := range titles {
			recs = append(recs, entity(harvester.VariantStandard, key, title))
		}
		registry, err := standardAndSector(
			map[string][]harvester.EntityRecord{"https://reg.test/standard/list": recs}, nil)
		require.NoError(t, err)

		coord := newCoordinator(t, cfg, Deps{
			Registry: registry,
			Fetcher:  fetcher,
			Repo:     repo,
			IDs:      ids,
		})
		summary, changeSet, err := coord.Run(ctx)
		require.NoError(t, err)
		return summary, changeSet
	}

	runOnce(map[string]string{"EC0100": "a", "EC0200": "b", "EC0300": "c"})
	summary, changeSet := runOnce(map[string]string{"EC0100": "a", "EC0300": "c nueva"})

	require.Equal(t, harvester.RunStatusSucceeded, summary.Status)
	require.False(t, changeSet.NoBaseline)
	require.Equal(t, "run-1", changeSet.PreviousRunID)

	kc := changeSet.Entities[harvester.VariantStandard]
	require.Empty(t, kc.Added)
	require.Equal(t, []string{"EC0200"}, kc.Removed)
	require.Equal(t, []string{"EC0100"}, kc.Unchanged)
	require.Len(t, kc.Modified, 1)
	require.Equal(t, "EC0300", kc.Modified[0].Key)
	require.Equal(t, "title", kc.Modified[0].Fields[0].Field)
}

func TestRun_TransientFailureRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	url := "https://reg.test/standard/list"
	registry, err := standardAndSector(
		map[string][]harvester.EntityRecord{url: {entity(harvester.VariantStandard, "EC0100", "a")}}, nil)
	require.NoError(t, err)

	fetcher := &fakeFetcher{
		pages: map[string]harvester.RawPage{
			url:                            {StatusCode: 200, Body: []byte("ok")},
			"https://reg.test/sector/list": {StatusCode: 200, Body: []byte("ok")},
		},
		failures: map[string][]error{url: {
			&harvester.StatusError{URL: url, Code: 503},
			&harvester.StatusError{URL: url, Code: 429},
		}},
	}
	repo := memory.New(fixedClock{now: time.Now()})

	coord := newCoordinator(t, baseConfig(), Deps{Registry: registry, Fetcher: fetcher, Repo: repo})
	summary, _, err := coord.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, harvester.RunStatusSucceeded, summary.Status)
	require.Equal(t, 2, summary.PerDriverCounts["standard"].Retries)
	require.Equal(t, 1, summary.PerDriverCounts["standard"].Extracted)
	require.Zero(t, summary.PerDriverCounts["standard"].FailedTargets)
}

func TestRun_PermanentFailureNotRetried(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	url := "https://reg.test/standard/list"
	registry, err := standardAndSector(
		map[string][]harvester.EntityRecord{url: {entity(harvester.VariantStandard, "EC0100", "a")}}, nil)
	require.NoError(t, err)

	fetcher := &fakeFetcher{pages: map[string]harvester.RawPage{
		"https://reg.test/sector/list": {StatusCode: 200, Body: []byte("ok")},
	}}
	repo := memory.New(fixedClock{now: time.Now()})

	coord := newCoordinator(t, baseConfig(), Deps{Registry: registry, Fetcher: fetcher, Repo: repo})
	summary, _, err := coord.Run(ctx)
	require.NoError(t, err)

	stats := summary.PerDriverCounts["standard"]
	require.Equal(t, 1, stats.FailedTargets)
	require.Zero(t, stats.Retries)
	require.Zero(t, stats.Extracted)
}

func TestRun_GateFailureFinalizesAsFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	registry, err := standardAndSector(
		map[string][]harvester.EntityRecord{
			"https://reg.test/standard/list": {entity(harvester.VariantStandard, "EC0100", "a")},
		}, nil)
	require.NoError(t, err)

	fetcher := &fakeFetcher{pages: map[string]harvester.RawPage{
		"https://reg.test/standard/list": {StatusCode: 200, Body: []byte("a")},
		"https://reg.test/sector/list":   {StatusCode: 200, Body: []byte("b")},
	}}
	repo := memory.New(fixedClock{now: time.Now()})

	cfg := baseConfig()
	cfg.Gates.CoverageThresholds = map[string]int{"standard": 100}

	coord := newCoordinator(t, cfg, Deps{Registry: registry, Fetcher: fetcher, Repo: repo})
	summary, changeSet, err := coord.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, harvester.RunStatusFailed, summary.Status)
	require.NotNil(t, changeSet, "gate failure still produces a change set")

	run, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, harvester.RunStatusFailed, run.Status)
	require.Contains(t, run.ErrorText, "coverage")

	// A failed run never becomes the next baseline.
	baseline, err := repo.PreviousSuccessfulRun(ctx)
	require.NoError(t, err)
	require.Empty(t, baseline)
}

func TestRun_CancellationFinalizesAsCanceled(t *testing.T) {
	t.Parallel()

	registry, err := standardAndSector(
		map[string][]harvester.EntityRecord{
			"https://reg.test/standard/list": {entity(harvester.VariantStandard, "EC0100", "a")},
		}, nil)
	require.NoError(t, err)

	fetcher := &fakeFetcher{pages: map[string]harvester.RawPage{
		"https://reg.test/standard/list": {StatusCode: 200, Body: []byte("a")},
		"https://reg.test/sector/list":   {StatusCode: 200, Body: []byte("b")},
	}}
	repo := memory.New(fixedClock{now: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	coord := newCoordinator(t, baseConfig(), Deps{Registry: registry, Fetcher: fetcher, Repo: repo})
	summary, _, err := coord.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, harvester.RunStatusCanceled, summary.Status)

	run, err := repo.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, harvester.RunStatusCanceled, run.Status)
	require.Empty(t, fetcher.fetched, "no targets fetched after cancellation")
}

func TestRun_FailedRunIsNotPublished(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	registry, err := standardAndSector(
		map[string][]harvester.EntityRecord{
			"https://reg.test/standard/list": {entity(harvester.VariantStandard, "EC0100", "a")},
		}, nil)
	require.NoError(t, err)

	fetcher := &fakeFetcher{pages: map[string]harvester.RawPage{
		"https://reg.test/standard/list": {StatusCode: 200, Body: []byte("a")},
		"https://reg.test/sector/list":   {StatusCode: 200, Body: []byte("b")},
	}}
	repo := memory.New(fixedClock{now: time.Now()})
	pub := &fakePublisher{}

	cfg := baseConfig()
	cfg.Gates.CoverageThresholds = map[string]int{"standard": 100}
	cfg.PubSub.Enabled = true
	cfg.PubSub.TopicName = "harvest-runs"

	coord := newCoordinator(t, cfg, Deps{Registry: registry, Fetcher: fetcher, Repo: repo, Publisher: pub})
	summary, _, err := coord.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, harvester.RunStatusFailed, summary.Status)
	require.Empty(t, pub.topics, "failed runs stay unpublished")
}

func TestRun_SeedFailureKeepsOtherDriversRunning(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	std := &fakeDriver{
		component: "standard",
		variant:   harvester.VariantStandard,
		seedErr:   fmt.Errorf("listing unreachable"),
	}
	sec := &fakeDriver{
		component: "sector",
		variant:   harvester.VariantSector,
		seeds:     []harvester.Target{target("sector", "https://reg.test/sector/list")},
		entities: map[string][]harvester.EntityRecord{
			"https://reg.test/sector/list": {entity(harvester.VariantSector, "SEC-01", "Turismo")},
		},
	}
	registry, err := drivers.NewRegistry(std, sec)
	require.NoError(t, err)

	fetcher := &fakeFetcher{pages: map[string]harvester.RawPage{
		"https://reg.test/sector/list": {StatusCode: 200, Body: []byte("ok")},
	}}
	repo := memory.New(fixedClock{now: time.Now()})

	coord := newCoordinator(t, baseConfig(), Deps{Registry: registry, Fetcher: fetcher, Repo: repo})
	summary, _, err := coord.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.PerDriverCounts["standard"].FailedTargets)
	require.Equal(t, 1, summary.PerDriverCounts["sector"].Extracted)
}

func TestRun_BoundedConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var seeds []harvester.Target
	pages := make(map[string]harvester.RawPage)
	entities := make(map[string][]harvester.EntityRecord)
	for i := 0; i < 12; i++ {
		u := fmt.Sprintf("https://reg.test/standard/list?pagina=%d", i+1)
		seeds = append(seeds, target("standard", u))
		pages[u] = harvester.RawPage{StatusCode: 200, Body: []byte("ok")}
		entities[u] = []harvester.EntityRecord{
			entity(harvester.VariantStandard, fmt.Sprintf("EC%04d", i+1), "t"),
		}
	}
	registry, err := drivers.NewRegistry(&fakeDriver{
		component: "standard",
		variant:   harvester.VariantStandard,
		seeds:     seeds,
		entities:  entities,
	})
	require.NoError(t, err)

	fetcher := &fakeFetcher{pages: pages, delay: 10 * time.Millisecond}
	repo := memory.New(fixedClock{now: time.Now()})

	cfg := baseConfig()
	cfg.Harvest.MaxConcurrency = 3

	coord := newCoordinator(t, cfg, Deps{Registry: registry, Fetcher: fetcher, Repo: repo})
	summary, _, err := coord.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 12, summary.PerDriverCounts["standard"].Extracted)
	require.LessOrEqual(t, fetcher.peakInFlight(), 3)
}

func TestRun_ParseErrorsCountedNotFatal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	url := "https://reg.test/standard/list"
	registry, err := standardAndSector(
		map[string][]harvester.EntityRecord{url: {entity(harvester.VariantStandard, "EC0100", "a")}}, nil)
	require.NoError(t, err)
	std, _ := registry.Get("standard")
	std.(*fakeDriver).parseErrs = map[string][]harvester.ParseError{
		url: {{Target: target("standard", url), Reason: "malformed row"}},
	}

	fetcher := &fakeFetcher{pages: map[string]harvester.RawPage{
		url:                            {StatusCode: 200, Body: []byte("a")},
		"https://reg.test/sector/list": {StatusCode: 200, Body: []byte("b")},
	}}
	repo := memory.New(fixedClock{now: time.Now()})

	coord := newCoordinator(t, baseConfig(), Deps{Registry: registry, Fetcher: fetcher, Repo: repo})
	summary, _, err := coord.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, harvester.RunStatusSucceeded, summary.Status)
	require.Equal(t, 1, summary.PerDriverCounts["standard"].ParseErrors)
	require.Equal(t, 1, summary.PerDriverCounts["standard"].Extracted)
}

func TestRun_DiscoveryCountsUnclassifiedPages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := "https://reg.test/"
	registry, err := standardAndSector(nil, nil)
	require.NoError(t, err)

	fetcher := &fakeFetcher{pages: map[string]harvester.RawPage{
		root: {
			StatusCode: 200,
			DOM:        `<html><body><a href="/acerca">Acerca</a></body></html>`,
		},
		"https://reg.test/acerca":        {StatusCode: 200, DOM: "<html></html>"},
		"https://reg.test/standard/list": {StatusCode: 200, Body: []byte("a")},
		"https://reg.test/sector/list":   {StatusCode: 200, Body: []byte("b")},
	}}
	repo := memory.New(fixedClock{now: time.Now()})

	cfg := baseConfig()
	cfg.Harvest.RootURLs = []string{root}
	cfg.Harvest.MaxCrawlDepth = 1

	coord := newCoordinator(t, cfg, Deps{Registry: registry, Fetcher: fetcher, Repo: repo})
	summary, _, err := coord.Run(ctx)
	require.NoError(t, err)
	// Neither the root nor /acerca matches a driver pattern.
	require.Equal(t, 2, summary.UnclassifiedPages)
}

func TestRun_DiscoveredPagesDispatchedToDrivers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	root := "https://reg.test/"
	detail := "https://reg.test/standard/detail?id=7"
	registry, err := standardAndSector(
		map[string][]harvester.EntityRecord{
			"https://reg.test/standard/list": {entity(harvester.VariantStandard, "EC0100", "Alfarería")},
			detail:                           {entity(harvester.VariantStandard, "EC0999", "Soldadura")},
		}, nil)
	require.NoError(t, err)

	// The root links to a detail page no driver enumerates, plus the listing
	// the standard driver already seeds.
	fetcher := &fakeFetcher{pages: map[string]harvester.RawPage{
		root: {
			StatusCode: 200,
			DOM: fmt.Sprintf(
				`<html><body><a href="%s">Detalle</a> <a href="/standard/list">Listado</a></body></html>`,
				detail,
			),
		},
		detail:                           {StatusCode: 200, Body: []byte("detail")},
		"https://reg.test/standard/list": {StatusCode: 200, Body: []byte("a")},
		"https://reg.test/sector/list":   {StatusCode: 200, Body: []byte("b")},
	}}
	repo := memory.New(fixedClock{now: time.Now()})

	cfg := baseConfig()
	cfg.Harvest.RootURLs = []string{root}
	cfg.Harvest.MaxCrawlDepth = 1

	coord := newCoordinator(t, cfg, Deps{Registry: registry, Fetcher: fetcher, Repo: repo})
	summary, _, err := coord.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, harvester.RunStatusSucceeded, summary.Status)

	// One seed plus the crawled detail page; the re-crawled listing dedups
	// against the seed instead of being extracted twice.
	require.Equal(t, 2, summary.PerDriverCounts["standard"].Discovered)
	require.Equal(t, 2, summary.PerDriverCounts["standard"].Extracted)
	require.Equal(t, 1, summary.UnclassifiedPages)

	recs, err := repo.CurrentSnapshot(ctx, "run-1", harvester.VariantStandard)
	require.NoError(t, err)
	keys := make([]string, 0, len(recs))
	for _, rec := range recs {
		keys = append(keys, rec.NaturalKey)
	}
	require.ElementsMatch(t, []string{"EC0100", "EC0999"}, keys)
}
