// Package coordinator drives one harvest run through its phases: discovery,
// extraction, edge sweep, validation gates, diff and finalization.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/madfam-io/renec-harvester-sub000/internal/config"
	"github.com/madfam-io/renec-harvester-sub000/internal/diff"
	"github.com/madfam-io/renec-harvester-sub000/internal/discovery"
	"github.com/madfam-io/renec-harvester-sub000/internal/drivers"
	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
	"github.com/madfam-io/renec-harvester-sub000/internal/metrics"
	"github.com/madfam-io/renec-harvester-sub000/internal/normalize"
	"github.com/madfam-io/renec-harvester-sub000/internal/validate"
)

type phase string

const (
	phaseInitialized phase = "initialized"
	phaseDiscovering phase = "discovering"
	phaseExtracting  phase = "extracting"
	phaseValidating  phase = "validating"
	phaseDiffing     phase = "diffing"
	phaseFinalized   phase = "finalized"
)

const defaultEdgeRetention = 3

// Deps bundles the collaborators a Coordinator needs. Fetcher should already
// be wrapped in the politeness gate; BlobStore and Publisher are optional.
type Deps struct {
	Registry  *drivers.Registry
	Fetcher   harvester.PageFetcher
	Repo      harvester.Repository
	BlobStore harvester.BlobStore
	Publisher harvester.Publisher
	Hasher    harvester.Hasher
	Clock     harvester.Clock
	IDs       harvester.IDGenerator
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Coordinator owns the run state machine. One Run call executes one harvest;
// instances are safe to reuse sequentially but not concurrently.
type Coordinator struct {
	cfg     config.Config
	deps    Deps
	checker *validate.Checker
	differ  *diff.Engine
	retry   *retryPolicy
}

// New validates the dependency set and builds a Coordinator.
func New(cfg config.Config, deps Deps) (*Coordinator, error) {
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("driver registry is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("page fetcher is required")
	case deps.Repo == nil:
		return nil, fmt.Errorf("repository is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("hasher is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return &Coordinator{
		cfg:     cfg,
		deps:    deps,
		checker: validate.New(deps.Repo, cfg.Gates.CoverageThresholds, deps.Logger),
		differ:  diff.New(deps.Repo, deps.Logger),
		retry:   newRetryPolicy(cfg.Fetch),
	}, nil
}

// Run executes one harvest end to end and returns the run summary and the
// change set against the previous successful run. Gate failures finalize the
// run as failed but still produce a change set; only infrastructure errors
// (repository unavailable, no run ID) return a non-nil error.
func (c *Coordinator) Run(ctx context.Context) (harvester.RunSummary, *harvester.ChangeSet, error) {
	runID, err := c.deps.IDs.NewID()
	if err != nil {
		return harvester.RunSummary{}, nil, fmt.Errorf("generating run id: %w", err)
	}
	previous, err := c.deps.Repo.PreviousSuccessfulRun(ctx)
	if err != nil {
		return harvester.RunSummary{}, nil, fmt.Errorf("resolving baseline: %w", err)
	}

	run := harvester.Run{
		ID:            runID,
		Status:        harvester.RunStatusRunning,
		StartedAt:     c.deps.Clock.Now(),
		PreviousRunID: previous,
		DriverStats:   make(map[string]harvester.DriverStats),
	}
	if err := c.deps.Repo.BeginRun(ctx, run); err != nil {
		return harvester.RunSummary{}, nil, fmt.Errorf("beginning run: %w", err)
	}
	c.logPhase(runID, phaseInitialized)

	c.logPhase(runID, phaseDiscovering)
	discovered, unclassified := c.discover(ctx)

	c.logPhase(runID, phaseExtracting)
	stats := c.extract(ctx, runID, discovered)
	run.DriverStats = stats

	retention := c.cfg.Harvest.EdgeRetention
	if retention <= 0 {
		retention = defaultEdgeRetention
	}
	swept, err := c.deps.Repo.SweepMissingEdges(ctx, runID, retention)
	if err != nil {
		return c.finalizeError(ctx, run, fmt.Errorf("sweeping stale edges: %w", err))
	}
	if swept > 0 {
		c.deps.Logger.Info("stale edges removed",
			zap.String("run_id", runID),
			zap.Int("removed", swept))
	}

	c.logPhase(runID, phaseValidating)
	gates, gatesPassed, err := c.checker.Run(ctx, runID)
	if err != nil {
		return c.finalizeError(ctx, run, fmt.Errorf("running gates: %w", err))
	}
	run.GateResults = gates

	c.logPhase(runID, phaseDiffing)
	changeSet, err := c.differ.Diff(ctx, runID, previous)
	if err != nil {
		return c.finalizeError(ctx, run, fmt.Errorf("diffing runs: %w", err))
	}

	run.Status = harvester.RunStatusSucceeded
	switch {
	case ctx.Err() != nil:
		run.Status = harvester.RunStatusCanceled
		run.ErrorText = ctx.Err().Error()
	case !gatesPassed:
		run.Status = harvester.RunStatusFailed
		run.ErrorText = gateFailureText(gates)
	}

	finished := c.deps.Clock.Now()
	run.FinishedAt = &finished
	if err := c.deps.Repo.FinalizeRun(ctx, run); err != nil {
		return harvester.RunSummary{}, nil, fmt.Errorf("finalizing run: %w", err)
	}
	c.logPhase(runID, phaseFinalized)
	c.deps.Metrics.RunFinished(string(run.Status))

	summary := harvester.RunSummary{
		RunID:             runID,
		Status:            run.Status,
		StartedAt:         run.StartedAt,
		FinishedAt:        finished,
		PreviousRunID:     previous,
		PerDriverCounts:   stats,
		MandatoryGates:    gates,
		ChangeSetCounts:   changeSet.SummaryCounts(),
		NoBaseline:        changeSet.NoBaseline,
		UnclassifiedPages: unclassified,
	}
	c.archiveSummary(ctx, summary)
	c.publish(ctx, summary)
	return summary, changeSet, nil
}

// discover walks the registry site from the configured roots. It returns the
// visited in-scope pages, later dispatched to extraction when a driver claims
// them, and a count of the pages no driver claims. Discovery never fails the
// run.
func (c *Coordinator) discover(ctx context.Context) ([]string, int) {
	roots := c.cfg.Harvest.RootURLs
	if len(roots) == 0 {
		return nil, 0
	}
	if _, err := url.Parse(roots[0]); err != nil {
		c.deps.Logger.Warn("malformed root url, skipping discovery",
			zap.String("url", roots[0]), zap.Error(err))
		return nil, 0
	}

	crawler := discovery.New(c.deps.Fetcher, harvester.FetchOptions{Timeout: c.cfg.FetchTimeout()}, c.deps.Logger)
	scope := discovery.HostScope(roots[0], nil)
	graph, err := crawler.Discover(ctx, roots, scope, c.cfg.Harvest.MaxCrawlDepth)
	if err != nil {
		c.deps.Logger.Warn("discovery aborted", zap.Error(err))
	}

	unclassified := 0
	for _, page := range graph.Pages {
		if _, ok := c.deps.Registry.Match(page); !ok {
			unclassified++
			c.deps.Logger.Info("unclassified page", zap.String("url", page))
		}
	}
	return graph.Pages, unclassified
}

// extract runs every registered driver: seed enumeration plus any crawled
// pages the driver claims, then a bounded worker pool fetching and parsing
// each target. Per-target failures are counted, never fatal.
func (c *Coordinator) extract(ctx context.Context, runID string, discovered []string) map[string]harvester.DriverStats {
	stats := make(map[string]*harvester.DriverStats)
	var statsMu sync.Mutex

	type work struct {
		driver harvester.Driver
		target harvester.Target
	}
	var targets []work
	seen := make(map[string]struct{})

	for _, driver := range c.deps.Registry.All() {
		component := driver.Component()
		stats[component] = &harvester.DriverStats{}
		seeds, err := driver.Seeds(ctx)
		if err != nil {
			c.deps.Logger.Error("seed enumeration failed",
				zap.String("component", component),
				zap.Error(err))
			stats[component].FailedTargets++
			continue
		}
		stats[component].Discovered = len(seeds)
		for _, target := range seeds {
			seen[targetKey(target.URL)] = struct{}{}
			targets = append(targets, work{driver: driver, target: target})
		}
	}

	for _, page := range discovered {
		driver, ok := c.deps.Registry.Match(page)
		if !ok {
			continue
		}
		key := targetKey(page)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		component := driver.Component()
		stats[component].Discovered++
		targets = append(targets, work{driver: driver, target: harvester.Target{
			Component: component,
			URL:       page,
			RenderJS:  c.cfg.Endpoints[component].TransportHint == "structured",
			Hints:     map[string]string{"origin": "discovery"},
		}})
	}

	concurrency := c.cfg.Harvest.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, item := range targets {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(item work) {
			defer wg.Done()
			defer func() { <-sem }()
			c.processTarget(ctx, runID, item.driver, item.target, stats[item.driver.Component()], &statsMu)
		}(item)
	}
	wg.Wait()

	out := make(map[string]harvester.DriverStats, len(stats))
	for component, s := range stats {
		out[component] = *s
	}
	return out
}

func (c *Coordinator) processTarget(
	ctx context.Context,
	runID string,
	driver harvester.Driver,
	target harvester.Target,
	stats *harvester.DriverStats,
	statsMu *sync.Mutex,
) {
	component := driver.Component()
	page, retries, err := c.fetchWithRetry(ctx, component, target)
	statsMu.Lock()
	stats.Retries += retries
	statsMu.Unlock()
	if err != nil {
		statsMu.Lock()
		stats.FailedTargets++
		statsMu.Unlock()
		c.deps.Logger.Error("target fetch failed",
			zap.String("component", component),
			zap.String("url", target.URL),
			zap.String("origin", targetOrigin(target)),
			zap.Int("retries", retries),
			zap.Error(err))
		return
	}

	c.archivePage(ctx, runID, component, page)

	entities, edges, parseErrs := driver.Parse(ctx, target, page)
	for _, parseErr := range parseErrs {
		c.deps.Metrics.ParseErrorObserved(component)
		c.deps.Logger.Warn("row parse failed",
			zap.String("component", component),
			zap.String("url", parseErr.Target.URL),
			zap.String("reason", parseErr.Reason))
	}
	statsMu.Lock()
	stats.ParseErrors += len(parseErrs)
	statsMu.Unlock()

	for _, raw := range entities {
		rec, err := normalize.Entity(c.deps.Hasher, raw)
		if err != nil {
			c.deps.Logger.Error("normalizing entity failed",
				zap.String("component", component),
				zap.String("key", raw.NaturalKey),
				zap.Error(err))
			continue
		}
		if rec.SourceURL == "" {
			rec.SourceURL = target.URL
		}
		if err := c.deps.Repo.UpsertEntity(ctx, rec, runID); err != nil {
			c.deps.Logger.Error("entity upsert failed",
				zap.String("component", component),
				zap.String("key", rec.NaturalKey),
				zap.Error(err))
			continue
		}
		c.deps.Metrics.RecordPersisted(string(rec.Variant))
		c.deps.Logger.Debug("entity persisted",
			zap.String("component", component),
			zap.String("key", rec.NaturalKey),
			zap.String("title", rec.Title()))
		statsMu.Lock()
		stats.Extracted++
		statsMu.Unlock()
	}

	for _, raw := range edges {
		rec := normalize.Edge(raw)
		if rec.SourceURL == "" {
			rec.SourceURL = target.URL
		}
		if err := c.deps.Repo.UpsertEdge(ctx, rec, runID); err != nil {
			c.deps.Logger.Error("edge upsert failed",
				zap.String("component", component),
				zap.String("key", rec.Key()),
				zap.Error(err))
			continue
		}
		c.deps.Metrics.EdgePersisted(string(rec.Type))
		statsMu.Lock()
		stats.Relationships++
		statsMu.Unlock()
	}
}

// fetchWithRetry fetches one target, retrying transient failures with
// backoff. Returns the page, the number of retries spent, and the last error
// when all attempts fail.
func (c *Coordinator) fetchWithRetry(ctx context.Context, component string, target harvester.Target) (harvester.RawPage, int, error) {
	opts := harvester.FetchOptions{
		RenderJS: target.RenderJS,
		Timeout:  c.cfg.FetchTimeout(),
	}
	retries := 0
	for attempt := 0; ; attempt++ {
		start := time.Now()
		c.deps.Metrics.FetchStarted()
		page, err := c.deps.Fetcher.Fetch(ctx, target.URL, opts)
		c.deps.Metrics.FetchFinished(component, err, time.Since(start))
		if err == nil {
			return page, retries, nil
		}
		if !c.retry.shouldRetry(err, attempt) {
			return harvester.RawPage{}, retries, err
		}
		retries++
		c.deps.Metrics.RetryObserved(component)
		c.deps.Logger.Warn("retrying fetch",
			zap.String("component", component),
			zap.String("url", target.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		timer := time.NewTimer(c.retry.backoff(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return harvester.RawPage{}, retries, ctx.Err()
		}
	}
}

// archivePage stores the raw body for provenance. Best effort: a storage
// failure is logged and the run continues.
func (c *Coordinator) archivePage(ctx context.Context, runID, component string, page harvester.RawPage) {
	if c.deps.BlobStore == nil || len(page.Body) == 0 {
		return
	}
	hash, err := c.deps.Hasher.Hash(page.Body)
	if err != nil {
		c.deps.Logger.Warn("hashing page body failed", zap.String("url", page.URL), zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s/%s.html", runID, component, hash)
	if prefix := c.cfg.Storage.Prefix; prefix != "" {
		path = prefix + "/" + path
	}
	contentType := c.cfg.Storage.ContentType
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	if _, err := c.deps.BlobStore.PutObject(ctx, path, contentType, page.Body); err != nil {
		c.deps.Logger.Warn("archiving page failed",
			zap.String("url", page.URL),
			zap.String("path", path),
			zap.Error(err))
	}
}

// archiveSummary writes the run summary JSON next to the archived pages.
// Best effort, like page archival.
func (c *Coordinator) archiveSummary(ctx context.Context, summary harvester.RunSummary) {
	if c.deps.BlobStore == nil {
		return
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		c.deps.Logger.Warn("encoding run summary failed",
			zap.String("run_id", summary.RunID), zap.Error(err))
		return
	}
	path := summary.RunID + "/summary.json"
	if prefix := c.cfg.Storage.Prefix; prefix != "" {
		path = prefix + "/" + path
	}
	if _, err := c.deps.BlobStore.PutObject(ctx, path, "application/json", data); err != nil {
		c.deps.Logger.Warn("archiving run summary failed",
			zap.String("run_id", summary.RunID),
			zap.String("path", path),
			zap.Error(err))
	}
}

func (c *Coordinator) publish(ctx context.Context, summary harvester.RunSummary) {
	if c.deps.Publisher == nil || !c.cfg.PubSub.Enabled {
		return
	}
	if summary.Status != harvester.RunStatusSucceeded {
		c.deps.Logger.Warn("run summary not published",
			zap.String("run_id", summary.RunID),
			zap.String("status", string(summary.Status)))
		return
	}
	if _, err := c.deps.Publisher.Publish(ctx, c.cfg.PubSub.TopicName, summary); err != nil {
		c.deps.Logger.Error("publishing run summary failed",
			zap.String("run_id", summary.RunID),
			zap.Error(err))
		return
	}
	c.deps.Logger.Info("run summary published",
		zap.String("run_id", summary.RunID),
		zap.String("topic", c.cfg.PubSub.TopicName))
}

// finalizeError records an infrastructure failure on the run, then returns
// it. Finalize itself is best effort at this point.
func (c *Coordinator) finalizeError(ctx context.Context, run harvester.Run, cause error) (harvester.RunSummary, *harvester.ChangeSet, error) {
	run.Status = harvester.RunStatusFailed
	run.ErrorText = cause.Error()
	finished := c.deps.Clock.Now()
	run.FinishedAt = &finished
	if err := c.deps.Repo.FinalizeRun(ctx, run); err != nil {
		c.deps.Logger.Error("finalizing failed run", zap.String("run_id", run.ID), zap.Error(err))
	}
	c.deps.Metrics.RunFinished(string(harvester.RunStatusFailed))
	return harvester.RunSummary{}, nil, cause
}

func (c *Coordinator) logPhase(runID string, p phase) {
	c.deps.Logger.Info("run phase", zap.String("run_id", runID), zap.String("phase", string(p)))
}

// targetKey is the dedup key for extraction work items. Falls back to the raw
// URL when normalization fails so a malformed target still dedups exactly.
func targetKey(raw string) string {
	if normalized, err := harvester.NormalizeURL(raw); err == nil {
		return normalized
	}
	return raw
}

// targetOrigin distinguishes driver-enumerated targets from crawl finds.
func targetOrigin(target harvester.Target) string {
	if origin := target.Hints["origin"]; origin != "" {
		return origin
	}
	return "seed"
}

func gateFailureText(gates []harvester.GateResult) string {
	for _, gate := range gates {
		if !gate.Passed {
			return fmt.Sprintf("gate %s failed: %s", gate.Name, gate.Detail)
		}
	}
	return "validation gates failed"
}
