// Package main hosts the harvester entrypoint.
//
// Architecture overview:
//   - CLI: cobra commands "harvest" (one full run) and "serve" (status HTTP
//     server). Viper populates config from a file plus HARVESTER_* env
//     overrides; zap provides structured logging.
//   - Fetch pipeline: a Colly-based static fetcher handles plain pages and a
//     Chromedp headless fetcher renders JavaScript-backed listings while
//     intercepting the XHR/fetch exchanges behind them. A router picks the
//     backend per target; a politeness gate enforces the global in-flight
//     ceiling, the requests-per-second limit and a jittered delay in front
//     of both.
//   - Extraction: one driver per registry component (standards, certifiers,
//     centers, sectors, committees) enumerates its targets and parses fetched
//     pages with goquery into normalized entity and relationship records.
//   - Persistence: records upsert into Postgres (or memory for local runs)
//     keyed by natural key, preserving first_seen and advancing last_seen;
//     every run also records an immutable observation snapshot. Raw page
//     bodies archive to the configured BlobStore (memory/local/GCS) keyed by
//     content hash.
//   - Run lifecycle: the coordinator walks discovery, extraction, the stale
//     edge sweep, validation gates and the change-set diff against the
//     previous successful run, then finalizes the run record. Succeeded run
//     summaries publish to Pub/Sub when configured.
//
// Operational notes:
//   - Concurrency model: bounded worker pool per run sized by
//     harvest.max_concurrency; headless fetches hold their own semaphore.
//     Shutdown is coordinated via context cancellation from SIGINT/SIGTERM,
//     and an interrupted run finalizes as canceled.
//   - Observability: zap logs carry run IDs and component names at phase
//     transitions; Prometheus counters and histograms track fetches, retries,
//     parse errors and persisted records, exported by the serve command's
//     /metrics handler.
package main
