// Package postgres implements the Repository interface on PostgreSQL using
// pgx. Live state sits in the entities and edges tables; per-run snapshots
// land in the observation tables the diff engine reads.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	MaxConns int32
}

// dbPool is the subset of pgxpool.Pool the repository uses, satisfied by
// pgxmock in tests.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Repository persists runs, entities and edges in Postgres.
type Repository struct {
	pool  dbPool
	clock harvester.Clock
}

// New connects a pool and returns a Repository.
func New(ctx context.Context, cfg Config, clock harvester.Clock) (*Repository, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, clock)
}

// NewWithPool constructs a Repository from an existing pool (primarily for
// testing).
func NewWithPool(pool dbPool, clock harvester.Clock) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &Repository{pool: pool, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

// Migrate creates the schema when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ,
	previous_run_id TEXT NOT NULL DEFAULT '',
	driver_stats    JSONB NOT NULL DEFAULT '{}',
	gate_results    JSONB NOT NULL DEFAULT '[]',
	error_text      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS entities (
	variant      TEXT NOT NULL,
	natural_key  TEXT NOT NULL,
	attributes   JSONB NOT NULL DEFAULT '{}',
	notes        JSONB NOT NULL DEFAULT '[]',
	source_url   TEXT NOT NULL DEFAULT '',
	first_seen   TIMESTAMPTZ NOT NULL,
	last_seen    TIMESTAMPTZ NOT NULL,
	content_hash TEXT NOT NULL,
	PRIMARY KEY (variant, natural_key)
);

CREATE TABLE IF NOT EXISTS entity_observations (
	run_id       TEXT NOT NULL,
	variant      TEXT NOT NULL,
	natural_key  TEXT NOT NULL,
	attributes   JSONB NOT NULL DEFAULT '{}',
	notes        JSONB NOT NULL DEFAULT '[]',
	source_url   TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL,
	PRIMARY KEY (run_id, variant, natural_key)
);

CREATE TABLE IF NOT EXISTS edges (
	rel_type       TEXT NOT NULL,
	source_variant TEXT NOT NULL,
	source_key     TEXT NOT NULL,
	target_variant TEXT NOT NULL,
	target_key     TEXT NOT NULL,
	attributes     JSONB NOT NULL DEFAULT '{}',
	source_url     TEXT NOT NULL DEFAULT '',
	last_run_id    TEXT NOT NULL,
	missing_runs   INT NOT NULL DEFAULT 0,
	PRIMARY KEY (rel_type, source_key, target_key)
);

CREATE TABLE IF NOT EXISTS edge_observations (
	run_id         TEXT NOT NULL,
	rel_type       TEXT NOT NULL,
	source_variant TEXT NOT NULL,
	source_key     TEXT NOT NULL,
	target_variant TEXT NOT NULL,
	target_key     TEXT NOT NULL,
	attributes     JSONB NOT NULL DEFAULT '{}',
	source_url     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, rel_type, source_key, target_key)
);
`

// BeginRun inserts a new run row in running state.
func (r *Repository) BeginRun(ctx context.Context, run harvester.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	stats, gates, err := marshalRunJSON(run)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO runs (id, status, started_at, previous_run_id, driver_stats, gate_results, error_text)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, string(run.Status), run.StartedAt, run.PreviousRunID, stats, gates, run.ErrorText)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinalizeRun records the terminal state. Only a running run can be
// finalized; anything else means the caller holds stale state.
func (r *Repository) FinalizeRun(ctx context.Context, run harvester.Run) error {
	stats, gates, err := marshalRunJSON(run)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
UPDATE runs
SET status = $2, finished_at = $3, driver_stats = $4, gate_results = $5, error_text = $6
WHERE id = $1 AND status = 'running'`,
		run.ID, string(run.Status), run.FinishedAt, stats, gates, run.ErrorText)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("run %s is not running", run.ID)
	}
	return nil
}

const runColumns = `id, status, started_at, finished_at, previous_run_id, driver_stats, gate_results, error_text`

// GetRun returns one run by ID.
func (r *Repository) GetRun(ctx context.Context, runID string) (harvester.Run, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return harvester.Run{}, fmt.Errorf("run %s: %w", runID, harvester.ErrNotFound)
	}
	if err != nil {
		return harvester.Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return run, nil
}

// LatestRun returns the most recently started run.
func (r *Repository) LatestRun(ctx context.Context) (harvester.Run, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return harvester.Run{}, fmt.Errorf("no runs recorded: %w", harvester.ErrNotFound)
	}
	if err != nil {
		return harvester.Run{}, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// PreviousSuccessfulRun returns the newest succeeded run ID, or "" when no
// baseline exists.
func (r *Repository) PreviousSuccessfulRun(ctx context.Context) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
SELECT id FROM runs WHERE status = 'succeeded' ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("previous successful run: %w", err)
	}
	return id, nil
}

// UpsertEntity writes the live row and the run observation. The conflict
// clause preserves first_seen and keeps last_seen monotonic.
func (r *Repository) UpsertEntity(ctx context.Context, rec harvester.EntityRecord, runID string) error {
	if rec.NaturalKey == "" {
		return fmt.Errorf("entity natural key is required")
	}
	attrs, notes, err := marshalRecordJSON(rec.Attributes, rec.Notes)
	if err != nil {
		return err
	}
	now := r.clock.Now()

	_, err = r.pool.Exec(ctx, `
INSERT INTO entities (variant, natural_key, attributes, notes, source_url, first_seen, last_seen, content_hash)
VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
ON CONFLICT (variant, natural_key) DO UPDATE SET
	attributes   = EXCLUDED.attributes,
	notes        = EXCLUDED.notes,
	source_url   = EXCLUDED.source_url,
	last_seen    = GREATEST(entities.last_seen, EXCLUDED.last_seen),
	content_hash = EXCLUDED.content_hash`,
		string(rec.Variant), rec.NaturalKey, attrs, notes, rec.SourceURL, now, rec.ContentHash)
	if err != nil {
		return fmt.Errorf("upsert entity %s/%s: %w", rec.Variant, rec.NaturalKey, err)
	}

	_, err = r.pool.Exec(ctx, `
INSERT INTO entity_observations (run_id, variant, natural_key, attributes, notes, source_url, content_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (run_id, variant, natural_key) DO UPDATE SET
	attributes   = EXCLUDED.attributes,
	notes        = EXCLUDED.notes,
	source_url   = EXCLUDED.source_url,
	content_hash = EXCLUDED.content_hash`,
		runID, string(rec.Variant), rec.NaturalKey, attrs, notes, rec.SourceURL, rec.ContentHash)
	if err != nil {
		return fmt.Errorf("record entity observation %s/%s: %w", rec.Variant, rec.NaturalKey, err)
	}
	return nil
}

// UpsertEdge writes the live edge, resetting its absence counter, and the
// run observation.
func (r *Repository) UpsertEdge(ctx context.Context, rec harvester.RelationshipRecord, runID string) error {
	if rec.SourceKey == "" || rec.TargetKey == "" {
		return fmt.Errorf("edge endpoints are required")
	}
	attrs, _, err := marshalRecordJSON(rec.Attributes, nil)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
INSERT INTO edges (rel_type, source_variant, source_key, target_variant, target_key, attributes, source_url, last_run_id, missing_runs)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0)
ON CONFLICT (rel_type, source_key, target_key) DO UPDATE SET
	attributes   = EXCLUDED.attributes,
	source_url   = EXCLUDED.source_url,
	last_run_id  = EXCLUDED.last_run_id,
	missing_runs = 0`,
		string(rec.Type), string(rec.SourceVariant), rec.SourceKey,
		string(rec.TargetVariant), rec.TargetKey, attrs, rec.SourceURL, runID)
	if err != nil {
		return fmt.Errorf("upsert edge %s: %w", rec.Key(), err)
	}

	_, err = r.pool.Exec(ctx, `
INSERT INTO edge_observations (run_id, rel_type, source_variant, source_key, target_variant, target_key, attributes, source_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (run_id, rel_type, source_key, target_key) DO UPDATE SET
	attributes = EXCLUDED.attributes,
	source_url = EXCLUDED.source_url`,
		runID, string(rec.Type), string(rec.SourceVariant), rec.SourceKey,
		string(rec.TargetVariant), rec.TargetKey, attrs, rec.SourceURL)
	if err != nil {
		return fmt.Errorf("record edge observation %s: %w", rec.Key(), err)
	}
	return nil
}

// CurrentSnapshot returns the entities of one variant as observed in runID.
func (r *Repository) CurrentSnapshot(ctx context.Context, runID string, variant harvester.Variant) ([]harvester.EntityRecord, error) {
	rows, err := r.pool.Query(ctx, `
SELECT o.natural_key, o.attributes, o.notes, o.source_url, o.content_hash, e.first_seen, e.last_seen
FROM entity_observations o
JOIN entities e ON e.variant = o.variant AND e.natural_key = o.natural_key
WHERE o.run_id = $1 AND o.variant = $2`, runID, string(variant))
	if err != nil {
		return nil, fmt.Errorf("query %s snapshot: %w", variant, err)
	}
	defer rows.Close()

	var out []harvester.EntityRecord
	for rows.Next() {
		var (
			rec       harvester.EntityRecord
			attrsJSON []byte
			notesJSON []byte
		)
		if err := rows.Scan(&rec.NaturalKey, &attrsJSON, &notesJSON, &rec.SourceURL, &rec.ContentHash, &rec.FirstSeen, &rec.LastSeen); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		if err := unmarshalRecordJSON(attrsJSON, notesJSON, &rec.Attributes, &rec.Notes); err != nil {
			return nil, err
		}
		rec.Variant = variant
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity rows: %w", err)
	}
	return out, nil
}

// CurrentEdges returns the relationships of one type as observed in runID.
func (r *Repository) CurrentEdges(ctx context.Context, runID string, relType harvester.RelationType) ([]harvester.RelationshipRecord, error) {
	rows, err := r.pool.Query(ctx, `
SELECT source_variant, source_key, target_variant, target_key, attributes, source_url
FROM edge_observations
WHERE run_id = $1 AND rel_type = $2`, runID, string(relType))
	if err != nil {
		return nil, fmt.Errorf("query %s edges: %w", relType, err)
	}
	defer rows.Close()

	var out []harvester.RelationshipRecord
	for rows.Next() {
		var (
			rec       harvester.RelationshipRecord
			srcVar    string
			tgtVar    string
			attrsJSON []byte
		)
		if err := rows.Scan(&srcVar, &rec.SourceKey, &tgtVar, &rec.TargetKey, &attrsJSON, &rec.SourceURL); err != nil {
			return nil, fmt.Errorf("scan edge row: %w", err)
		}
		if err := unmarshalRecordJSON(attrsJSON, nil, &rec.Attributes, nil); err != nil {
			return nil, err
		}
		rec.Type = relType
		rec.SourceVariant = harvester.Variant(srcVar)
		rec.TargetVariant = harvester.Variant(tgtVar)
		rec.RunID = runID
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edge rows: %w", err)
	}
	return out, nil
}

// SweepMissingEdges ages every edge not observed in runID and deletes those
// whose absence streak reached the retention window.
func (r *Repository) SweepMissingEdges(ctx context.Context, runID string, retention int) (int, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be > 0")
	}
	if _, err := r.pool.Exec(ctx, `
UPDATE edges SET missing_runs = missing_runs + 1 WHERE last_run_id <> $1`, runID); err != nil {
		return 0, fmt.Errorf("age missing edges: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
DELETE FROM edges WHERE missing_runs >= $1`, retention)
	if err != nil {
		return 0, fmt.Errorf("delete expired edges: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRun(row pgx.Row) (harvester.Run, error) {
	var (
		run       harvester.Run
		status    string
		statsJSON []byte
		gatesJSON []byte
	)
	if err := row.Scan(&run.ID, &status, &run.StartedAt, &run.FinishedAt, &run.PreviousRunID, &statsJSON, &gatesJSON, &run.ErrorText); err != nil {
		return harvester.Run{}, err
	}
	run.Status = harvester.RunStatus(status)
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &run.DriverStats); err != nil {
			return harvester.Run{}, fmt.Errorf("unmarshal driver stats: %w", err)
		}
	}
	if len(gatesJSON) > 0 {
		if err := json.Unmarshal(gatesJSON, &run.GateResults); err != nil {
			return harvester.Run{}, fmt.Errorf("unmarshal gate results: %w", err)
		}
	}
	return run, nil
}

func marshalRunJSON(run harvester.Run) ([]byte, []byte, error) {
	stats := run.DriverStats
	if stats == nil {
		stats = map[string]harvester.DriverStats{}
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal driver stats: %w", err)
	}
	gates := run.GateResults
	if gates == nil {
		gates = []harvester.GateResult{}
	}
	gatesJSON, err := json.Marshal(gates)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal gate results: %w", err)
	}
	return statsJSON, gatesJSON, nil
}

func marshalRecordJSON(attrs map[string]string, notes []string) ([]byte, []byte, error) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal attributes: %w", err)
	}
	if notes == nil {
		notes = []string{}
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal notes: %w", err)
	}
	return attrsJSON, notesJSON, nil
}

func unmarshalRecordJSON(attrsJSON, notesJSON []byte, attrs *map[string]string, notes *[]string) error {
	if len(attrsJSON) > 0 {
		if err := json.Unmarshal(attrsJSON, attrs); err != nil {
			return fmt.Errorf("unmarshal attributes: %w", err)
		}
	}
	if notes != nil && len(notesJSON) > 0 {
		if err := json.Unmarshal(notesJSON, notes); err != nil {
			return fmt.Errorf("unmarshal notes: %w", err)
		}
	}
	if len(*attrs) == 0 {
		*attrs = nil
	}
	if notes != nil && len(*notes) == 0 {
		*notes = nil
	}
	return nil
}
