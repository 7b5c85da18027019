// Package memory implements the Repository interface in process memory, for
// tests and local development runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

type edgeState struct {
	rec         harvester.RelationshipRecord
	missingRuns int
}

// Repository keeps entities, edges and runs in maps guarded by one mutex.
// Concurrent upserts to the same natural key serialize on the lock, matching
// the atomic upsert contract the Postgres implementation provides.
type Repository struct {
	mu    sync.Mutex
	clock harvester.Clock

	runs     map[string]harvester.Run
	runOrder []string

	entities map[harvester.Variant]map[string]harvester.EntityRecord
	edges    map[string]*edgeState

	// Per-run snapshots: the record as persisted during that run. The diff
	// engine reads two of these without touching live state.
	entitySnaps map[string]map[harvester.Variant]map[string]harvester.EntityRecord
	edgeSnaps   map[string]map[harvester.RelationType]map[string]harvester.RelationshipRecord
}

// New creates an empty in-memory repository.
func New(clock harvester.Clock) *Repository {
	return &Repository{
		clock:       clock,
		runs:        make(map[string]harvester.Run),
		entities:    make(map[harvester.Variant]map[string]harvester.EntityRecord),
		edges:       make(map[string]*edgeState),
		entitySnaps: make(map[string]map[harvester.Variant]map[string]harvester.EntityRecord),
		edgeSnaps:   make(map[string]map[harvester.RelationType]map[string]harvester.RelationshipRecord),
	}
}

// BeginRun records a new run in running state.
func (r *Repository) BeginRun(_ context.Context, run harvester.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if _, dup := r.runs[run.ID]; dup {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	r.runs[run.ID] = run
	r.runOrder = append(r.runOrder, run.ID)
	return nil
}

// FinalizeRun stores the run's terminal state. A finalized run is never
// mutated again.
func (r *Repository) FinalizeRun(_ context.Context, run harvester.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.runs[run.ID]
	if !ok {
		return fmt.Errorf("run %s not found", run.ID)
	}
	if existing.Status != harvester.RunStatusRunning {
		return fmt.Errorf("run %s already finalized", run.ID)
	}
	r.runs[run.ID] = run
	return nil
}

// GetRun returns one run by ID.
func (r *Repository) GetRun(_ context.Context, runID string) (harvester.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return harvester.Run{}, fmt.Errorf("run %s: %w", runID, harvester.ErrNotFound)
	}
	return run, nil
}

// LatestRun returns the most recently started run.
func (r *Repository) LatestRun(_ context.Context) (harvester.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runOrder) == 0 {
		return harvester.Run{}, fmt.Errorf("no runs recorded: %w", harvester.ErrNotFound)
	}
	return r.runs[r.runOrder[len(r.runOrder)-1]], nil
}

// PreviousSuccessfulRun returns the most recent run finalized as succeeded,
// or "" when no baseline exists.
func (r *Repository) PreviousSuccessfulRun(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.runOrder) - 1; i >= 0; i-- {
		if run := r.runs[r.runOrder[i]]; run.Status == harvester.RunStatusSucceeded {
			return run.ID, nil
		}
	}
	return "", nil
}

// UpsertEntity persists one entity under its natural key: first_seen is
// preserved once set, last_seen only moves forward, attributes are
// last-write-wins. The record is also captured in the run's snapshot.
func (r *Repository) UpsertEntity(_ context.Context, rec harvester.EntityRecord, runID string) error {
	if rec.NaturalKey == "" {
		return fmt.Errorf("entity natural key is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	byKey, ok := r.entities[rec.Variant]
	if !ok {
		byKey = make(map[string]harvester.EntityRecord)
		r.entities[rec.Variant] = byKey
	}

	if existing, seen := byKey[rec.NaturalKey]; seen {
		rec.FirstSeen = existing.FirstSeen
		rec.LastSeen = now
		if existing.LastSeen.After(now) {
			rec.LastSeen = existing.LastSeen
		}
	} else {
		rec.FirstSeen = now
		rec.LastSeen = now
	}
	byKey[rec.NaturalKey] = rec

	snap := r.entitySnaps[runID]
	if snap == nil {
		snap = make(map[harvester.Variant]map[string]harvester.EntityRecord)
		r.entitySnaps[runID] = snap
	}
	if snap[rec.Variant] == nil {
		snap[rec.Variant] = make(map[string]harvester.EntityRecord)
	}
	snap[rec.Variant][rec.NaturalKey] = rec
	return nil
}

// UpsertEdge persists one relationship under its composite key and resets
// its absence counter.
func (r *Repository) UpsertEdge(_ context.Context, rec harvester.RelationshipRecord, runID string) error {
	if rec.SourceKey == "" || rec.TargetKey == "" {
		return fmt.Errorf("edge endpoints are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.RunID = runID
	key := rec.Key()
	r.edges[key] = &edgeState{rec: rec}

	snap := r.edgeSnaps[runID]
	if snap == nil {
		snap = make(map[harvester.RelationType]map[string]harvester.RelationshipRecord)
		r.edgeSnaps[runID] = snap
	}
	if snap[rec.Type] == nil {
		snap[rec.Type] = make(map[string]harvester.RelationshipRecord)
	}
	snap[rec.Type][key] = rec
	return nil
}

// CurrentSnapshot returns the entities of one variant as observed in runID.
func (r *Repository) CurrentSnapshot(_ context.Context, runID string, variant harvester.Variant) ([]harvester.EntityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []harvester.EntityRecord
	for _, rec := range r.entitySnaps[runID][variant] {
		out = append(out, rec)
	}
	return out, nil
}

// CurrentEdges returns the relationships of one type as observed in runID.
func (r *Repository) CurrentEdges(_ context.Context, runID string, relType harvester.RelationType) ([]harvester.RelationshipRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []harvester.RelationshipRecord
	for _, rec := range r.edgeSnaps[runID][relType] {
		out = append(out, rec)
	}
	return out, nil
}

// SweepMissingEdges increments the absence counter on every edge not
// observed in runID and deletes those absent for retention consecutive runs.
func (r *Repository) SweepMissingEdges(_ context.Context, runID string, retention int) (int, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be > 0")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, state := range r.edges {
		if state.rec.RunID == runID {
			state.missingRuns = 0
			continue
		}
		state.missingRuns++
		if state.missingRuns >= retention {
			delete(r.edges, key)
			removed++
		}
	}
	return removed, nil
}

// EntityCount reports persisted entities for one variant (test helper).
func (r *Repository) EntityCount(variant harvester.Variant) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entities[variant])
}

// EdgeCount reports live edges across all types (test helper).
func (r *Repository) EdgeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.edges)
}
