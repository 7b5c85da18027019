// Package harvester defines core types shared across subsystems.
package harvester

import (
	"fmt"
	"time"
)

// Variant identifies the kind of registry entity a record describes.
type Variant string

// Entity variants published by the registry.
const (
	VariantStandard  Variant = "standard"
	VariantCertifier Variant = "certifier"
	VariantCenter    Variant = "center"
	VariantSector    Variant = "sector"
	VariantCommittee Variant = "committee"
)

// Variants returns every known variant in a fixed order.
func Variants() []Variant {
	return []Variant{
		VariantStandard,
		VariantCertifier,
		VariantCenter,
		VariantSector,
		VariantCommittee,
	}
}

// RelationType identifies the kind of edge between two entities.
type RelationType string

// Relationship types observed in the registry.
const (
	RelationAccredits    RelationType = "accredits"     // certifier -> standard
	RelationEvaluates    RelationType = "evaluates"     // center -> standard
	RelationClassifiedAs RelationType = "classified-as" // standard -> sector
	RelationDevelopedBy  RelationType = "developed-by"  // standard -> committee
)

// RelationTypes returns every known relationship type in a fixed order.
func RelationTypes() []RelationType {
	return []RelationType{
		RelationAccredits,
		RelationEvaluates,
		RelationClassifiedAs,
		RelationDevelopedBy,
	}
}

// EntityRecord is one harvested registry entity. Attributes is the
// canonicalized semantic bag the content hash and field diff operate on;
// well-known keys include "title", "version" and "active".
type EntityRecord struct {
	Variant     Variant           `json:"variant"`
	NaturalKey  string            `json:"natural_key"`
	Attributes  map[string]string `json:"attributes"`
	Notes       []string          `json:"notes,omitempty"`
	SourceURL   string            `json:"source_url"`
	FirstSeen   time.Time         `json:"first_seen"`
	LastSeen    time.Time         `json:"last_seen"`
	ContentHash string            `json:"content_hash"`
}

// Title returns the entity's free-text title attribute.
func (r EntityRecord) Title() string { return r.Attributes["title"] }

// RelationshipRecord is a directed, typed edge between two entity natural keys.
type RelationshipRecord struct {
	Type          RelationType      `json:"type"`
	SourceVariant Variant           `json:"source_variant"`
	SourceKey     string            `json:"source_key"`
	TargetVariant Variant           `json:"target_variant"`
	TargetKey     string            `json:"target_key"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	SourceURL     string            `json:"source_url"`
	RunID         string            `json:"run_id"`
}

// Key returns the composite edge key used for upsert and diff matching.
func (r RelationshipRecord) Key() string {
	return fmt.Sprintf("%s|%s|%s", r.SourceKey, r.Type, r.TargetKey)
}

// Target is one fetchable unit of extraction work enumerated by a driver.
type Target struct {
	Component string            `json:"component"`
	URL       string            `json:"url"`
	RenderJS  bool              `json:"render_js"`
	Hints     map[string]string `json:"hints,omitempty"`
}

// InterceptedExchange is one background network exchange observed while a
// page rendered. BodySample holds up to the fetcher's configured cap; for
// structured-transport components it carries the full payload.
type InterceptedExchange struct {
	URL        string `json:"url"`
	Method     string `json:"method"`
	Status     int    `json:"status"`
	BodyHash   string `json:"body_hash"`
	BodySample []byte `json:"body_sample,omitempty"`
}

// RawPage is the resolved result of fetching one target.
type RawPage struct {
	URL        string
	FinalURL   string
	StatusCode int
	DOM        string
	Body       []byte
	Exchanges  []InterceptedExchange
	Duration   time.Duration
}

// ParseError records a per-row extraction failure. Non-fatal: the run
// continues and the error is counted against the driver.
type ParseError struct {
	Target Target `json:"target"`
	Reason string `json:"reason"`
}

// RunStatus represents the lifecycle state of a harvest run.
type RunStatus string

// Run status values persisted in the repository.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// DriverStats tracks extraction counters for one component within a run.
type DriverStats struct {
	Discovered    int `json:"discovered"`
	Extracted     int `json:"extracted"`
	Relationships int `json:"relationships"`
	ParseErrors   int `json:"parse_errors"`
	Retries       int `json:"retries"`
	FailedTargets int `json:"failed_targets"`
}

// GateResult is the outcome of one mandatory run-level validation gate.
type GateResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Run is the immutable record of one harvest execution. Never mutated after
// finalize.
type Run struct {
	ID            string                 `json:"id"`
	Status        RunStatus              `json:"status"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    *time.Time             `json:"finished_at,omitempty"`
	PreviousRunID string                 `json:"previous_run_id,omitempty"`
	DriverStats   map[string]DriverStats `json:"driver_stats"`
	GateResults   []GateResult           `json:"gate_results,omitempty"`
	ErrorText     string                 `json:"error_text,omitempty"`
}

// FieldChange is one attribute-level difference on a modified record.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// ModifiedEntry names a key whose content hash changed between runs, with
// the attribute-level differences.
type ModifiedEntry struct {
	Key    string        `json:"key"`
	Fields []FieldChange `json:"fields"`
}

// KeyChanges partitions the keys observed for one variant or relationship
// type across two runs. The four lists are disjoint and together cover every
// key seen in either run.
type KeyChanges struct {
	Added     []string        `json:"added"`
	Removed   []string        `json:"removed"`
	Modified  []ModifiedEntry `json:"modified"`
	Unchanged []string        `json:"unchanged"`
}

// ChangeSet is the diff engine's output: a derived, disposable artifact built
// fresh each run.
type ChangeSet struct {
	CurrentRunID  string                       `json:"current_run_id"`
	PreviousRunID string                       `json:"previous_run_id,omitempty"`
	NoBaseline    bool                         `json:"no_baseline"`
	Entities      map[Variant]*KeyChanges      `json:"entities"`
	Relationships map[RelationType]*KeyChanges `json:"relationships"`
}

// SummaryCounts flattens the change set into added/removed/modified totals
// keyed by variant or relationship type.
func (cs *ChangeSet) SummaryCounts() map[string]map[string]int {
	out := make(map[string]map[string]int)
	add := func(name string, kc *KeyChanges) {
		if kc == nil {
			return
		}
		out[name] = map[string]int{
			"added":     len(kc.Added),
			"removed":   len(kc.Removed),
			"modified":  len(kc.Modified),
			"unchanged": len(kc.Unchanged),
		}
	}
	for v, kc := range cs.Entities {
		add(string(v), kc)
	}
	for t, kc := range cs.Relationships {
		add(string(t), kc)
	}
	return out
}

// RunSummary is the flat, serializable artifact handed to publishing and
// observability collaborators when a run finalizes.
type RunSummary struct {
	RunID             string                    `json:"run_id"`
	Status            RunStatus                 `json:"status"`
	StartedAt         time.Time                 `json:"started_at"`
	FinishedAt        time.Time                 `json:"finished_at"`
	PreviousRunID     string                    `json:"previous_run_id,omitempty"`
	PerDriverCounts   map[string]DriverStats    `json:"per_driver_counts"`
	MandatoryGates    []GateResult              `json:"mandatory_gate_results"`
	ChangeSetCounts   map[string]map[string]int `json:"change_set_summary_counts"`
	NoBaseline        bool                      `json:"no_baseline"`
	UnclassifiedPages int                       `json:"unclassified_pages"`
}
