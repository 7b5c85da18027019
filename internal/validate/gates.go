// Package validate runs the mandatory gates a harvest must clear before it
// can finalize as succeeded: natural keys present on every record, per-variant
// coverage above the configured floors, and relationship endpoints resolving
// to persisted entities.
package validate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

const maxDetailItems = 10

// Checker evaluates a run's snapshot against the configured gates.
type Checker struct {
	repo       harvester.Repository
	thresholds map[string]int
	logger     *zap.Logger
}

// New builds a Checker. thresholds maps variant name to the minimum number
// of records the run must have persisted for that variant; variants absent
// from the map have no coverage floor.
func New(repo harvester.Repository, thresholds map[string]int, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{repo: repo, thresholds: thresholds, logger: logger}
}

// Run evaluates every gate against runID's snapshot. It returns one result
// per gate and true only when all gates passed. A repository read failure is
// an error, not a gate failure.
func (c *Checker) Run(ctx context.Context, runID string) ([]harvester.GateResult, bool, error) {
	snapshot := make(map[harvester.Variant]map[string]struct{})
	var missingKeys int
	counts := make(map[harvester.Variant]int)

	for _, variant := range harvester.Variants() {
		recs, err := c.repo.CurrentSnapshot(ctx, runID, variant)
		if err != nil {
			return nil, false, fmt.Errorf("reading %s snapshot: %w", variant, err)
		}
		keys := make(map[string]struct{}, len(recs))
		for _, rec := range recs {
			if rec.NaturalKey == "" {
				missingKeys++
				continue
			}
			keys[rec.NaturalKey] = struct{}{}
		}
		snapshot[variant] = keys
		counts[variant] = len(recs)
	}

	results := []harvester.GateResult{
		c.naturalKeyGate(missingKeys),
		c.coverageGate(counts),
	}
	integrity, err := c.integrityGate(ctx, runID, snapshot)
	if err != nil {
		return nil, false, err
	}
	results = append(results, integrity)

	passed := true
	for _, res := range results {
		if !res.Passed {
			passed = false
			c.logger.Warn("validation gate failed",
				zap.String("run_id", runID),
				zap.String("gate", res.Name),
				zap.String("detail", res.Detail))
		}
	}
	return results, passed, nil
}

func (c *Checker) naturalKeyGate(missing int) harvester.GateResult {
	res := harvester.GateResult{Name: "natural_key_present", Passed: missing == 0}
	if missing > 0 {
		res.Detail = fmt.Sprintf("%d records without a natural key", missing)
	}
	return res
}

func (c *Checker) coverageGate(counts map[harvester.Variant]int) harvester.GateResult {
	var short []string
	for _, variant := range harvester.Variants() {
		floor, gated := c.thresholds[string(variant)]
		if !gated {
			continue
		}
		if got := counts[variant]; got < floor {
			short = append(short, fmt.Sprintf("%s: %d < %d", variant, got, floor))
		}
	}
	res := harvester.GateResult{Name: "coverage", Passed: len(short) == 0}
	if len(short) > 0 {
		res.Detail = strings.Join(short, "; ")
	}
	return res
}

// integrityGate verifies that both endpoints of every edge observed in the
// run resolve to an entity persisted in the same run's snapshot.
func (c *Checker) integrityGate(ctx context.Context, runID string, snapshot map[harvester.Variant]map[string]struct{}) (harvester.GateResult, error) {
	var dangling []string
	for _, relType := range harvester.RelationTypes() {
		edges, err := c.repo.CurrentEdges(ctx, runID, relType)
		if err != nil {
			return harvester.GateResult{}, fmt.Errorf("reading %s edges: %w", relType, err)
		}
		for _, edge := range edges {
			if _, ok := snapshot[edge.SourceVariant][edge.SourceKey]; !ok {
				dangling = append(dangling, fmt.Sprintf("%s source %s/%s", edge.Key(), edge.SourceVariant, edge.SourceKey))
			}
			if _, ok := snapshot[edge.TargetVariant][edge.TargetKey]; !ok {
				dangling = append(dangling, fmt.Sprintf("%s target %s/%s", edge.Key(), edge.TargetVariant, edge.TargetKey))
			}
		}
	}
	res := harvester.GateResult{Name: "referential_integrity", Passed: len(dangling) == 0}
	if len(dangling) > 0 {
		sort.Strings(dangling)
		if len(dangling) > maxDetailItems {
			dangling = append(dangling[:maxDetailItems], fmt.Sprintf("and %d more", len(dangling)-maxDetailItems))
		}
		res.Detail = strings.Join(dangling, "; ")
	}
	return res, nil
}
