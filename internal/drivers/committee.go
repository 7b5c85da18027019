package drivers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

const committeeMarker = "accion=comites"

type committeeRow struct {
	ID     int    `json:"id"`
	Nombre string `json:"nombre"`
	Sector int    `json:"sector"`
}

type committeePayload struct {
	Comites []committeeRow `json:"comites"`
}

// CommitteeDriver extracts standardization committees from their structured
// catalog payload.
type CommitteeDriver struct {
	base
}

// NewCommittee creates the committees driver.
func NewCommittee(opts Options) *CommitteeDriver {
	return &CommitteeDriver{base: newBase("committee", harvester.VariantCommittee, opts)}
}

// Seeds returns the single committee catalog page.
func (d *CommitteeDriver) Seeds(_ context.Context) ([]harvester.Target, error) {
	seed, err := harvester.NormalizeURL(d.opts.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("normalize seed url: %w", err)
	}
	return []harvester.Target{d.target(seed)}, nil
}

// Parse decodes the committee catalog payload. A committee's sector reference
// becomes a parent attribute rather than an edge; the standard->sector edge
// carries the classification relation.
func (d *CommitteeDriver) Parse(
	_ context.Context,
	target harvester.Target,
	page harvester.RawPage,
) ([]harvester.EntityRecord, []harvester.RelationshipRecord, []harvester.ParseError) {
	var payload committeePayload
	if err := structuredPayload(page, committeeMarker, &payload); err != nil {
		return nil, nil, []harvester.ParseError{d.parseError(target, "committee payload: %v", err)}
	}
	if len(payload.Comites) == 0 {
		return nil, nil, []harvester.ParseError{d.parseError(target, "payload contains zero rows")}
	}

	var (
		entities []harvester.EntityRecord
		errs     []harvester.ParseError
	)
	for i, row := range payload.Comites {
		if row.ID <= 0 {
			errs = append(errs, d.parseError(target, "row %d: missing committee id", i))
			continue
		}
		attrs := map[string]string{
			"title":     row.Nombre,
			"source_id": strconv.Itoa(row.ID),
		}
		if key, ok := sectorKey(strconv.Itoa(row.Sector)); ok {
			attrs["sector_key"] = key
		}
		entities = append(entities, harvester.EntityRecord{
			Variant:    harvester.VariantCommittee,
			NaturalKey: fmt.Sprintf("COM-%03d", row.ID),
			Attributes: attrs,
			SourceURL:  target.URL,
		})
	}
	return entities, nil, errs
}
