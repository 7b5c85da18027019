package drivers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

const sectorMarker = "accion=sectores"

type sectorRow struct {
	ID     int    `json:"id"`
	Nombre string `json:"nombre"`
}

type sectorPayload struct {
	Sectores []sectorRow `json:"sectores"`
}

// SectorDriver extracts productive-sector classifications. Sectors arrive in
// a single structured payload; there is no pagination.
type SectorDriver struct {
	base
}

// NewSector creates the sectors driver.
func NewSector(opts Options) *SectorDriver {
	return &SectorDriver{base: newBase("sector", harvester.VariantSector, opts)}
}

// Seeds returns the single sector catalog page.
func (d *SectorDriver) Seeds(_ context.Context) ([]harvester.Target, error) {
	seed, err := harvester.NormalizeURL(d.opts.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("normalize seed url: %w", err)
	}
	return []harvester.Target{d.target(seed)}, nil
}

// Parse decodes the sector catalog payload.
func (d *SectorDriver) Parse(
	_ context.Context,
	target harvester.Target,
	page harvester.RawPage,
) ([]harvester.EntityRecord, []harvester.RelationshipRecord, []harvester.ParseError) {
	var payload sectorPayload
	if err := structuredPayload(page, sectorMarker, &payload); err != nil {
		return nil, nil, []harvester.ParseError{d.parseError(target, "sector payload: %v", err)}
	}
	if len(payload.Sectores) == 0 {
		return nil, nil, []harvester.ParseError{d.parseError(target, "payload contains zero rows")}
	}

	var (
		entities []harvester.EntityRecord
		errs     []harvester.ParseError
	)
	for i, row := range payload.Sectores {
		if row.ID <= 0 {
			errs = append(errs, d.parseError(target, "row %d: missing sector id", i))
			continue
		}
		entities = append(entities, harvester.EntityRecord{
			Variant:    harvester.VariantSector,
			NaturalKey: fmt.Sprintf("SEC-%02d", row.ID),
			Attributes: map[string]string{
				"title":     row.Nombre,
				"source_id": strconv.Itoa(row.ID),
			},
			SourceURL: target.URL,
		})
	}
	return entities, nil, errs
}
