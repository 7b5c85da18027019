package drivers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

// standardMarker identifies the XHR exchange that backs the standards listing.
const standardMarker = "accion=consultar"

type standardRow struct {
	Codigo  string `json:"codigo"`
	Titulo  string `json:"titulo"`
	Version string `json:"version"`
	Vigente bool   `json:"vigente"`
	Sector  string `json:"sector"`
	Comite  string `json:"comite"`
}

type standardPayload struct {
	Total        int           `json:"total"`
	Pagina       int           `json:"pagina"`
	TotalPaginas int           `json:"totalPaginas"`
	Estandares   []standardRow `json:"estandares"`
}

// StandardDriver extracts competency standards. The listing is rendered by
// JavaScript; the real rows travel in a background JSON exchange, so this
// driver reads the intercepted payload rather than the DOM.
type StandardDriver struct {
	base
}

// NewStandard creates the standards driver.
func NewStandard(opts Options) *StandardDriver {
	return &StandardDriver{base: newBase("standard", harvester.VariantStandard, opts)}
}

// Seeds fetches the first listing page, reads the pagination total from its
// backing payload, and enumerates one target per listing page up to the cap.
func (d *StandardDriver) Seeds(ctx context.Context) ([]harvester.Target, error) {
	seed, err := harvester.NormalizeURL(d.opts.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("normalize seed url: %w", err)
	}
	targets := []harvester.Target{d.target(seed)}

	page, err := d.opts.Fetcher.Fetch(ctx, seed, d.opts.FetchOpts)
	if err != nil {
		// The first page is still a schedulable target; retries happen there.
		return targets, nil
	}
	var payload standardPayload
	if err := structuredPayload(page, standardMarker, &payload); err != nil {
		return targets, nil
	}

	pages := payload.TotalPaginas
	if pages > d.opts.MaxPages {
		pages = d.opts.MaxPages
	}
	for n := 2; n <= pages; n++ {
		paged, err := withPageParam(seed, n)
		if err != nil {
			continue
		}
		targets = append(targets, d.target(paged))
	}
	return targets, nil
}

// withPageParam sets the pagina query parameter, preserving the rest of the
// seed URL.
func withPageParam(seed string, n int) (string, error) {
	u, err := url.Parse(seed)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("pagina", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return harvester.NormalizeURL(u.String())
}

// Parse decodes one listing page's backing payload into standard entities and
// their sector/committee classification edges.
func (d *StandardDriver) Parse(
	_ context.Context,
	target harvester.Target,
	page harvester.RawPage,
) ([]harvester.EntityRecord, []harvester.RelationshipRecord, []harvester.ParseError) {
	var payload standardPayload
	if err := structuredPayload(page, standardMarker, &payload); err != nil {
		return nil, nil, []harvester.ParseError{d.parseError(target, "standards payload: %v", err)}
	}
	if len(payload.Estandares) == 0 {
		return nil, nil, []harvester.ParseError{d.parseError(target, "payload contains zero rows")}
	}

	var (
		entities []harvester.EntityRecord
		edges    []harvester.RelationshipRecord
		errs     []harvester.ParseError
	)
	for i, row := range payload.Estandares {
		if row.Codigo == "" {
			errs = append(errs, d.parseError(target, "row %d: missing standard code", i))
			continue
		}
		attrs := map[string]string{
			"title":   row.Titulo,
			"version": row.Version,
			"active":  strconv.FormatBool(row.Vigente),
		}
		entities = append(entities, harvester.EntityRecord{
			Variant:    harvester.VariantStandard,
			NaturalKey: row.Codigo,
			Attributes: attrs,
			SourceURL:  target.URL,
		})

		if key, ok := sectorKey(row.Sector); ok {
			attrs["sector_key"] = key
			edges = append(edges, harvester.RelationshipRecord{
				Type:          harvester.RelationClassifiedAs,
				SourceVariant: harvester.VariantStandard,
				SourceKey:     row.Codigo,
				TargetVariant: harvester.VariantSector,
				TargetKey:     key,
				SourceURL:     target.URL,
			})
		}
		if key, ok := committeeKey(row.Comite); ok {
			attrs["committee_key"] = key
			edges = append(edges, harvester.RelationshipRecord{
				Type:          harvester.RelationDevelopedBy,
				SourceVariant: harvester.VariantStandard,
				SourceKey:     row.Codigo,
				TargetVariant: harvester.VariantCommittee,
				TargetKey:     key,
				SourceURL:     target.URL,
			})
		}
	}
	return entities, edges, errs
}

// sectorKey derives the natural key for a sector from its numeric source id.
func sectorKey(raw string) (string, bool) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return "", false
	}
	return fmt.Sprintf("SEC-%02d", id), true
}

// committeeKey derives the natural key for a committee from its source id.
func committeeKey(raw string) (string, bool) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return "", false
	}
	return fmt.Sprintf("COM-%03d", id), true
}
