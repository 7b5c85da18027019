package drivers

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

// CenterDriver extracts evaluation centers from their DOM listing. Centers
// carry a geographic state column that the normalizer maps through the
// federal-entity alias table.
type CenterDriver struct {
	base
}

// NewCenter creates the evaluation-centers driver.
func NewCenter(opts Options) *CenterDriver {
	return &CenterDriver{base: newBase("center", harvester.VariantCenter, opts)}
}

// Seeds enumerates the center listing pages, following the pager.
func (d *CenterDriver) Seeds(ctx context.Context) ([]harvester.Target, error) {
	return d.paginatedSeeds(ctx)
}

// Parse extracts one center per listing row plus its evaluation edges.
func (d *CenterDriver) Parse(
	_ context.Context,
	target harvester.Target,
	page harvester.RawPage,
) ([]harvester.EntityRecord, []harvester.RelationshipRecord, []harvester.ParseError) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML(page)))
	if err != nil {
		return nil, nil, []harvester.ParseError{d.parseError(target, "parse listing html: %v", err)}
	}

	rows := doc.Find("table.listado tr.renglon")
	if rows.Length() == 0 {
		return nil, nil, []harvester.ParseError{d.parseError(target, "listing contains zero rows")}
	}

	var (
		entities []harvester.EntityRecord
		edges    []harvester.RelationshipRecord
		errs     []harvester.ParseError
	)
	rows.Each(func(i int, row *goquery.Selection) {
		key := strings.TrimSpace(row.Find("td.clave").Text())
		if key == "" {
			errs = append(errs, d.parseError(target, "row %d: missing center key", i))
			return
		}
		attrs := map[string]string{
			"title":  row.Find("td.nombre").Text(),
			"active": activeFlag(row),
		}
		if state := strings.TrimSpace(row.Find("td.estado").Text()); state != "" {
			attrs["state"] = state
		}
		if contact := strings.TrimSpace(row.Find("td.contacto").Text()); contact != "" {
			attrs["contact"] = contact
		}
		entities = append(entities, harvester.EntityRecord{
			Variant:    harvester.VariantCenter,
			NaturalKey: key,
			Attributes: attrs,
			SourceURL:  target.URL,
		})

		for _, code := range splitCodes(row.Find("td.estandares").Text()) {
			edges = append(edges, harvester.RelationshipRecord{
				Type:          harvester.RelationEvaluates,
				SourceVariant: harvester.VariantCenter,
				SourceKey:     key,
				TargetVariant: harvester.VariantStandard,
				TargetKey:     code,
				SourceURL:     target.URL,
			})
		}
	})
	return entities, edges, errs
}
