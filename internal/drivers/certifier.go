package drivers

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

// CertifierDriver extracts certifying bodies from their DOM listing. Each row
// carries an action that opens a contact panel; the driver models that as an
// additional fetch against a sub-target derived from the row, so the
// coordinator never special-cases the recursion.
type CertifierDriver struct {
	base
}

// NewCertifier creates the certifiers driver.
func NewCertifier(opts Options) *CertifierDriver {
	return &CertifierDriver{base: newBase("certifier", harvester.VariantCertifier, opts)}
}

// Seeds enumerates the certifier listing pages, following the pager.
func (d *CertifierDriver) Seeds(ctx context.Context) ([]harvester.Target, error) {
	return d.paginatedSeeds(ctx)
}

// Parse extracts one certifier per listing row plus its accreditation edges.
// Contact-panel failures degrade the row, not the page: the entity is kept
// without the contact attribute and a parse error is recorded.
func (d *CertifierDriver) Parse(
	ctx context.Context,
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
			errs = append(errs, d.parseError(target, "row %d: missing certifier key", i))
			return
		}
		attrs := map[string]string{
			"title":  row.Find("td.nombre").Text(),
			"active": activeFlag(row),
		}

		if href, ok := row.Find("a.contacto").Attr("href"); ok {
			contact, err := d.fetchContact(ctx, target, href)
			if err != nil {
				errs = append(errs, d.parseError(target, "row %d (%s): contact panel: %v", i, key, err))
			} else if contact != "" {
				attrs["contact"] = contact
			}
		}

		entities = append(entities, harvester.EntityRecord{
			Variant:    harvester.VariantCertifier,
			NaturalKey: key,
			Attributes: attrs,
			SourceURL:  target.URL,
		})

		since := strings.TrimSpace(row.Find("td.desde").Text())
		for _, code := range splitCodes(row.Find("td.estandares").Text()) {
			edge := harvester.RelationshipRecord{
				Type:          harvester.RelationAccredits,
				SourceVariant: harvester.VariantCertifier,
				SourceKey:     key,
				TargetVariant: harvester.VariantStandard,
				TargetKey:     code,
				SourceURL:     target.URL,
			}
			if since != "" {
				edge.Attributes = map[string]string{"since": since}
			}
			edges = append(edges, edge)
		}
	})
	return entities, edges, errs
}

// fetchContact opens the row's contact panel and returns its text content.
func (d *CertifierDriver) fetchContact(ctx context.Context, target harvester.Target, href string) (string, error) {
	sub, err := resolveURL(target.URL, href)
	if err != nil {
		return "", err
	}
	page, err := d.opts.Fetcher.Fetch(ctx, sub, d.opts.FetchOpts)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML(page)))
	if err != nil {
		return "", err
	}
	panel := doc.Find("div.panel-contacto")
	if panel.Length() == 0 {
		panel = doc.Selection
	}
	text := strings.TrimSpace(panel.Text())
	d.opts.Logger.Debug("contact panel fetched",
		zap.String("component", d.component),
		zap.String("url", sub),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

// activeFlag reads the row's vigencia cell; listings mark inactive bodies
// explicitly, so absence means active.
func activeFlag(row *goquery.Selection) string {
	status := strings.ToLower(strings.TrimSpace(row.Find("td.vigencia").Text()))
	if status == "" {
		return "true"
	}
	if strings.Contains(status, "no vigente") || strings.Contains(status, "cancelad") {
		return "false"
	}
	return "true"
}

// splitCodes splits a comma-separated cell of standard codes.
func splitCodes(cell string) []string {
	var out []string
	for _, part := range strings.Split(cell, ",") {
		if code := strings.TrimSpace(part); code != "" {
			out = append(out, code)
		}
	}
	return out
}
