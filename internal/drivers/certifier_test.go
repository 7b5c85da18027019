package drivers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

const (
	certSeed    = "https://conocer.gob.mx/RENEC/controlador.do?comp=ESLORGCERT"
	certPage2   = "https://conocer.gob.mx/RENEC/controlador.do?comp=ESLORGCERT&pagina=2"
	certContact = "https://conocer.gob.mx/RENEC/controlador.do?accion=contacto&clave=ECE001-99&comp=ESLORGCERT"
)

func certifierOpts(f harvester.PageFetcher) Options {
	return Options{
		SeedURL:    certSeed,
		URLPattern: "comp=ESLORGCERT",
		MaxPages:   10,
		Fetcher:    f,
	}
}

func certifierListing(rows string) string {
	return fmt.Sprintf(`<html><body><table class="listado">%s</table></body></html>`, rows)
}

func TestCertifierDriver_SeedsFollowsPager(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]harvester.RawPage{
		certSeed: {DOM: certifierListing(``) +
			fmt.Sprintf(`<a rel="next" href="%s">Siguiente</a>`, certPage2)},
		certPage2: {DOM: certifierListing(``)},
	}}

	targets, err := NewCertifier(certifierOpts(fetcher)).Seeds(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 2)
	require.Equal(t, certSeed, targets[0].URL)
	require.Equal(t, certPage2, targets[1].URL)
}

func TestCertifierDriver_SeedsPagerLoopStops(t *testing.T) {
	t.Parallel()

	// Page 2 points back at the seed: the dedup set must stop the walk.
	fetcher := &fakeFetcher{pages: map[string]harvester.RawPage{
		certSeed:  {DOM: fmt.Sprintf(`<a rel="next" href="%s">Siguiente</a>`, certPage2)},
		certPage2: {DOM: fmt.Sprintf(`<a rel="next" href="%s">Siguiente</a>`, certSeed)},
	}}

	targets, err := NewCertifier(certifierOpts(fetcher)).Seeds(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 2)
}

func TestCertifierDriver_ParseRowsAndContacts(t *testing.T) {
	t.Parallel()

	listing := certifierListing(`
		<tr class="renglon">
			<td class="clave">ECE001-99</td>
			<td class="nombre">Instituto de Capacitación</td>
			<td class="estandares">EC0217, EC0301</td>
			<td class="desde">2019-05-01</td>
			<td><a class="contacto" href="controlador.do?comp=ESLORGCERT&accion=contacto&clave=ECE001-99">Contacto</a></td>
		</tr>
		<tr class="renglon">
			<td class="clave">OC002-05</td>
			<td class="nombre">Organismo Certificador Norte</td>
			<td class="vigencia">No vigente</td>
			<td class="estandares"></td>
		</tr>`)

	fetcher := &fakeFetcher{pages: map[string]harvester.RawPage{
		certContact: {DOM: `<div class="panel-contacto">contacto@icap.mx tel (55) 2000 5500</div>`},
	}}
	driver := NewCertifier(certifierOpts(fetcher))
	target := driver.target(certSeed)

	entities, edges, errs := driver.Parse(context.Background(), target, harvester.RawPage{DOM: listing})
	require.Empty(t, errs)
	require.Len(t, entities, 2)

	require.Equal(t, "ECE001-99", entities[0].NaturalKey)
	require.Equal(t, "true", entities[0].Attributes["active"])
	require.Contains(t, entities[0].Attributes["contact"], "contacto@icap.mx")

	require.Equal(t, "OC002-05", entities[1].NaturalKey)
	require.Equal(t, "false", entities[1].Attributes["active"])

	require.Len(t, edges, 2)
	require.Equal(t, harvester.RelationAccredits, edges[0].Type)
	require.Equal(t, "EC0217", edges[0].TargetKey)
	require.Equal(t, "2019-05-01", edges[0].Attributes["since"])
	require.Equal(t, "EC0301", edges[1].TargetKey)
}

func TestCertifierDriver_ContactFailureKeepsRow(t *testing.T) {
	t.Parallel()

	listing := certifierListing(`
		<tr class="renglon">
			<td class="clave">ECE001-99</td>
			<td class="nombre">Instituto de Capacitación</td>
			<td><a class="contacto" href="controlador.do?comp=ESLORGCERT&accion=contacto&clave=ECE001-99">Contacto</a></td>
		</tr>`)

	fetcher := &fakeFetcher{failing: map[string]error{certContact: errors.New("modal did not render")}}
	driver := NewCertifier(certifierOpts(fetcher))
	target := driver.target(certSeed)

	entities, _, errs := driver.Parse(context.Background(), target, harvester.RawPage{DOM: listing})
	require.Len(t, entities, 1)
	require.NotContains(t, entities[0].Attributes, "contact")
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Reason, "contact panel")
}

func TestCertifierDriver_ParseEmptyListing(t *testing.T) {
	t.Parallel()

	driver := NewCertifier(certifierOpts(&fakeFetcher{}))
	target := driver.target(certSeed)
	_, _, errs := driver.Parse(context.Background(), target, harvester.RawPage{DOM: "<html><body></body></html>"})
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Reason, "zero rows")
}
