package drivers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madfam-io/renec-harvester-sub000/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		Harvest: config.HarvestConfig{MaxPagesPerSeed: 10},
		Endpoints: map[string]config.EndpointConfig{
			"standard": {
				SeedURL:       "https://conocer.gob.mx/RENEC/controlador.do?comp=ESLNORMTEC",
				URLPattern:    "comp=ESLNORMTEC",
				TransportHint: "structured",
			},
			"certifier": {
				SeedURL:       "https://conocer.gob.mx/RENEC/controlador.do?comp=ESLORGCERT",
				URLPattern:    "comp=ESLORGCERT",
				TransportHint: "dom",
			},
		},
	}
}

func TestFromConfig_BuildsAndDispatches(t *testing.T) {
	t.Parallel()

	reg, err := FromConfig(testConfig(), &fakeFetcher{}, nil)
	require.NoError(t, err)
	require.Len(t, reg.All(), 2)

	d, ok := reg.Match("https://conocer.gob.mx/RENEC/controlador.do?comp=ESLNORMTEC&pagina=4")
	require.True(t, ok)
	require.Equal(t, "standard", d.Component())

	_, ok = reg.Match("https://conocer.gob.mx/RENEC/controlador.do?comp=INICIO")
	require.False(t, ok)

	d, ok = reg.Get("certifier")
	require.True(t, ok)
	require.False(t, d.(*CertifierDriver).opts.RenderJS)

	d, _ = reg.Get("standard")
	require.True(t, d.(*StandardDriver).opts.RenderJS)
}

func TestFromConfig_UnknownComponent(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Endpoints["minutes"] = config.EndpointConfig{SeedURL: "https://conocer.gob.mx/x"}
	_, err := FromConfig(cfg, &fakeFetcher{}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "minutes")
}

func TestFromConfig_EmptyRegistry(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Endpoints = nil
	_, err := FromConfig(cfg, &fakeFetcher{}, nil)
	require.Error(t, err)
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	a := NewSector(Options{SeedURL: "https://conocer.gob.mx/a", URLPattern: "a"})
	b := NewSector(Options{SeedURL: "https://conocer.gob.mx/b", URLPattern: "b"})
	_, err := NewRegistry(a, b)
	require.Error(t, err)
}
