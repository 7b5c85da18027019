package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "  Consejo   Nacional \t de\nNormalización ", "Consejo Nacional de Normalización"},
		{"normalizes curly quotes", "“Estándar” ‘EC’", `"Estándar" 'EC'`},
		{"nfc composition", "México", "México"},
		{"empty stays empty", "   ", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Text(tc.in))
		})
	}
}

func TestBag_DropsEmptyValues(t *testing.T) {
	t.Parallel()
	got := Bag(map[string]string{
		"title":   "  Impartición de cursos  ",
		"version": "",
		"blank":   "   ",
	})
	require.Equal(t, map[string]string{"title": "Impartición de cursos"}, got)
}

func TestStandardCode(t *testing.T) {
	t.Parallel()

	code, ok := StandardCode(" ec0217 ")
	require.True(t, ok)
	require.Equal(t, "EC0217", code)

	code, ok = StandardCode("EC 0301")
	require.True(t, ok)
	require.Equal(t, "EC0301", code)

	code, ok = StandardCode("NTCL-021")
	require.False(t, ok)
	require.Equal(t, "NTCL-021", code)
}
