package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractContacts_MixedText(t *testing.T) {
	t.Parallel()
	c := ExtractContacts("Contacto: maria.lopez@conocer.gob.mx, tel. (55) 2000-5500 ext 100. Ver https://conocer.gob.mx/contacto.")
	require.Equal(t, []string{"maria.lopez@conocer.gob.mx"}, c.Emails)
	require.Equal(t, []string{"5520005500"}, c.Phones)
	require.Equal(t, []string{"https://conocer.gob.mx/contacto"}, c.URLs)
	require.True(t, c.Confident())
	require.Equal(t, "maria.lopez@conocer.gob.mx; 5520005500; https://conocer.gob.mx/contacto", c.Join())
}

func TestExtractContacts_Dedupes(t *testing.T) {
	t.Parallel()
	c := ExtractContacts("info@cecap.mx e info@cecap.mx")
	require.Equal(t, []string{"info@cecap.mx"}, c.Emails)
}

func TestExtractContacts_KeepsRawOnNoMatch(t *testing.T) {
	t.Parallel()
	c := ExtractContacts("Preguntar en recepción, edificio B")
	require.False(t, c.Confident())
	require.Equal(t, "Preguntar en recepción, edificio B", c.Raw)
	require.Equal(t, "Preguntar en recepción, edificio B", c.Join())
}

func TestExtractContacts_Empty(t *testing.T) {
	t.Parallel()
	c := ExtractContacts("   ")
	require.False(t, c.Confident())
	require.Empty(t, c.Join())
}

func TestExtractContacts_ShortDigitRunsIgnored(t *testing.T) {
	t.Parallel()
	c := ExtractContacts("Oficina 12 34, piso 5")
	require.Empty(t, c.Phones)
}
