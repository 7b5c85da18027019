// Package normalize canonicalizes and validates raw extracted values. All
// transforms are pure and advisory: non-conforming input is kept and flagged,
// never dropped.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)

	quoteReplacer = strings.NewReplacer(
		"‘", "'",
		"’", "'",
		"‚", "'",
		"“", `"`,
		"”", `"`,
		"„", `"`,
		"«", `"`,
		"»", `"`,
	)
)

// Text canonicalizes a free-text value: Unicode NFC, curly quotes to ASCII,
// whitespace runs collapsed to single spaces, leading/trailing space trimmed.
func Text(s string) string {
	s = norm.NFC.String(s)
	s = quoteReplacer.Replace(s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Bag canonicalizes every value of an attribute bag, dropping keys whose
// canonical value is empty.
func Bag(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if cv := Text(v); cv != "" {
			out[k] = cv
		}
	}
	return out
}

// foldDiacritics strips combining marks after NFD decomposition, for
// accent-insensitive lookups. Lookup keys only; stored values keep accents.
func foldDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r >= 0x0300 && r <= 0x036f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
