package normalize

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d{1,3}?[\s.\-]?\(?\d{2,3}\)?[\s.\-]?\d{3,4}[\s.\-]?\d{4}`)
	urlPattern   = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

// ContactField is one extracted contact value. Confident is true when the
// value matched a known format; false means the raw text was kept as-is.
type ContactField struct {
	Value     string
	Confident bool
}

// Contacts holds the deduplicated contact values extracted from free text.
type Contacts struct {
	Emails []string
	Phones []string
	URLs   []string
	// Raw is set when nothing matched a known format but the input was
	// non-empty, so the value survives with low confidence.
	Raw string
}

// Confident reports whether at least one value matched a known format.
func (c Contacts) Confident() bool {
	return len(c.Emails) > 0 || len(c.Phones) > 0 || len(c.URLs) > 0
}

// Join flattens the contacts into one stable, separator-joined string.
func (c Contacts) Join() string {
	parts := make([]string, 0, len(c.Emails)+len(c.Phones)+len(c.URLs)+1)
	parts = append(parts, c.Emails...)
	parts = append(parts, c.Phones...)
	parts = append(parts, c.URLs...)
	if !c.Confident() && c.Raw != "" {
		parts = append(parts, c.Raw)
	}
	return strings.Join(parts, "; ")
}

// ExtractContacts pulls emails, phone numbers and URLs out of free text,
// deduplicating while preserving first-occurrence order.
func ExtractContacts(raw string) Contacts {
	text := Text(raw)
	if text == "" {
		return Contacts{}
	}
	c := Contacts{
		Emails: dedupe(emailPattern.FindAllString(text, -1)),
		URLs:   dedupe(urlPattern.FindAllString(text, -1)),
	}
	// Strip URLs before phone matching; path digits look like phone numbers.
	phoneSource := urlPattern.ReplaceAllString(text, " ")
	phoneSource = emailPattern.ReplaceAllString(phoneSource, " ")
	c.Phones = dedupe(normalizePhones(phonePattern.FindAllString(phoneSource, -1)))
	if !c.Confident() {
		c.Raw = text
	}
	return c
}

func normalizePhones(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		cleaned := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' || r == '+' {
				return r
			}
			return -1
		}, p)
		// Mexican numbers are 10 digits; shorter matches are noise.
		if digits := strings.TrimPrefix(cleaned, "+"); len(digits) >= 10 {
			out = append(out, cleaned)
		}
	}
	return out
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimRight(v, ".,;")
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
