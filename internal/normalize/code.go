package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

// Standard codes are a fixed letter prefix plus four digits, e.g. EC0217.
var standardCodePattern = regexp.MustCompile(`^EC\d{4}$`)

// StandardCode canonicalizes a competency-standard code and reports whether
// it matches the expected pattern. Non-conforming codes are returned as
// canonicalized text with ok=false so callers can flag rather than drop them.
func StandardCode(raw string) (code string, ok bool) {
	code = strings.ToUpper(Text(raw))
	code = strings.ReplaceAll(code, " ", "")
	return code, standardCodePattern.MatchString(code)
}

// NoteInvalidCode formats the advisory annotation attached to records whose
// code failed pattern validation.
func NoteInvalidCode(code string) string {
	return fmt.Sprintf("code %q does not match expected pattern EC####", code)
}
