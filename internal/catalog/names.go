package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SafeName turns a channel or group name into a file name component. Names
// are NFC normalised so the same title typed on different systems maps to the
// same file, and path separators and control characters become underscores.
func SafeName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == 0:
			b.WriteRune('_')
		case unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), " .")
	if out == "" {
		return "_"
	}
	return out
}
