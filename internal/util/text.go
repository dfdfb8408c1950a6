package util

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizePostgresText removes what should not reach a text column: invalid
// UTF-8 (including literal U+FFFD), NUL and other control characters.
// Tabs and line breaks are kept because source sentences may contain them.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == utf8.RuneError:
			return -1
		case r == '\t', r == '\n', r == '\r':
			return r
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, value)
}
