package util

import (
	"strings"
	"unicode"
)

// SanitizeFileName makes name safe to use as a single path component. Each
// whitespace rune becomes an underscore, path separators and control
// characters are dropped and ".." sequences are collapsed. A name with
// nothing left returns fallback.
func SanitizeFileName(name string, fallback string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '/' || r == '\\':
			continue
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}
	if s == "" || s == "." {
		return fallback
	}
	return s
}
