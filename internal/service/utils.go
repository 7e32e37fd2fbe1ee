package service

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sanitizeUTF8 removes invalid UTF-8 sequences from string
// This prevents PostgreSQL encoding errors when saving text
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	var result strings.Builder
	result.Grow(len(s))

	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		result.WriteRune(r)
		s = s[size:]
	}

	return result.String()
}

// normalizeText collapses whitespace and strips control characters
// while preserving mixed Latin and Gujarati script.
func normalizeText(s string) string {
	s = sanitizeUTF8(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == 0 || (unicode.IsControl(r) && r != '\n' && r != '\t') {
			continue
		}
		b.WriteRune(r)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// alphaRatio is the share of alphabetic runes among all non-space
// runes. Combining marks count as alphabetic: Gujarati and Hindi
// matras are category Mn, and text written in those scripts is full
// of them. Garbled structural extraction of scanned documents
// produces mostly symbols, which drives this ratio down.
func alphaRatio(s string) float64 {
	var letters, total int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) || unicode.IsMark(r) {
			letters++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(letters) / float64(total)
}
