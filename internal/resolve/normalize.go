package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// honorifics are stripped from the end of a normalized name before
// comparison, matching the title/honorific-suffix rule. Corporate
// designators are included so "Acme Corp." and "ACME" normalize alike.
var honorifics = []string{
	"jr", "sr", "phd", "md", "esq", "ii", "iii", "iv",
	"mr", "mrs", "ms", "dr", "prof",
	"corp", "inc", "ltd", "llc",
}

// Normalize applies Unicode NFC normalization, case-folds, collapses
// whitespace, and strips a trailing honorific suffix.
func Normalize(name string) string {
	n := norm.NFC.String(name)
	n = strings.ToLower(n)
	n = strings.Join(strings.Fields(n), " ")
	n = strings.TrimRight(n, ". ")

	for _, h := range honorifics {
		trimmed := strings.TrimSuffix(n, " "+h)
		if trimmed != n {
			n = strings.TrimRight(trimmed, ". ")
		}
	}
	return n
}

// CoreName strips honorific/title tokens from anywhere in the name, used
// by the script-specific fuzzy-match boost for names like "Dr. Jane Doe
// III" vs "Jane Doe".
func CoreName(normalized string) string {
	fields := strings.Fields(normalized)
	out := fields[:0]
	honSet := make(map[string]bool, len(honorifics))
	for _, h := range honorifics {
		honSet[h] = true
	}
	for _, f := range fields {
		f = strings.TrimRight(f, ".")
		if honSet[f] {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// isCJK reports whether r falls in a CJK unified ideograph block, used to
// select the single-character family-name-prefix boost.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r)
}
