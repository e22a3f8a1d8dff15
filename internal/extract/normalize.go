package extract

import "strings"

// asciiLowerTrim is a cheap pre-resolution key: it only needs to make the
// same surface form extracted twice within one call collide, not to
// perform full cross-lingual normalization — that is internal/resolve's
// job once entities reach the resolver.
func asciiLowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
