// Package normalize canonicalizes user-supplied identifiers.
package normalize

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization trims surrounding whitespace
// and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// ValidEmail reports whether e looks like an email address after normalization.
func ValidEmail(e string) bool {
	return emailPattern.MatchString(Email(e))
}

// PairKey returns an order-independent key for two emails. Chats are unique
// per pair key, so PairKey(a, b) == PairKey(b, a).
func PairKey(a, b string) string {
	a, b = Email(a), Email(b)
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
