// Package phone normalizes user-entered phone numbers into a single canonical
// E.164 form for one configured country.
package phone

import (
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// Normalizer converts raw phone input to "+<CountryCode><national number>".
type Normalizer struct {
	// CountryCode is the calling code without the plus sign, e.g. "1".
	CountryCode string
	// NationalLength is the exact count of national significant digits.
	NationalLength int
}

// NANP is the North American Numbering Plan: "+1" followed by 10 digits.
var NANP = Normalizer{CountryCode: "1", NationalLength: 10}

// Normalize strips every non-digit, accepts an optional leading country code and
// requires exactly NationalLength remaining digits.
func (n Normalizer) Normalize(raw string) (string, error) {
	digits := Digits(raw)

	if len(digits) == len(n.CountryCode)+n.NationalLength && strings.HasPrefix(digits, n.CountryCode) {
		digits = digits[len(n.CountryCode):]
	}

	if len(digits) != n.NationalLength {
		return "", fmt.Errorf("%w: must be exactly %d digits, got %d", domain.ErrInvalidPhoneNumber, n.NationalLength, len(digits))
	}

	return "+" + n.CountryCode + digits, nil
}

// Valid reports whether raw normalizes.
func (n Normalizer) Valid(raw string) bool {
	_, err := n.Normalize(raw)
	return err == nil
}

// Canonical normalizes raw, falling back to the trimmed input when it does not
// normalize. Used to compare provider-supplied numbers that may be foreign.
func (n Normalizer) Canonical(raw string) string {
	if p, err := n.Normalize(raw); err == nil {
		return p
	}
	return strings.TrimSpace(raw)
}

// Digits returns only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
