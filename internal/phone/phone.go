// Package phone canonicalizes loosely formatted phone numbers into an
// E.164-like form. Normalization is best effort: it never fails, worst case
// the provider rejects the number.
package phone

import (
	"strings"
)

const (
	// DefaultHomeCode is the country calling code assumed for bare local
	// numbers (Mali, 8-digit subscriber numbers).
	DefaultHomeCode = "223"
	// DefaultSecondaryCode is the country calling code for the secondary
	// 11-digit mobile pattern (China, numbers starting with 1).
	DefaultSecondaryCode = "86"

	homeLocalDigits      = 8
	secondaryLocalDigits = 11
)

// Normalizer turns raw phone strings into canonical +<digits> form.
type Normalizer struct {
	homeCode      string
	secondaryCode string
}

// NewNormalizer creates a normalizer; empty codes fall back to the defaults.
func NewNormalizer(homeCode, secondaryCode string) *Normalizer {
	if homeCode == "" {
		homeCode = DefaultHomeCode
	}
	if secondaryCode == "" {
		secondaryCode = DefaultSecondaryCode
	}
	return &Normalizer{homeCode: homeCode, secondaryCode: secondaryCode}
}

// Normalize returns the canonical form of raw. Idempotent: normalizing an
// already-canonical number returns it unchanged.
func (n *Normalizer) Normalize(raw string) string {
	digits := stripNonDigits(raw)
	if digits == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(digits, n.homeCode) && len(digits) == len(n.homeCode)+homeLocalDigits:
		// Already carries the home country code.
		return "+" + digits
	case strings.HasPrefix(digits, n.secondaryCode) && len(digits) == len(n.secondaryCode)+secondaryLocalDigits:
		// Already carries the secondary country code.
		return "+" + digits
	case len(digits) == homeLocalDigits:
		// Bare local number from the home market.
		return "+" + n.homeCode + digits
	case len(digits) == secondaryLocalDigits && digits[0] == '1':
		// Secondary-market mobile pattern without a country code.
		return "+" + n.secondaryCode + digits
	default:
		// Assume the digits already include an international prefix.
		return "+" + digits
	}
}

// CountryCode extracts the country calling code from a canonical number,
// returning "" when it matches none of the known codes.
func (n *Normalizer) CountryCode(canonical string) string {
	digits := stripNonDigits(canonical)
	for _, code := range []string{n.homeCode, n.secondaryCode} {
		if strings.HasPrefix(digits, code) {
			return code
		}
	}
	return ""
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
