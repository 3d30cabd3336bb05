// Package phone normalizes recipient numbers to the canonical
// <countrycode><digits> form the gateways expect.
package phone

import "strings"

const DefaultCountryCode = "62"

// Normalize strips every non-digit rune and rewrites a leading 0 to the
// given country code. A number already carrying the country code is left
// alone, so normalization is idempotent.
func Normalize(raw, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if strings.HasPrefix(digits, "0") {
		return countryCode + digits[1:]
	}
	return digits
}

// JID builds the conversational address for a normalized number.
func JID(number string) string {
	return number + "@s.whatsapp.net"
}
