// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const (
	defaultRegion = "BR"
	countryCode   = "55"
)

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// Digits strips everything except ASCII digits.
func Digits(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsBrazilian reports whether the digits form a plausible Brazilian number:
// 10 or 11 national digits, or 12 or 13 digits carrying the 55 country code.
func IsBrazilian(digits string) bool {
	switch len(digits) {
	case 10, 11:
		return true
	case 12, 13:
		return strings.HasPrefix(digits, countryCode)
	default:
		return false
	}
}

// ToWhatsApp returns the country-code-prefixed digit string used as a
// WhatsApp address, or "" when the input is not a Brazilian number.
// Sender ids such as 5511999999999@s.whatsapp.net are accepted.
func ToWhatsApp(input string) string {
	if at := strings.IndexByte(input, '@'); at >= 0 {
		input = input[:at]
	}
	digits := Digits(input)
	if !IsBrazilian(digits) {
		return ""
	}
	if len(digits) <= 11 {
		digits = countryCode + digits
	}
	if e164 := NormalizeE164("+" + digits); strings.HasPrefix(e164, "+") {
		return strings.TrimPrefix(e164, "+")
	}
	return digits
}
