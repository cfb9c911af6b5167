package reschedule

import "strings"

// NormalizePhone reduces a phone number to bare digits, dropping the leading
// country-code "1" from 11-digit numbers so that "+1 (602) 555-0100" and
// "602-555-0100" compare equal.
func NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if len(cleaned) == 11 && strings.HasPrefix(cleaned, "1") {
		cleaned = cleaned[1:]
	}
	return cleaned
}
