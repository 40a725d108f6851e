package voice

import (
	"fmt"
	"strings"
	"unicode"
)

// FormatE164 normalizes a US phone number to E.164. Accepts common
// spreadsheet formats: "(909) 555-0102", "909-555-0102", "19095550102",
// "+19095550102".
func FormatE164(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}

	switch s := digits.String(); len(s) {
	case 10:
		return "+1" + s, nil
	case 11:
		if s[0] != '1' {
			return "", fmt.Errorf("11-digit number %q does not start with country code 1", raw)
		}
		return "+" + s, nil
	default:
		return "", fmt.Errorf("phone number %q has %d digits, want 10 or 11", raw, len(s))
	}
}
