package utils

import "strings"

// NormalizeE164 strips formatting characters from a phone number and ensures a leading '+'.
// It does not validate; use the e164 validator for that.
func NormalizeE164(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out != "" && !strings.HasPrefix(out, "+") {
		out = "+" + out
	}
	return out
}
