package httpapi

import "regexp"

var (
	apiKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{16,}`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern  = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern   = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// redactTranscript masks secrets and common PII before a transcript leaves the process.
// The stored transcript is never modified.
func redactTranscript(input string) (redacted string, changed bool) {
	out := input
	// Cards before phones, otherwise card digits match the phone pattern.
	for _, r := range []struct {
		pattern *regexp.Regexp
		marker  string
	}{
		{apiKeyPattern, "[REDACTED_KEY]"},
		{emailPattern, "[REDACTED_EMAIL]"},
		{cardPattern, "[REDACTED_CARD]"},
		{phonePattern, "[REDACTED_PHONE]"},
	} {
		next := r.pattern.ReplaceAllString(out, r.marker)
		changed = changed || next != out
		out = next
	}
	return out, changed
}
