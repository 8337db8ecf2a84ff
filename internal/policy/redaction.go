// Package policy holds content rules applied before transcript text leaves
// the process.
package policy

import "regexp"

var (
	emailPattern   = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern   = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern    = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	ibanPattern    = regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}(?: ?[A-Z0-9]{4}){3,7}(?: ?[A-Z0-9]{1,3})?\b`)
	accountPattern = regexp.MustCompile(`(?i)\b(account|acct)(\s*(?:no\.?|number|#))?\s*[:#]?\s*\d{6,12}\b`)
)

type rule struct {
	pattern *regexp.Regexp
	marker  string
}

// Order matters: IBAN and card before phone, otherwise long digit runs are
// classified as phone numbers.
var rules = []rule{
	{emailPattern, "[REDACTED_EMAIL]"},
	{ibanPattern, "[REDACTED_IBAN]"},
	{accountPattern, "[REDACTED_ACCOUNT]"},
	{cardPattern, "[REDACTED_CARD]"},
	{phonePattern, "[REDACTED_PHONE]"},
}

// RedactPII masks common high-risk PII patterns in chat text.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range rules {
		next := r.pattern.ReplaceAllString(out, r.marker)
		changed = changed || next != out
		out = next
	}
	return out, changed
}
