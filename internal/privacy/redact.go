// Package privacy screens user text for personally identifiable information
// before it leaves the process toward the AI provider. Sessions are anonymous
// by design; redaction keeps accidental disclosures (phone numbers, email
// addresses, ID numbers) out of third-party request logs.
package privacy

import (
	"regexp"
)

// Compiled once at package init and reused for every call, making them safe
// and efficient for concurrent use.
var (
	// emailPattern matches standard email addresses.
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// phonePattern matches common phone number formats such as
	// +91 98765 43210, (555) 123-4567, 555.123.4567. Anchored to
	// whitespace/string boundaries to avoid matching digit runs embedded
	// in normal words or short numbers like "100".
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)

	// idPattern matches long unbroken digit runs (10-16 digits) typical of
	// government or insurance ID numbers.
	idPattern = regexp.MustCompile(`\b\d{10,16}\b`)
)

// redaction pairs a detection pattern with its replacement placeholder.
type redaction struct {
	kind    string
	pattern *regexp.Regexp
	replace string
}

// redactions is the ordered list applied by Redact. Email runs before phone
// so that digits inside an address are not half-consumed by the phone rule.
var redactions = []redaction{
	{kind: "email", pattern: emailPattern, replace: "[email removed]"},
	{kind: "id", pattern: idPattern, replace: "[id removed]"},
	{kind: "phone", pattern: phonePattern, replace: " [phone removed] "},
}

// Redact replaces any detected PII in text with placeholder tags. It returns
// the cleaned text and the kinds of PII found (each kind at most once, in
// application order). An empty found slice means the text passed untouched.
func Redact(text string) (string, []string) {
	var found []string
	for _, r := range redactions {
		if !r.pattern.MatchString(text) {
			continue
		}
		text = r.pattern.ReplaceAllString(text, r.replace)
		found = append(found, r.kind)
	}
	return text, found
}

// Contains reports whether text holds any recognizable PII without
// modifying it.
func Contains(text string) bool {
	for _, r := range redactions {
		if r.pattern.MatchString(text) {
			return true
		}
	}
	return false
}
