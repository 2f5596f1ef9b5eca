// Package assistant generates AI chat replies for the decision journey. The
// assistant is an education aide: it explains kidney-treatment options in
// plain language and never gives individual medical advice. Callers are
// responsible for redacting PII from the transcript before it reaches this
// package (see internal/privacy).
package assistant

import (
	"context"
	"fmt"
)

// Message is one turn of the conversation passed to the assistant.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Assistant produces a reply to the latest user turn given the prior
// transcript. Implementations must be safe for concurrent use.
type Assistant interface {
	Reply(ctx context.Context, language string, history []Message) (string, error)
}

// systemPrompt frames every conversation. The language code from the
// session's preferences is appended so the model answers in the patient's
// chosen language.
const systemPrompt = `You are a patient education assistant for people facing
chronic kidney disease treatment decisions. Explain options (in-center
hemodialysis, home hemodialysis, peritoneal dialysis, kidney transplant,
conservative management) in plain, simple language at an 8th-grade reading
level. Be warm and unhurried. Never give individual medical advice, never
predict outcomes for this specific patient, and always encourage discussing
decisions with their care team. If asked something outside kidney treatment,
gently steer back to the decision journey.`

// buildSystemPrompt appends the reply-language instruction when the session
// has a non-default language preference.
func buildSystemPrompt(language string) string {
	if language == "" || language == "en" {
		return systemPrompt
	}
	return fmt.Sprintf("%s\n\nReply in the language with ISO code %q.", systemPrompt, language)
}
