// Package session manages anonymous decision-journey sessions. Each visitor
// gets an opaque token that maps to an in-memory record holding their
// preferences, recorded answers, chat transcript, and current journey step.
// Records expire a fixed TTL after last access and are reclaimed both lazily
// (on access) and by a periodic background sweep.
package session

import "time"

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StepWelcome is the journey step assigned to every new session.
const StepWelcome = "welcome"

// Answer is one recorded questionnaire response.
type Answer struct {
	QuestionID string    `json:"questionId"`
	Answer     string    `json:"answer"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// ChatMessage is one entry in a session's chat transcript.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // RoleUser or RoleAssistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is the full server-side state for one session. The HTTP layer
// serializes it as-is; the store itself never produces response payloads.
type Record struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	ExpiresAt      time.Time `json:"expiresAt"`

	// Preferences holds display/accessibility settings (text size,
	// high-contrast flag, language code). Updated key-by-key.
	Preferences map[string]string `json:"preferences"`

	// Values holds free-form decision-relevant fields (priorities,
	// concerns, lifestyle notes). Updated key-by-key like Preferences.
	Values map[string]string `json:"values"`

	// QuestionnaireAnswers and ChatHistory are whole-value fields: an
	// update that supplies them replaces the sequence entirely.
	QuestionnaireAnswers []Answer      `json:"questionnaireAnswers"`
	ChatHistory          []ChatMessage `json:"chatHistory"`

	CurrentStep string `json:"currentStep"`
}

// Update is a partial change to a Record. A nil map or slice means "field not
// supplied, leave as-is". Non-nil maps merge key-by-key into the existing
// mapping; non-nil slices (including empty ones) replace the stored sequence
// wholesale. An empty CurrentStep leaves the step unchanged.
type Update struct {
	Preferences          map[string]string `json:"preferences"`
	Values               map[string]string `json:"values"`
	QuestionnaireAnswers []Answer          `json:"questionnaireAnswers"`
	ChatHistory          []ChatMessage     `json:"chatHistory"`
	CurrentStep          string            `json:"currentStep"`
}

// clone returns a deep copy of the record so callers never share or mutate
// store-internal state.
func (r *Record) clone() *Record {
	c := *r
	c.Preferences = make(map[string]string, len(r.Preferences))
	for k, v := range r.Preferences {
		c.Preferences[k] = v
	}
	c.Values = make(map[string]string, len(r.Values))
	for k, v := range r.Values {
		c.Values[k] = v
	}
	c.QuestionnaireAnswers = make([]Answer, len(r.QuestionnaireAnswers))
	copy(c.QuestionnaireAnswers, r.QuestionnaireAnswers)
	c.ChatHistory = make([]ChatMessage, len(r.ChatHistory))
	copy(c.ChatHistory, r.ChatHistory)
	return &c
}
