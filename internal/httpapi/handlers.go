package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/renalpath/decision-app/internal/assistant"
	"github.com/renalpath/decision-app/internal/feedback"
	"github.com/renalpath/decision-app/internal/metrics"
	"github.com/renalpath/decision-app/internal/privacy"
	"github.com/renalpath/decision-app/internal/ratelimit"
	"github.com/renalpath/decision-app/internal/session"
	"github.com/renalpath/decision-app/internal/speech"
)

const (
	// MaxChatBytes and MaxChatChars bound a single chat message.
	MaxChatBytes = 4096
	MaxChatChars = 2000
)

// errSessionNotFound is the uniform body for absent or expired sessions; the
// two cases are never distinguished to the client.
const errSessionNotFound = "session not found"

// ---------------------------------------------------------------------------
// Request / response bodies
// ---------------------------------------------------------------------------

// ChatRequest is the body of POST /api/sessions/{id}/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse carries the assistant's reply. Redacted lists the kinds of
// PII that were stripped from the user's message before it left the service.
type ChatResponse struct {
	Reply    session.ChatMessage `json:"reply"`
	Redacted []string            `json:"redacted,omitempty"`
}

// SynthesizeRequest is the body of POST /api/speech/synthesize.
type SynthesizeRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// TranscribeResponse is the body returned by POST /api/speech/transcribe.
type TranscribeResponse struct {
	Text string `json:"text"`
}

// FeedbackRequest is the body of POST /api/feedback.
type FeedbackRequest struct {
	JourneyStep string `json:"journeyStep"`
	Rating      int    `json:"rating"`
	Comment     string `json:"comment"`
}

// ---------------------------------------------------------------------------
// Session CRUD
// ---------------------------------------------------------------------------

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	allowed, _ := s.limiter.Allow(r.Context(), clientIP(r), ratelimit.RuleCreate)
	if !allowed {
		writeError(w, http.StatusTooManyRequests, "too many sessions created, try again later")
		return
	}

	rec := s.store.Create(uuid.New().String())
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var update session.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, ok := s.store.Apply(chi.URLParam(r, "id"), update)
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if !s.store.Touch(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.store.Delete(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Chat
// ---------------------------------------------------------------------------

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}

	var req ChatRequest
	// Generous body cap: the JSON envelope and multibyte text inflate the
	// on-wire size well past the message's own byte limit.
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4*MaxChatBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateChatText(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	allowed, _ := s.limiter.Allow(r.Context(), id, ratelimit.RuleChat)
	if !allowed {
		metrics.ChatRequests.WithLabelValues("rate_limited").Inc()
		writeError(w, http.StatusTooManyRequests, "too many messages, slow down a little")
		return
	}

	// Strip PII before the text leaves the process. The redacted form is
	// also what lands in the transcript, so later requests stay clean.
	clean, redacted := privacy.Redact(req.Message)

	history := make([]assistant.Message, 0, len(rec.ChatHistory)+1)
	for _, m := range rec.ChatHistory {
		history = append(history, assistant.Message{Role: m.Role, Content: m.Content})
	}
	history = append(history, assistant.Message{Role: session.RoleUser, Content: clean})

	reply, err := s.assistant.Reply(r.Context(), rec.Preferences["language"], history)
	if err != nil {
		log.Printf("[chat] assistant error session=%s: %v", id, err)
		metrics.ChatRequests.WithLabelValues("error").Inc()
		writeError(w, http.StatusBadGateway, "assistant is unavailable, try again shortly")
		return
	}

	now := time.Now()
	userMsg := session.ChatMessage{
		ID: uuid.New().String(), Role: session.RoleUser, Content: clean, Timestamp: now,
	}
	replyMsg := session.ChatMessage{
		ID: uuid.New().String(), Role: session.RoleAssistant, Content: reply, Timestamp: now,
	}

	// ChatHistory replaces wholesale, so append to the snapshot we read.
	// The session may have expired while the assistant call was in flight.
	if _, ok := s.store.Apply(id, session.Update{
		ChatHistory: append(rec.ChatHistory, userMsg, replyMsg),
	}); !ok {
		metrics.ChatRequests.WithLabelValues("error").Inc()
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}

	metrics.ChatRequests.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, ChatResponse{Reply: replyMsg, Redacted: redacted})
}

// validateChatText checks a chat message against size and encoding limits.
func validateChatText(text string) error {
	if text == "" {
		return fmt.Errorf("message text is empty")
	}
	if len(text) > MaxChatBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxChatBytes)
	}
	if utf8.RuneCountInString(text) > MaxChatChars {
		return fmt.Errorf("message exceeds %d character limit", MaxChatChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Speech
// ---------------------------------------------------------------------------

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req SynthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, ok := s.store.Get(req.SessionID); !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	allowed, _ := s.limiter.Allow(r.Context(), req.SessionID, ratelimit.RuleSpeech)
	if !allowed {
		writeError(w, http.StatusTooManyRequests, "too many speech requests")
		return
	}

	audio, err := s.speech.Synthesize(r.Context(), req.Text)
	if err != nil {
		metrics.SpeechRequests.WithLabelValues("tts", "error").Inc()
		writeError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}
	defer audio.Close()

	metrics.SpeechRequests.WithLabelValues("tts", "ok").Inc()
	w.Header().Set("Content-Type", "audio/mpeg")
	if _, err := io.Copy(w, audio); err != nil {
		log.Printf("[speech] stream to client failed: %v", err)
	}
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, speech.MaxAudioBytes)
	if err := r.ParseMultipartForm(speech.MaxAudioBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid or oversized upload")
		return
	}

	sessionID := r.FormValue("sessionId")
	rec, ok := s.store.Get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	allowed, _ := s.limiter.Allow(r.Context(), sessionID, ratelimit.RuleSpeech)
	if !allowed {
		writeError(w, http.StatusTooManyRequests, "too many speech requests")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing audio file")
		return
	}
	defer file.Close()

	text, err := s.speech.Transcribe(r.Context(), header.Filename, file, rec.Preferences["language"])
	if err != nil {
		metrics.SpeechRequests.WithLabelValues("stt", "error").Inc()
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}

	metrics.SpeechRequests.WithLabelValues("stt", "ok").Inc()
	writeJSON(w, http.StatusOK, TranscribeResponse{Text: text})
}

// ---------------------------------------------------------------------------
// Reference content
// ---------------------------------------------------------------------------

func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.library.Steps)
}

func (s *Server) handleTreatments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.library.Treatments)
}

func (s *Server) handleQuestionnaire(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.library.Questionnaire)
}

// ---------------------------------------------------------------------------
// Feedback
// ---------------------------------------------------------------------------

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback is not available")
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Comments are stored, so scrub them like outbound chat text.
	comment, _ := privacy.Redact(req.Comment)

	err := s.feedback.Create(r.Context(), &feedback.Entry{
		JourneyStep: req.JourneyStep,
		Rating:      req.Rating,
		Comment:     comment,
	})
	if err != nil {
		if feedbackInputError(req) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[feedback] insert failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not save feedback")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// feedbackInputError reports whether the request itself is malformed, as
// opposed to a storage failure.
func feedbackInputError(req FeedbackRequest) bool {
	return req.Rating < feedback.MinRating ||
		req.Rating > feedback.MaxRating ||
		len(req.Comment) > feedback.MaxCommentChars
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"activeSessions": s.store.ActiveCount(),
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[httpapi] response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// clientIP returns the request's client address without the port. The RealIP
// middleware has already folded X-Forwarded-For into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
