// Package httpapi exposes the decision-journey service over a JSON HTTP API.
// Handlers translate requests into store and service calls; all user-visible
// status codes and error bodies are produced here, never by the layers below.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/renalpath/decision-app/internal/assistant"
	"github.com/renalpath/decision-app/internal/content"
	"github.com/renalpath/decision-app/internal/feedback"
	"github.com/renalpath/decision-app/internal/metrics"
	"github.com/renalpath/decision-app/internal/ratelimit"
	"github.com/renalpath/decision-app/internal/session"
	"github.com/renalpath/decision-app/internal/speech"
)

// Server holds the service dependencies shared by all handlers.
type Server struct {
	store     *session.Store
	limiter   *ratelimit.Limiter
	assistant assistant.Assistant
	speech    *speech.Service
	feedback  *feedback.Store // nil when no database is configured
	library   *content.Library
}

// NewServer wires handlers to their dependencies. feedbackStore may be nil;
// the feedback endpoint then reports the feature unavailable.
func NewServer(
	store *session.Store,
	limiter *ratelimit.Limiter,
	asst assistant.Assistant,
	speechSvc *speech.Service,
	feedbackStore *feedback.Store,
	library *content.Library,
) *Server {
	return &Server{
		store:     store,
		limiter:   limiter,
		assistant: asst,
		speech:    speechSvc,
		feedback:  feedbackStore,
		library:   library,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Patch("/", s.handleUpdateSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/heartbeat", s.handleHeartbeat)
			r.Post("/chat", s.handleChat)
		})

		r.Post("/speech/synthesize", s.handleSynthesize)
		r.Post("/speech/transcribe", s.handleTranscribe)

		r.Get("/content/steps", s.handleSteps)
		r.Get("/content/treatments", s.handleTreatments)
		r.Get("/content/questionnaire", s.handleQuestionnaire)

		r.Post("/feedback", s.handleFeedback)
	})

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}
