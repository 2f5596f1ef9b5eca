// Package metrics provides Prometheus instrumentation for the RenalPath
// decision service. It exposes gauges for session counts, counters for
// session lifecycle and chat throughput, and histograms for assistant
// latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveSessions tracks the number of session records currently held,
	// including expired records the sweep has not removed yet.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "renalpath_active_sessions",
		Help: "Current number of session records held in memory",
	})

	// SessionsCreated counts sessions created since process start.
	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "renalpath_sessions_created_total",
		Help: "Total number of sessions created",
	})

	// SessionsExpired counts evicted sessions, labeled by eviction path:
	// "lazy" (discovered expired on access) or "sweep" (periodic scan).
	SessionsExpired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "renalpath_sessions_expired_total",
		Help: "Total number of expired sessions evicted",
	}, []string{"path"}) // path = "lazy", "sweep"

	// ChatRequests counts assistant chat requests, labeled by outcome.
	ChatRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "renalpath_chat_requests_total",
		Help: "Total number of chat requests processed",
	}, []string{"outcome"}) // outcome = "ok", "error", "rate_limited"

	// AssistantLatency records end-to-end assistant call latency in seconds.
	AssistantLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "renalpath_assistant_latency_seconds",
		Help:    "AI assistant request latency in seconds",
		Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30},
	})

	// SpeechRequests counts text-to-speech and transcription proxy calls,
	// labeled by kind ("tts", "stt") and outcome ("ok", "error").
	SpeechRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "renalpath_speech_requests_total",
		Help: "Total number of speech proxy requests",
	}, []string{"kind", "outcome"})
)

func init() {
	prometheus.MustRegister(
		ActiveSessions,
		SessionsCreated,
		SessionsExpired,
		ChatRequests,
		AssistantLatency,
		SpeechRequests,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
