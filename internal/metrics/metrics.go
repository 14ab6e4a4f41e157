// Package metrics provides Prometheus instrumentation for the chatguard
// moderation service: request outcomes, detected infractions, enforcement
// failures and decision latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes used as the "outcome" label of ModerationRequests.
const (
	OutcomeClean       = "clean"
	OutcomeBlocked     = "blocked"
	OutcomeSuspended   = "suspended"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

var (
	// ModerationRequests counts moderation calls by outcome.
	ModerationRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatguard_moderation_requests_total",
		Help: "Total number of moderation requests by outcome",
	}, []string{"outcome"})

	// InfractionsDetected counts classifier matches by infraction type.
	InfractionsDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatguard_infractions_total",
		Help: "Total number of detected infractions",
	}, []string{"type"}) // type = email, phone, social, payment, external_link

	// PersistenceFailures counts failed enforcement writes by operation.
	PersistenceFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatguard_persistence_failures_total",
		Help: "Total number of failed enforcement writes",
	}, []string{"operation"}) // operation = record_infraction, increment_strikes, publish_flagged

	// StrikesIssued counts successful strike increments.
	StrikesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatguard_strikes_issued_total",
		Help: "Total number of strikes issued to senders",
	})

	// ModerationLatency records the time spent deciding on a message, side
	// effects included.
	ModerationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatguard_moderation_latency_seconds",
		Help:    "Moderation latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})
)

func init() {
	prometheus.MustRegister(
		ModerationRequests,
		InfractionsDetected,
		PersistenceFailures,
		StrikesIssued,
		ModerationLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
