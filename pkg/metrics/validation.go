package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels recorded for completed validations.
const (
	OutcomeValid       = "valid"
	OutcomeStatusError = "status_error"
	OutcomeFailure     = "failure"
	OutcomeCancelled   = "cancelled"
)

// ValidationMetrics records license validation outcomes.
type ValidationMetrics struct {
	outcomes      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	statusFetch   prometheus.Counter
	registrations *prometheus.CounterVec
}

// NewValidationMetrics registers the validation metrics on the provided
// registerer. A nil registerer yields a no-op collector.
func NewValidationMetrics(reg prometheus.Registerer) *ValidationMetrics {
	if reg == nil {
		return &ValidationMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lcp_validations_total",
		Help: "License validations by terminal outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lcp_validation_duration_seconds",
		Help:    "Duration of license validations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	statusFetch := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lcp_status_fetch_failures_total",
		Help: "Status document fetches that degraded to license-only validation.",
	})
	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lcp_device_registrations_total",
		Help: "Device registration attempts by result.",
	}, []string{"result"})
	reg.MustRegister(outcomes, duration, statusFetch, registrations)
	return &ValidationMetrics{
		outcomes:      outcomes,
		duration:      duration,
		statusFetch:   statusFetch,
		registrations: registrations,
	}
}

// ObserveValidation records one completed validation.
func (m *ValidationMetrics) ObserveValidation(outcome string, elapsed time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	label := normalizeLabel(outcome)
	m.outcomes.WithLabelValues(label).Inc()
	m.duration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// IncStatusFetchFailure counts a degraded status document fetch.
func (m *ValidationMetrics) IncStatusFetchFailure() {
	if m == nil || m.statusFetch == nil {
		return
	}
	m.statusFetch.Inc()
}

// IncRegistration counts a device registration attempt.
func (m *ValidationMetrics) IncRegistration(result string) {
	if m == nil || m.registrations == nil {
		return
	}
	m.registrations.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
