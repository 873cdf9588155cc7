// Package metrics exposes Prometheus instrumentation for forwarding and
// scoring runs. A CLI run has no scrape endpoint, so the registry is written
// to a node-exporter textfile at the end of the run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeCached  = "cached"
)

// Metrics holds the run's collectors. All methods are safe on a nil
// receiver, which records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	ForwardRequests *prometheus.CounterVec
	ForwardRetries  *prometheus.CounterVec
	ForwardDuration *prometheus.HistogramVec
	RateLimitWait   *prometheus.HistogramVec
	TokensUsed      *prometheus.CounterVec
	ScoresTotal     *prometheus.CounterVec
	ScoreValue      *prometheus.HistogramVec
	FilesFinalized  *prometheus.CounterVec
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ForwardRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peerbench_forward_requests_total",
				Help: "Forward calls by provider, model and outcome",
			},
			[]string{"provider", "model", "outcome"},
		),
		ForwardRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peerbench_forward_retries_total",
				Help: "Forward attempts retried after a backend error",
			},
			[]string{"provider"},
		),
		ForwardDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "peerbench_forward_duration_seconds",
				Help:    "Wall time of successful forward calls",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"provider", "model"},
		),
		RateLimitWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "peerbench_ratelimit_wait_seconds",
				Help:    "Time spent waiting for rate limiter admission",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"provider"},
		),
		TokensUsed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peerbench_tokens_total",
				Help: "Tokens consumed by direction",
			},
			[]string{"provider", "model", "direction"},
		),
		ScoresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peerbench_scores_total",
				Help: "Score attempts by scorer and outcome",
			},
			[]string{"scorer", "outcome"},
		),
		ScoreValue: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "peerbench_score_value",
				Help:    "Distribution of produced scores",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"scorer"},
		),
		FilesFinalized: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peerbench_files_finalized_total",
				Help: "Output files closed and hashed",
			},
			[]string{"kind", "signed"},
		),
	}
}

// ObserveForward records one forward call.
func (m *Metrics) ObserveForward(provider, model, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ForwardRequests.WithLabelValues(provider, model, outcome).Inc()
	if outcome == OutcomeSuccess {
		m.ForwardDuration.WithLabelValues(provider, model).Observe(d.Seconds())
	}
}

// ObserveRetry records a retried attempt.
func (m *Metrics) ObserveRetry(provider string) {
	if m == nil {
		return
	}
	m.ForwardRetries.WithLabelValues(provider).Inc()
}

// ObserveRateLimitWait records limiter wait time.
func (m *Metrics) ObserveRateLimitWait(provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWait.WithLabelValues(provider).Observe(d.Seconds())
}

// AddTokens records token usage. Nil counts are skipped.
func (m *Metrics) AddTokens(provider, model string, input, output *int64) {
	if m == nil {
		return
	}
	if input != nil {
		m.TokensUsed.WithLabelValues(provider, model, "input").Add(float64(*input))
	}
	if output != nil {
		m.TokensUsed.WithLabelValues(provider, model, "output").Add(float64(*output))
	}
}

// ObserveScore records one scoring attempt; value is ignored on failure.
func (m *Metrics) ObserveScore(scorer, outcome string, value float64) {
	if m == nil {
		return
	}
	m.ScoresTotal.WithLabelValues(scorer, outcome).Inc()
	if outcome == OutcomeSuccess {
		m.ScoreValue.WithLabelValues(scorer).Observe(value)
	}
}

// ObserveFinalized records a finalized output file.
func (m *Metrics) ObserveFinalized(kind string, signed bool) {
	if m == nil {
		return
	}
	m.FilesFinalized.WithLabelValues(kind, fmt.Sprint(signed)).Inc()
}

// WriteTextfile writes the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
