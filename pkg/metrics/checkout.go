package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics counts session creation and payment completion outcomes.
type CheckoutMetrics struct {
	sessions      *prometheus.CounterVec
	completions   *prometheus.CounterVec
	stockFailures prometheus.Counter
	duration      *prometheus.HistogramVec
}

// NewCheckoutMetrics registers the checkout metrics on reg. A nil registerer
// yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Checkout sessions requested, by result.",
	}, []string{"result"})
	completions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_completions_total",
		Help: "Payment completions handled, by entry point and result.",
	}, []string{"source", "result"})
	stockFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_stock_failures_total",
		Help: "Completions rejected for insufficient stock.",
	})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_completion_duration_seconds",
		Help:    "Duration of the completion transaction in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
	reg.MustRegister(sessions, completions, stockFailures, duration)
	return &CheckoutMetrics{
		sessions:      sessions,
		completions:   completions,
		stockFailures: stockFailures,
		duration:      duration,
	}
}

// ObserveSession records a session creation attempt.
func (c *CheckoutMetrics) ObserveSession(result string) {
	if c == nil || c.sessions == nil {
		return
	}
	c.sessions.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveCompletion records one completion outcome and its duration.
func (c *CheckoutMetrics) ObserveCompletion(source, result string, elapsed time.Duration) {
	if c == nil || c.completions == nil {
		return
	}
	source = normalizeLabel(source)
	c.completions.WithLabelValues(source, normalizeLabel(result)).Inc()
	c.duration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// IncStockFailure counts a stock re-verification or decrement failure.
func (c *CheckoutMetrics) IncStockFailure() {
	if c == nil || c.stockFailures == nil {
		return
	}
	c.stockFailures.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
