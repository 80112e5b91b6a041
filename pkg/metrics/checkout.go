package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics tracks the checkout flow: rate lookups, submissions and
// payment outcomes.
type CheckoutMetrics struct {
	refreshDuration *prometheus.HistogramVec
	submissions     *prometheus.CounterVec
	payments        *prometheus.CounterVec
	cartRejections  *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	refreshDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_refresh_duration_seconds",
		Help:    "Duration of address validation and shipping rate lookups.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_submissions_total",
		Help: "Checkout submissions by outcome.",
	}, []string{"outcome"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_payments_total",
		Help: "Payment session results by outcome.",
	}, []string{"outcome"})
	cartRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_rejections_total",
		Help: "Cart mutations refused or clamped by inventory.",
	}, []string{"reason"})
	reg.MustRegister(refreshDuration, submissions, payments, cartRejections)
	return &CheckoutMetrics{
		refreshDuration: refreshDuration,
		submissions:     submissions,
		payments:        payments,
		cartRejections:  cartRejections,
	}
}

// ObserveRefresh records how long a shipping refresh took.
func (m *CheckoutMetrics) ObserveRefresh(outcome string, duration time.Duration) {
	if m == nil || m.refreshDuration == nil {
		return
	}
	m.refreshDuration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncSubmission counts a checkout submission.
func (m *CheckoutMetrics) IncSubmission(outcome string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncPayment counts a payment verification or webhook outcome.
func (m *CheckoutMetrics) IncPayment(outcome string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncCartRejection counts an add or update limited by stock.
func (m *CheckoutMetrics) IncCartRejection(reason string) {
	if m == nil || m.cartRejections == nil {
		return
	}
	m.cartRejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
