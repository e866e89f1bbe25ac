package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records the purchase funnel counters.
type CheckoutMetrics struct {
	opened          prometheus.Counter
	leads           prometheus.Counter
	intentCreated   *prometheus.CounterVec
	confirmOutcome  *prometheus.CounterVec
	confirmDuration prometheus.Histogram
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	opened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_opened_total",
		Help: "Checkout modal sessions opened.",
	})
	leads := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_leads_total",
		Help: "Lead forms successfully submitted.",
	})
	intentCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_intents_total",
		Help: "Payment intents created, by path.",
	}, []string{"path"})
	confirmOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_confirm_total",
		Help: "Gateway confirmation outcomes.",
	}, []string{"outcome"})
	confirmDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_confirm_duration_seconds",
		Help:    "Duration of gateway confirmation calls in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(opened, leads, intentCreated, confirmOutcome, confirmDuration)
	return &CheckoutMetrics{
		opened:          opened,
		leads:           leads,
		intentCreated:   intentCreated,
		confirmOutcome:  confirmOutcome,
		confirmDuration: confirmDuration,
	}
}

// IncOpened counts a modal opening.
func (c *CheckoutMetrics) IncOpened() {
	if c == nil || c.opened == nil {
		return
	}
	c.opened.Inc()
}

// IncLead counts a submitted lead form.
func (c *CheckoutMetrics) IncLead() {
	if c == nil || c.leads == nil {
		return
	}
	c.leads.Inc()
}

// IncIntent counts an intent creation on the named path (predictive or cold).
func (c *CheckoutMetrics) IncIntent(path string) {
	if c == nil || c.intentCreated == nil {
		return
	}
	c.intentCreated.WithLabelValues(normalizeLabel(path)).Inc()
}

// IncConfirm counts a confirmation outcome (succeeded, requires_action, declined, error).
func (c *CheckoutMetrics) IncConfirm(outcome string) {
	if c == nil || c.confirmOutcome == nil {
		return
	}
	c.confirmOutcome.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveConfirmDuration records how long the gateway confirmation took.
func (c *CheckoutMetrics) ObserveConfirmDuration(duration time.Duration) {
	if c == nil || c.confirmDuration == nil {
		return
	}
	c.confirmDuration.Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
