package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	WalletOperations *prometheus.CounterVec
	WebhooksReceived *prometheus.CounterVec
	Credits          *prometheus.CounterVec
	CreditRetries    *prometheus.CounterVec
	RetryQueueDepth  prometheus.Gauge
	OutboxPublished  prometheus.Counter
	LockWait         prometheus.Histogram
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		WalletOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_operations_total",
			Help: "Wallet mutations by type and result",
		}, []string{"type", "result"}),
		WebhooksReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Payment webhook deliveries by provider and outcome",
		}, []string{"provider", "outcome"}),
		Credits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_credits_total",
			Help: "Payment crediting attempts by result",
		}, []string{"result"}),
		CreditRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_credit_retries_total",
			Help: "Credit retry scheduler events",
		}, []string{"event"}),
		RetryQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "payment_credit_retry_pending",
			Help: "Credit retries currently armed in memory",
		}),
		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox events published to Kafka",
		}),
		LockWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallet_lock_wait_seconds",
			Help:    "Time spent acquiring the wallet row lock",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WalletOp records a wallet mutation result.
func (m *Metrics) WalletOp(txType, result string) {
	if m == nil {
		return
	}
	m.WalletOperations.WithLabelValues(txType, result).Inc()
}

// Webhook records a webhook delivery outcome.
func (m *Metrics) Webhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.WebhooksReceived.WithLabelValues(provider, outcome).Inc()
}

// Credit records a crediting attempt result.
func (m *Metrics) Credit(result string) {
	if m == nil {
		return
	}
	m.Credits.WithLabelValues(result).Inc()
}

// Retry records a scheduler event (scheduled, fired, exhausted, restored).
func (m *Metrics) Retry(event string) {
	if m == nil {
		return
	}
	m.CreditRetries.WithLabelValues(event).Inc()
}

// SetRetryPending reports the number of armed timers.
func (m *Metrics) SetRetryPending(n int) {
	if m == nil {
		return
	}
	m.RetryQueueDepth.Set(float64(n))
}

// ObserveLockWait records how long a wallet lock took.
func (m *Metrics) ObserveLockWait(seconds float64) {
	if m == nil {
		return
	}
	m.LockWait.Observe(seconds)
}
