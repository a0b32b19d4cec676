// Package metrics exposes the settlement engine's Prometheus counters.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultOK        = "ok"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
	ResultRejected  = "rejected"
	ResultTransient = "transient"
	ResultIgnored   = "ignored"
	ResultUnmatched = "unmatched"
	ResultCapped    = "capped"
)

// Engine groups the counters. A nil *Engine records nothing.
type Engine struct {
	checkouts      *prometheus.CounterVec
	settlements    *prometheus.CounterVec
	settleDuration prometheus.Histogram
	clamped        prometheus.Counter
	webhooks       *prometheus.CounterVec
	retries        *prometheus.CounterVec
	gatewayErrors  *prometheus.CounterVec
}

var (
	defaultOnce sync.Once
	defaultEng  *Engine
)

// Default returns the engine metrics registered on the default registerer.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEng = New(prometheus.DefaultRegisterer)
	})
	return defaultEng
}

// New builds and registers the engine metrics on registerer.
func New(registerer prometheus.Registerer) *Engine {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	e := &Engine{
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microgive_checkouts_total",
			Help: "Checkout requests by settlement mode and result.",
		}, []string{"mode", "result"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microgive_settlements_total",
			Help: "Settlement attempts by mode and result.",
		}, []string{"mode", "result"}),
		settleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "microgive_settlement_duration_seconds",
			Help:    "Time spent inside the settlement transaction.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		clamped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "microgive_ledger_clamped_total",
			Help: "Contributions clamped because they would overshoot a goal.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microgive_webhook_events_total",
			Help: "Gateway webhook events by type and result.",
		}, []string{"type", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microgive_payment_retries_total",
			Help: "Retry attempts by result.",
		}, []string{"result"}),
		gatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microgive_gateway_errors_total",
			Help: "Gateway call failures by class.",
		}, []string{"class"}),
	}
	registerer.MustRegister(
		e.checkouts,
		e.settlements,
		e.settleDuration,
		e.clamped,
		e.webhooks,
		e.retries,
		e.gatewayErrors,
	)
	return e
}

func (e *Engine) Checkout(mode, result string) {
	if e == nil {
		return
	}
	e.checkouts.WithLabelValues(mode, result).Inc()
}

func (e *Engine) Settlement(mode, result string, took time.Duration) {
	if e == nil {
		return
	}
	e.settlements.WithLabelValues(mode, result).Inc()
	e.settleDuration.Observe(took.Seconds())
}

func (e *Engine) Clamped() {
	if e == nil {
		return
	}
	e.clamped.Inc()
}

func (e *Engine) Webhook(eventType, result string) {
	if e == nil {
		return
	}
	e.webhooks.WithLabelValues(eventType, result).Inc()
}

func (e *Engine) Retry(result string) {
	if e == nil {
		return
	}
	e.retries.WithLabelValues(result).Inc()
}

func (e *Engine) GatewayError(class string) {
	if e == nil {
		return
	}
	e.gatewayErrors.WithLabelValues(class).Inc()
}
