package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestEngineCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.Settlement("gateway", ResultOK, 10*time.Millisecond)
	m.Settlement("gateway", ResultOK, 10*time.Millisecond)
	m.Settlement("direct", ResultDuplicate, time.Millisecond)
	m.Webhook("payment_intent.succeeded", ResultOK)
	m.Retry(ResultCapped)
	m.Clamped()
	m.Checkout("direct", ResultOK)
	m.GatewayError("transient")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.settlements.WithLabelValues("gateway", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("direct", ResultDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhooks.WithLabelValues("payment_intent.succeeded", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues(ResultCapped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.clamped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkouts.WithLabelValues("direct", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gatewayErrors.WithLabelValues("transient")))
}

func TestNilEngineIsNoop(t *testing.T) {
	var m *Engine
	assert.NotPanics(t, func() {
		m.Settlement("gateway", ResultOK, time.Second)
		m.Webhook("x", ResultIgnored)
		m.Retry(ResultOK)
		m.Clamped()
		m.Checkout("gateway", ResultOK)
		m.GatewayError("rejected")
	})
}
