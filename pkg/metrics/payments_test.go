package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPaymentMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)

	m.IncCheckout("PAY_OS", true)
	m.IncCheckout("PAY_OS", false)
	m.IncWebhook("MOMO", WebhookDuplicate)
	m.IncWebhook("MOMO", WebhookDuplicate)
	m.ObserveGatewayCall("STRIPE", "create_checkout", 120*time.Millisecond)

	if got := testutil.ToFloat64(m.checkouts.WithLabelValues("PAY_OS", "success")); got != 1 {
		t.Fatalf("expected 1 successful checkout, got %f", got)
	}
	if got := testutil.ToFloat64(m.checkouts.WithLabelValues("PAY_OS", "failure")); got != 1 {
		t.Fatalf("expected 1 failed checkout, got %f", got)
	}
	if got := testutil.ToFloat64(m.webhooks.WithLabelValues("MOMO", WebhookDuplicate)); got != 2 {
		t.Fatalf("expected 2 duplicate deliveries, got %f", got)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got, err := fetchHistogramSum(mfs, "gateway_call_duration_seconds", "gateway", "STRIPE"); err != nil || got <= 0 {
		t.Fatalf("expected gateway latency sample, got %f (%v)", got, err)
	}
}

func TestPaymentMetricsNilSafe(t *testing.T) {
	var m *PaymentMetrics
	m.IncCheckout("x", true)
	m.IncWebhook("x", WebhookProcessed)
	m.ObserveGatewayCall("x", "y", time.Second)
	NewPaymentMetrics(nil).IncWebhook("x", WebhookRetry)
}
