package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Webhook results recorded by the dispatcher.
const (
	WebhookProcessed        = "processed"
	WebhookDuplicate        = "duplicate"
	WebhookIgnored          = "ignored"
	WebhookSignatureInvalid = "signature_invalid"
	WebhookRejected         = "rejected"
	WebhookRetry            = "retry"
)

// PaymentMetrics covers checkout creation, gateway latency and webhook outcomes.
type PaymentMetrics struct {
	checkouts *prometheus.CounterVec
	gateway   *prometheus.HistogramVec
	webhooks  *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Checkout sessions requested, by gateway and result.",
	}, []string{"gateway", "result"})
	gateway := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_call_duration_seconds",
		Help:    "Latency of outbound payment gateway calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway", "operation"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Gateway webhook deliveries, by gateway and result.",
	}, []string{"gateway", "result"})
	reg.MustRegister(checkouts, gateway, webhooks)
	return &PaymentMetrics{checkouts: checkouts, gateway: gateway, webhooks: webhooks}
}

func (m *PaymentMetrics) IncCheckout(gateway string, ok bool) {
	if m == nil || m.checkouts == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.checkouts.WithLabelValues(normalizeLabel(gateway), result).Inc()
}

func (m *PaymentMetrics) ObserveGatewayCall(gateway, operation string, d time.Duration) {
	if m == nil || m.gateway == nil {
		return
	}
	m.gateway.WithLabelValues(normalizeLabel(gateway), normalizeLabel(operation)).Observe(d.Seconds())
}

func (m *PaymentMetrics) IncWebhook(gateway, result string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(gateway), normalizeLabel(result)).Inc()
}
