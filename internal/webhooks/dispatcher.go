// Package webhooks receives gateway callbacks and hands them to the payment
// orchestrator, answering each provider the way it expects.
package webhooks

import (
	"context"

	"github.com/furnique/furnique-backend/internal/gateway"
	"github.com/furnique/furnique-backend/internal/payments"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/metrics"
)

type processor interface {
	ProcessWebhook(ctx context.Context, method enums.PaymentMethod, payload gateway.WebhookPayload) (*payments.WebhookResult, error)
}

type DispatcherParams struct {
	Registry  *gateway.Registry
	Processor processor
	// Guard is optional; without it replays are still absorbed by state guards.
	Guard   *DeliveryGuard
	Metrics *metrics.PaymentMetrics
	Logger  *logger.Logger
}

// Dispatcher verifies, deduplicates and routes gateway callbacks.
type Dispatcher struct {
	registry  *gateway.Registry
	processor processor
	guard     *DeliveryGuard
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	switch {
	case params.Registry == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway registry required")
	case params.Processor == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook processor required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Dispatcher{
		registry:  params.Registry,
		processor: params.Processor,
		guard:     params.Guard,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// Dispatch returns the acknowledgement to send back to the gateway. An error
// is returned only for unknown gateways and for failures the gateway should
// retry; every business outcome, including a forged signature, is acked.
func (d *Dispatcher) Dispatch(ctx context.Context, method enums.PaymentMethod, payload gateway.WebhookPayload) (gateway.Ack, error) {
	strategy, err := d.registry.Get(method)
	if err != nil {
		return gateway.Ack{}, err
	}
	ack := gateway.AckFor(strategy)
	ctx = d.logg.WithGateway(ctx, method.Slug())

	if !strategy.VerifyWebhook(payload) {
		d.logg.Warn(ctx, "webhook signature rejected")
		d.metrics.IncWebhook(string(method), metrics.WebhookSignatureInvalid)
		return ack, nil
	}

	deliveryID := d.deliveryID(strategy, payload)
	if d.guard != nil {
		seen, err := d.guard.CheckAndMark(ctx, method, deliveryID)
		switch {
		case err != nil:
			d.logg.Warn(ctx, "delivery guard unavailable: "+err.Error())
		case seen:
			d.logg.Info(d.logg.WithField(ctx, "delivery_id", deliveryID), "webhook delivery replayed")
			d.metrics.IncWebhook(string(method), metrics.WebhookDuplicate)
			return ack, nil
		}
	}

	result, err := d.processor.ProcessWebhook(ctx, method, payload)
	if pkgerrors.HasCode(err, pkgerrors.CodePaymentNotFound) {
		// The draft may not be committed yet; let the gateway redeliver.
		err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment not visible yet")
	}
	if err != nil {
		return d.failed(ctx, method, deliveryID, ack, err)
	}

	switch {
	case result.Ignored:
		d.metrics.IncWebhook(string(method), metrics.WebhookIgnored)
	case result.Duplicate:
		d.metrics.IncWebhook(string(method), metrics.WebhookDuplicate)
	default:
		d.metrics.IncWebhook(string(method), metrics.WebhookProcessed)
	}
	return ack, nil
}

func (d *Dispatcher) failed(ctx context.Context, method enums.PaymentMethod, deliveryID string, ack gateway.Ack, err error) (gateway.Ack, error) {
	if pkgerrors.IsRetryable(err) {
		if d.guard != nil {
			if relErr := d.guard.Release(ctx, method, deliveryID); relErr != nil {
				d.logg.Warn(ctx, "release delivery guard: "+relErr.Error())
			}
		}
		d.logg.Error(ctx, "webhook processing failed, gateway will retry", err)
		d.metrics.IncWebhook(string(method), metrics.WebhookRetry)
		return gateway.Ack{}, err
	}
	d.logg.Error(d.logg.WithField(ctx, "error_code", string(pkgerrors.CodeOf(err))), "webhook rejected", err)
	d.metrics.IncWebhook(string(method), metrics.WebhookRejected)
	return ack, nil
}

func (d *Dispatcher) deliveryID(strategy gateway.Strategy, payload gateway.WebhookPayload) string {
	if outcome, err := strategy.ParseOutcome(payload); err == nil && outcome.DeliveryID != "" {
		return outcome.DeliveryID
	}
	return bodyDigest(payload.Body)
}
