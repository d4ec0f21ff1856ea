package gateway

import (
	"context"
	"encoding/json"

	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/stripe"
)

const (
	stripeEventCompleted      = "checkout.session.completed"
	stripeEventAsyncSucceeded = "checkout.session.async_payment_succeeded"
	stripeEventAsyncFailed    = "checkout.session.async_payment_failed"
	stripeEventExpired        = "checkout.session.expired"
)

type stripeAPI interface {
	CreateSession(ctx context.Context, params stripe.SessionParams) (*stripe.Session, error)
	GetSession(ctx context.Context, id string) (*stripe.Session, error)
	Refund(ctx context.Context, paymentIntentID string, amount int64) (json.RawMessage, error)
	ParseWebhook(payload []byte, sigHeader string) (*stripe.Event, error)
}

// Stripe redirects to a hosted Checkout Session tagged with the order code.
type Stripe struct {
	client stripeAPI
}

func NewStripe(client stripeAPI) *Stripe {
	return &Stripe{client: client}
}

func (s *Stripe) Method() enums.PaymentMethod { return enums.PaymentMethodStripe }

func (s *Stripe) CreateCheckout(ctx context.Context, spec CheckoutSpec) (*CheckoutSession, error) {
	items := make([]stripe.LineItem, 0, len(spec.Items))
	for _, it := range spec.Items {
		items = append(items, stripe.LineItem{Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	session, err := s.client.CreateSession(ctx, stripe.SessionParams{
		OrderCode:  spec.OrderCode,
		Currency:   spec.Currency,
		Items:      items,
		SuccessURL: spec.ReturnURL,
		CancelURL:  spec.CancelURL,
		Email:      spec.CustomerEmail,
	})
	if err != nil {
		return nil, asGatewayError(err, "stripe create session")
	}
	return &CheckoutSession{
		Method:      enums.PaymentMethodStripe,
		OrderCode:   spec.OrderCode,
		CheckoutURL: session.URL,
		ProviderRef: session.ID,
		Amount:      session.AmountTotal,
		Raw:         session.Raw,
	}, nil
}

func (s *Stripe) FetchTransaction(ctx context.Context, providerRef string) (*TransactionSnapshot, error) {
	session, err := s.client.GetSession(ctx, providerRef)
	if err != nil {
		return nil, asGatewayError(err, "stripe get session")
	}
	return &TransactionSnapshot{
		ProviderRef: session.ID,
		Status:      session.Status,
		Paid:        session.PaymentStatus == "paid",
		Amount:      session.AmountTotal,
		Raw:         session.Raw,
	}, nil
}

func (s *Stripe) Refund(ctx context.Context, spec RefundSpec) (*RefundResult, error) {
	session, err := s.client.GetSession(ctx, spec.ProviderRef)
	if err != nil {
		return nil, asGatewayError(err, "stripe get session")
	}
	raw, err := s.client.Refund(ctx, session.PaymentIntentID, spec.Amount)
	if err != nil {
		return nil, asGatewayError(err, "stripe refund")
	}
	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	_ = json.Unmarshal(raw, &refund)
	return &RefundResult{ProviderRef: refund.ID, Status: refund.Status, Raw: raw}, nil
}

func (s *Stripe) VerifyWebhook(payload WebhookPayload) bool {
	_, err := s.client.ParseWebhook(payload.Body, payload.Header.Get(stripe.SignatureHeader))
	return err == nil
}

func (s *Stripe) ParseOutcome(payload WebhookPayload) (*Outcome, error) {
	event, err := s.client.ParseWebhook(payload.Body, payload.Header.Get(stripe.SignatureHeader))
	if err != nil {
		return nil, err
	}
	out := &Outcome{DeliveryID: event.ID, Payload: payload.Body}
	if event.Session == nil {
		out.Ignored = true
		return out, nil
	}
	switch event.Type {
	case stripeEventCompleted, stripeEventAsyncSucceeded:
		if event.Session.PaymentStatus != "paid" {
			// Delayed methods complete the session before funds arrive.
			out.Ignored = true
			return out, nil
		}
		out.Success = true
	case stripeEventAsyncFailed, stripeEventExpired:
	default:
		out.Ignored = true
		return out, nil
	}
	if event.Session.OrderCode <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe session carries no order code")
	}
	out.CorrelationID = event.Session.OrderCode
	out.Amount = event.Session.AmountTotal
	out.ProviderRef = event.Session.ID
	out.Payload = event.Session.Raw
	return out, nil
}
