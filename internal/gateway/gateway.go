// Package gateway adapts each payment provider to one Strategy contract.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
)

// Item is one line shown on a hosted checkout page.
type Item struct {
	Name      string
	Quantity  int64
	UnitPrice int64
}

// CheckoutSpec is everything a provider needs to open a checkout for one order code.
type CheckoutSpec struct {
	OrderCode     int64
	Amount        int64
	Currency      string
	Description   string
	Items         []Item
	CancelURL     string
	ReturnURL     string
	NotifyURL     string
	CustomerEmail string
	// SourceToken is a client-side card token. Only card gateways read it.
	SourceToken string
}

// CheckoutSession is the redirect target and provider reference of a new checkout.
type CheckoutSession struct {
	Method      enums.PaymentMethod `json:"paymentMethod"`
	OrderCode   int64               `json:"orderCode"`
	CheckoutURL string              `json:"checkoutUrl"`
	ProviderRef string              `json:"providerRef"`
	Amount      int64               `json:"amount"`
	Raw         json.RawMessage     `json:"-"`
}

// TransactionSnapshot is the provider-side state of a checkout.
type TransactionSnapshot struct {
	ProviderRef string
	Status      string
	Paid        bool
	Amount      int64
	Raw         json.RawMessage
}

// WebhookPayload is an inbound provider callback exactly as received.
type WebhookPayload struct {
	Body   []byte
	Header http.Header
}

// Outcome is what a verified callback says happened to a payment.
type Outcome struct {
	Success bool
	// Ignored marks callbacks that carry no terminal result (status updates,
	// unrelated event types). They are acknowledged without touching state.
	Ignored       bool
	CorrelationID int64
	Amount        int64
	ProviderRef   string
	DeliveryID    string
	Payload       json.RawMessage
}

// RefundSpec identifies a captured payment to refund.
type RefundSpec struct {
	OrderCode   int64
	ProviderRef string
	Amount      int64
	Currency    string
	Reason      string
	// Transaction is the latest provider payload stored on the payment.
	Transaction json.RawMessage
}

// RefundResult is the provider's answer to a refund.
type RefundResult struct {
	ProviderRef string
	Status      string
	Raw         json.RawMessage
}

// Ack is the HTTP response a provider expects for a processed callback.
type Ack struct {
	Status int
	Body   []byte
}

// Strategy is the capability set every provider adapter implements.
type Strategy interface {
	Method() enums.PaymentMethod
	CreateCheckout(ctx context.Context, spec CheckoutSpec) (*CheckoutSession, error)
	FetchTransaction(ctx context.Context, providerRef string) (*TransactionSnapshot, error)
	// VerifyWebhook never errors; any malformed input is simply unverified.
	VerifyWebhook(payload WebhookPayload) bool
	ParseOutcome(payload WebhookPayload) (*Outcome, error)
}

// Refunder is implemented by providers that can refund captured payments.
type Refunder interface {
	Refund(ctx context.Context, spec RefundSpec) (*RefundResult, error)
}

// Canceler is implemented by providers whose open checkouts can be voided.
type Canceler interface {
	CancelCheckout(ctx context.Context, providerRef, reason string) error
}

// Acknowledger overrides the default callback acknowledgement.
type Acknowledger interface {
	Ack() Ack
}

var defaultAck = Ack{Status: http.StatusOK, Body: []byte(`{"received":true}`)}

// AckFor returns the acknowledgement s expects for processed callbacks.
func AckFor(s Strategy) Ack {
	if a, ok := s.(Acknowledger); ok {
		return a.Ack()
	}
	return defaultAck
}

// Registry maps each enabled payment method to its strategy. It is built once
// and never mutated, so the method passed on each call is the only selector.
type Registry struct {
	strategies map[enums.PaymentMethod]Strategy
}

// NewRegistry indexes strategies by method. Duplicate methods are rejected.
func NewRegistry(strategies ...Strategy) (*Registry, error) {
	m := make(map[enums.PaymentMethod]Strategy, len(strategies))
	for _, s := range strategies {
		if s == nil {
			continue
		}
		if _, dup := m[s.Method()]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "duplicate gateway strategy "+string(s.Method()))
		}
		m[s.Method()] = s
	}
	return &Registry{strategies: m}, nil
}

// Get resolves the strategy for method.
func (r *Registry) Get(method enums.PaymentMethod) (Strategy, error) {
	if r != nil {
		if s, ok := r.strategies[method]; ok {
			return s, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method not available").
		WithDetails(map[string]any{"paymentMethod": method})
}

// Methods lists the enabled payment methods.
func (r *Registry) Methods() []enums.PaymentMethod {
	out := make([]enums.PaymentMethod, 0, len(r.strategies))
	for _, m := range []enums.PaymentMethod{enums.PaymentMethodPayOS, enums.PaymentMethodMoMo, enums.PaymentMethodSquare, enums.PaymentMethodStripe} {
		if _, ok := r.strategies[m]; ok {
			out = append(out, m)
		}
	}
	return out
}
