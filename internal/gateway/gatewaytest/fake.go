// Package gatewaytest provides an in-memory gateway strategy for tests.
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/furnique/furnique-backend/internal/gateway"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
)

// SignatureHeader carries the fake signature; only ValidSignature verifies.
const (
	SignatureHeader = "X-Fake-Signature"
	ValidSignature  = "ok"
)

// Callback is the body ParseOutcome understands.
type Callback struct {
	OrderCode  int64  `json:"orderCode"`
	Amount     int64  `json:"amount"`
	Success    bool   `json:"success"`
	Ignored    bool   `json:"ignored,omitempty"`
	DeliveryID string `json:"deliveryId,omitempty"`
}

// Fake records every call and answers from its fields.
type Fake struct {
	MethodValue enums.PaymentMethod
	CreateErr   error
	RefundErr   error
	FetchErr    error
	AckValue    *gateway.Ack
	// BeforeRefund runs ahead of every refund, outside the fake's lock.
	BeforeRefund func()

	mu       sync.Mutex
	created  []gateway.CheckoutSpec
	canceled []string
	refunds  []gateway.RefundSpec
	paid     map[string]int64
	fetched  []string
}

var (
	_ gateway.Strategy = (*Fake)(nil)
	_ gateway.Refunder = (*Fake)(nil)
	_ gateway.Canceler = (*Fake)(nil)
)

// New returns a fake for method.
func New(method enums.PaymentMethod) *Fake {
	return &Fake{MethodValue: method}
}

func (f *Fake) Method() enums.PaymentMethod { return f.MethodValue }

func (f *Fake) CreateCheckout(_ context.Context, spec gateway.CheckoutSpec) (*gateway.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, spec)
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	ref := fmt.Sprintf("ref-%d", spec.OrderCode)
	raw, _ := json.Marshal(map[string]any{"ref": ref, "orderCode": spec.OrderCode, "amount": spec.Amount})
	return &gateway.CheckoutSession{
		Method:      f.MethodValue,
		OrderCode:   spec.OrderCode,
		CheckoutURL: "https://pay.example.test/" + ref,
		ProviderRef: ref,
		Amount:      spec.Amount,
		Raw:         raw,
	}, nil
}

func (f *Fake) FetchTransaction(_ context.Context, providerRef string) (*gateway.TransactionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, providerRef)
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	amount, ok := f.paid[providerRef]
	if !ok {
		return &gateway.TransactionSnapshot{ProviderRef: providerRef, Status: "PENDING"}, nil
	}
	raw, _ := json.Marshal(map[string]any{"ref": providerRef, "status": "PAID", "amount": amount})
	return &gateway.TransactionSnapshot{ProviderRef: providerRef, Status: "PAID", Paid: true, Amount: amount, Raw: raw}, nil
}

// MarkPaid makes FetchTransaction report providerRef as paid for amount.
func (f *Fake) MarkPaid(providerRef string, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paid == nil {
		f.paid = make(map[string]int64)
	}
	f.paid[providerRef] = amount
}

// Fetched returns the provider refs looked up so far.
func (f *Fake) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func (f *Fake) VerifyWebhook(payload gateway.WebhookPayload) bool {
	return payload.Header.Get(SignatureHeader) == ValidSignature
}

func (f *Fake) ParseOutcome(payload gateway.WebhookPayload) (*gateway.Outcome, error) {
	var cb Callback
	if err := json.Unmarshal(payload.Body, &cb); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode fake callback")
	}
	return &gateway.Outcome{
		Success:       cb.Success,
		Ignored:       cb.Ignored,
		CorrelationID: cb.OrderCode,
		Amount:        cb.Amount,
		DeliveryID:    cb.DeliveryID,
		Payload:       json.RawMessage(payload.Body),
	}, nil
}

func (f *Fake) Refund(_ context.Context, spec gateway.RefundSpec) (*gateway.RefundResult, error) {
	if f.BeforeRefund != nil {
		f.BeforeRefund()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RefundErr != nil {
		return nil, f.RefundErr
	}
	f.refunds = append(f.refunds, spec)
	return &gateway.RefundResult{ProviderRef: spec.ProviderRef, Status: "REFUNDED", Raw: json.RawMessage(`{"refunded":true}`)}, nil
}

func (f *Fake) CancelCheckout(_ context.Context, providerRef, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, providerRef)
	return nil
}

func (f *Fake) Ack() gateway.Ack {
	if f.AckValue != nil {
		return *f.AckValue
	}
	return gateway.Ack{Status: http.StatusOK, Body: []byte(`{"received":true}`)}
}

// Created returns the checkout specs seen so far.
func (f *Fake) Created() []gateway.CheckoutSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.CheckoutSpec(nil), f.created...)
}

// Canceled returns the provider refs voided so far.
func (f *Fake) Canceled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.canceled...)
}

// Refunds returns the refunds issued so far.
func (f *Fake) Refunds() []gateway.RefundSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.RefundSpec(nil), f.refunds...)
}

// Signed builds a callback payload carrying a valid signature.
func Signed(cb Callback) gateway.WebhookPayload {
	body, _ := json.Marshal(cb)
	header := http.Header{}
	header.Set(SignatureHeader, ValidSignature)
	return gateway.WebhookPayload{Body: body, Header: header}
}

// Unsigned builds a callback payload with a bad signature.
func Unsigned(cb Callback) gateway.WebhookPayload {
	payload := Signed(cb)
	payload.Header.Set(SignatureHeader, "forged")
	return payload
}
