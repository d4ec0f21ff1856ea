package gateway

import (
	"context"
	"strconv"
	"strings"

	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/square"
)

type squareAPI interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*square.PaymentSummary, error)
	GetPayment(ctx context.Context, paymentID string) (*square.PaymentSummary, error)
	CancelPayment(ctx context.Context, paymentID string) (*square.PaymentSummary, error)
	RefundPayment(ctx context.Context, params square.RefundParams) (*square.RefundSummary, error)
	VerifyWebhook(body []byte, header string) bool
}

// Square charges a card token collected by the Web Payments SDK. There is no
// redirect; the result arrives as a payment.updated notification.
type Square struct {
	client squareAPI
}

func NewSquare(client squareAPI) *Square {
	return &Square{client: client}
}

func (s *Square) Method() enums.PaymentMethod { return enums.PaymentMethodSquare }

func (s *Square) CreateCheckout(ctx context.Context, spec CheckoutSpec) (*CheckoutSession, error) {
	if strings.TrimSpace(spec.SourceToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square payments require a card source token")
	}
	payment, err := s.client.CreatePayment(ctx, square.PaymentCreateParams{
		Amount:         spec.Amount,
		Currency:       spec.Currency,
		SourceID:       spec.SourceToken,
		IdempotencyKey: "pay-" + strconv.FormatInt(spec.OrderCode, 10),
		Note:           spec.Description,
		ReferenceID:    strconv.FormatInt(spec.OrderCode, 10),
	})
	if err != nil {
		return nil, asGatewayError(err, "square create payment")
	}
	return &CheckoutSession{
		Method:      enums.PaymentMethodSquare,
		OrderCode:   spec.OrderCode,
		CheckoutURL: spec.ReturnURL,
		ProviderRef: payment.ID,
		Amount:      payment.AmountMoney.Amount,
		Raw:         payment.Raw,
	}, nil
}

func (s *Square) FetchTransaction(ctx context.Context, providerRef string) (*TransactionSnapshot, error) {
	payment, err := s.client.GetPayment(ctx, providerRef)
	if err != nil {
		return nil, asGatewayError(err, "square get payment")
	}
	return &TransactionSnapshot{
		ProviderRef: payment.ID,
		Status:      payment.Status,
		Paid:        payment.Status == square.StatusCompleted,
		Amount:      payment.AmountMoney.Amount,
		Raw:         payment.Raw,
	}, nil
}

func (s *Square) CancelCheckout(ctx context.Context, providerRef, _ string) error {
	if _, err := s.client.CancelPayment(ctx, providerRef); err != nil {
		return asGatewayError(err, "square cancel payment")
	}
	return nil
}

func (s *Square) Refund(ctx context.Context, spec RefundSpec) (*RefundResult, error) {
	// One full refund per payment, so a retried refund maps to the same key.
	refund, err := s.client.RefundPayment(ctx, square.RefundParams{
		PaymentID:      spec.ProviderRef,
		Amount:         spec.Amount,
		Currency:       spec.Currency,
		Reason:         spec.Reason,
		IdempotencyKey: "refund-" + strconv.FormatInt(spec.OrderCode, 10),
	})
	if err != nil {
		return nil, asGatewayError(err, "square refund payment")
	}
	return &RefundResult{ProviderRef: refund.ID, Status: refund.Status, Raw: refund.Raw}, nil
}

func (s *Square) VerifyWebhook(payload WebhookPayload) bool {
	return s.client.VerifyWebhook(payload.Body, payload.Header.Get(square.SignatureHeader))
}

// ParseOutcome maps payment.updated notifications. COMPLETED is a capture,
// FAILED and CANCELED are failures, anything else is an interim update.
func (s *Square) ParseOutcome(payload WebhookPayload) (*Outcome, error) {
	event, err := square.ParseWebhook(payload.Body)
	if err != nil {
		return nil, err
	}
	payment := event.Data.Object.Payment
	if !strings.HasPrefix(event.Type, "payment.") || payment == nil {
		return &Outcome{Ignored: true, DeliveryID: event.EventID, Payload: payload.Body}, nil
	}
	out := &Outcome{
		Amount:      payment.AmountMoney.Amount,
		ProviderRef: payment.ID,
		DeliveryID:  event.EventID,
		Payload:     payment.Raw,
	}
	switch payment.Status {
	case square.StatusCompleted:
		out.Success = true
	case square.StatusFailed, square.StatusCanceled:
	default:
		out.Ignored = true
		return out, nil
	}
	code, err := strconv.ParseInt(payment.ReferenceID, 10, 64)
	if err != nil || code <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square payment carries a malformed reference_id")
	}
	out.CorrelationID = code
	return out, nil
}
