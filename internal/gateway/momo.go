package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/oklog/ulid/v2"

	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/momo"
	"github.com/furnique/furnique-backend/pkg/signature"
)

type momoAPI interface {
	Create(ctx context.Context, req momo.CreateRequest) (*momo.CreateResponse, json.RawMessage, error)
	Query(ctx context.Context, requestID, orderID string) (*momo.QueryResponse, json.RawMessage, error)
	Refund(ctx context.Context, req momo.RefundRequest) (*momo.RefundResponse, json.RawMessage, error)
	VerifyIPN(fields map[string]any) bool
}

// MoMo settles e-wallet payments. Its IPN must be answered with 204 and no body.
type MoMo struct {
	client momoAPI
	newID  func() string
}

func NewMoMo(client momoAPI) *MoMo {
	return &MoMo{client: client, newID: func() string { return ulid.Make().String() }}
}

func (m *MoMo) Method() enums.PaymentMethod { return enums.PaymentMethodMoMo }

func (m *MoMo) Ack() Ack {
	return Ack{Status: http.StatusNoContent}
}

func (m *MoMo) CreateCheckout(ctx context.Context, spec CheckoutSpec) (*CheckoutSession, error) {
	orderID := strconv.FormatInt(spec.OrderCode, 10)
	resp, raw, err := m.client.Create(ctx, momo.CreateRequest{
		RequestID:   m.newID(),
		OrderID:     orderID,
		Amount:      spec.Amount,
		OrderInfo:   spec.Description,
		RedirectURL: spec.ReturnURL,
		IPNURL:      spec.NotifyURL,
	})
	if err != nil {
		return nil, asGatewayError(err, "momo create")
	}
	return &CheckoutSession{
		Method:      enums.PaymentMethodMoMo,
		OrderCode:   spec.OrderCode,
		CheckoutURL: resp.PayURL,
		ProviderRef: orderID,
		Amount:      resp.Amount,
		Raw:         raw,
	}, nil
}

func (m *MoMo) FetchTransaction(ctx context.Context, providerRef string) (*TransactionSnapshot, error) {
	resp, raw, err := m.client.Query(ctx, m.newID(), providerRef)
	if err != nil {
		return nil, asGatewayError(err, "momo query")
	}
	return &TransactionSnapshot{
		ProviderRef: resp.OrderID,
		Status:      strconv.Itoa(resp.ResultCode),
		Paid:        resp.ResultCode == momo.ResultSuccess,
		Amount:      resp.Amount,
		Raw:         raw,
	}, nil
}

// Refund needs MoMo's transId, which only the captured IPN carries.
func (m *MoMo) Refund(ctx context.Context, spec RefundSpec) (*RefundResult, error) {
	var captured struct {
		TransID int64 `json:"transId"`
	}
	if len(spec.Transaction) > 0 {
		_ = json.Unmarshal(spec.Transaction, &captured)
	}
	if captured.TransID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "momo refund requires the captured transId")
	}
	resp, raw, err := m.client.Refund(ctx, momo.RefundRequest{
		RequestID:   m.newID(),
		OrderID:     m.newID(),
		Amount:      spec.Amount,
		TransID:     captured.TransID,
		Description: spec.Reason,
	})
	if err != nil {
		return nil, asGatewayError(err, "momo refund")
	}
	return &RefundResult{
		ProviderRef: strconv.FormatInt(resp.TransID, 10),
		Status:      strconv.Itoa(resp.ResultCode),
		Raw:         raw,
	}, nil
}

func (m *MoMo) VerifyWebhook(payload WebhookPayload) bool {
	fields, err := signature.DecodeFields(payload.Body)
	if err != nil {
		return false
	}
	return m.client.VerifyIPN(fields)
}

type momoIPN struct {
	OrderID    string `json:"orderId"`
	RequestID  string `json:"requestId"`
	Amount     int64  `json:"amount"`
	TransID    int64  `json:"transId"`
	ResultCode int    `json:"resultCode"`
}

func (m *MoMo) ParseOutcome(payload WebhookPayload) (*Outcome, error) {
	var ipn momoIPN
	if err := json.Unmarshal(payload.Body, &ipn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode momo ipn")
	}
	code, err := strconv.ParseInt(ipn.OrderID, 10, 64)
	if err != nil || code <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "momo ipn carries a malformed orderId")
	}
	delivery := ipn.RequestID
	if ipn.TransID != 0 {
		delivery = strconv.FormatInt(ipn.TransID, 10)
	}
	return &Outcome{
		Success:       ipn.ResultCode == momo.ResultSuccess,
		CorrelationID: code,
		Amount:        ipn.Amount,
		ProviderRef:   ipn.OrderID,
		DeliveryID:    delivery,
		Payload:       json.RawMessage(payload.Body),
	}, nil
}
