package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/payos"
	"github.com/furnique/furnique-backend/pkg/signature"
)

const payosDescriptionLimit = 25

type payosAPI interface {
	CreatePaymentLink(ctx context.Context, req payos.CreatePaymentLinkRequest) (*payos.CheckoutData, json.RawMessage, error)
	GetPaymentLink(ctx context.Context, ref string) (*payos.PaymentLink, json.RawMessage, error)
	CancelPaymentLink(ctx context.Context, ref, reason string) error
	ChecksumKey() string
}

// PayOS settles VietQR bank transfers through PayOS payment links.
type PayOS struct {
	client payosAPI
}

func NewPayOS(client payosAPI) *PayOS {
	return &PayOS{client: client}
}

func (p *PayOS) Method() enums.PaymentMethod { return enums.PaymentMethodPayOS }

func (p *PayOS) Ack() Ack {
	return Ack{Status: http.StatusOK, Body: []byte(`{"success":true}`)}
}

func (p *PayOS) CreateCheckout(ctx context.Context, spec CheckoutSpec) (*CheckoutSession, error) {
	items := make([]payos.Item, 0, len(spec.Items))
	for _, it := range spec.Items {
		items = append(items, payos.Item{Name: it.Name, Quantity: it.Quantity, Price: it.UnitPrice})
	}
	description := spec.Description
	if len(description) > payosDescriptionLimit {
		description = description[:payosDescriptionLimit]
	}
	data, raw, err := p.client.CreatePaymentLink(ctx, payos.CreatePaymentLinkRequest{
		OrderCode:   spec.OrderCode,
		Amount:      spec.Amount,
		Description: description,
		Items:       items,
		CancelURL:   spec.CancelURL,
		ReturnURL:   spec.ReturnURL,
		BuyerEmail:  spec.CustomerEmail,
	})
	if err != nil {
		return nil, asGatewayError(err, "payos create payment link")
	}
	return &CheckoutSession{
		Method:      enums.PaymentMethodPayOS,
		OrderCode:   spec.OrderCode,
		CheckoutURL: data.CheckoutURL,
		ProviderRef: data.PaymentLinkID,
		Amount:      data.Amount,
		Raw:         raw,
	}, nil
}

func (p *PayOS) FetchTransaction(ctx context.Context, providerRef string) (*TransactionSnapshot, error) {
	link, raw, err := p.client.GetPaymentLink(ctx, providerRef)
	if err != nil {
		return nil, asGatewayError(err, "payos get payment link")
	}
	return &TransactionSnapshot{
		ProviderRef: link.ID,
		Status:      link.Status,
		Paid:        link.Status == "PAID",
		Amount:      link.AmountPaid,
		Raw:         raw,
	}, nil
}

func (p *PayOS) CancelCheckout(ctx context.Context, providerRef, reason string) error {
	if err := p.client.CancelPaymentLink(ctx, providerRef, reason); err != nil {
		return asGatewayError(err, "payos cancel payment link")
	}
	return nil
}

// VerifyWebhook checks the signature field against the key-sorted data object.
func (p *PayOS) VerifyWebhook(payload WebhookPayload) bool {
	fields, err := signature.DecodeFields(payload.Body)
	if err != nil {
		return false
	}
	data, ok := fields["data"].(map[string]any)
	if !ok {
		return false
	}
	provided, _ := fields["signature"].(string)
	return signature.VerifyFields(data, provided, p.client.ChecksumKey())
}

type payosWebhook struct {
	Code    string `json:"code"`
	Desc    string `json:"desc"`
	Success bool   `json:"success"`
	Data    struct {
		OrderCode     int64  `json:"orderCode"`
		Amount        int64  `json:"amount"`
		Reference     string `json:"reference"`
		PaymentLinkID string `json:"paymentLinkId"`
		Code          string `json:"code"`
	} `json:"data"`
}

// ParseOutcome reads a verified payment-link callback. The top-level code and
// the data code must both be "00" for the transfer to count as paid.
func (p *PayOS) ParseOutcome(payload WebhookPayload) (*Outcome, error) {
	var hook payosWebhook
	if err := json.Unmarshal(payload.Body, &hook); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payos webhook")
	}
	if hook.Data.OrderCode <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payos webhook missing order code")
	}
	success := hook.Code == payos.CodeSuccess && (hook.Data.Code == "" || hook.Data.Code == payos.CodeSuccess)
	return &Outcome{
		Success:       success,
		CorrelationID: hook.Data.OrderCode,
		Amount:        hook.Data.Amount,
		ProviderRef:   hook.Data.PaymentLinkID,
		DeliveryID:    fmt.Sprintf("%s:%s", strconv.FormatInt(hook.Data.OrderCode, 10), hook.Data.Reference),
		Payload:       json.RawMessage(payload.Body),
	}, nil
}

// asGatewayError keeps typed client errors and wraps anything else as GATEWAY_ERROR.
func asGatewayError(err error, op string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, op)
}
