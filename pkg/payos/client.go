// Package payos is a thin REST client for the PayOS payment-link API.
package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/furnique/furnique-backend/pkg/config"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/signature"
)

const (
	defaultBaseURL = "https://api-merchant.payos.vn"
	// CodeSuccess is the PayOS result code for an accepted request or a paid link.
	CodeSuccess = "00"

	responseBodyLimit int64 = 1 << 20
)

var (
	errClientIDRequired    = errors.New("payos client id is required")
	errAPIKeyRequired      = errors.New("payos api key is required")
	errChecksumKeyRequired = errors.New("payos checksum key is required")
)

// Client calls the PayOS merchant API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	clientID    string
	apiKey      string
	checksumKey string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// NewClient builds a PayOS client from configuration.
func NewClient(cfg config.PayOSConfig, opts ...Option) (*Client, error) {
	switch {
	case strings.TrimSpace(cfg.ClientID) == "":
		return nil, errClientIDRequired
	case strings.TrimSpace(cfg.APIKey) == "":
		return nil, errAPIKeyRequired
	case strings.TrimSpace(cfg.ChecksumKey) == "":
		return nil, errChecksumKeyRequired
	}

	client := &Client{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		baseURL:     defaultBaseURL,
		clientID:    strings.TrimSpace(cfg.ClientID),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		checksumKey: strings.TrimSpace(cfg.ChecksumKey),
	}
	WithBaseURL(cfg.BaseURL)(client)
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ChecksumKey exposes the shared secret used for webhook verification.
func (c *Client) ChecksumKey() string {
	return c.checksumKey
}

// Item is a line rendered on the PayOS checkout page.
type Item struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

// CreatePaymentLinkRequest is the body of POST /v2/payment-requests.
type CreatePaymentLinkRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Items       []Item `json:"items,omitempty"`
	CancelURL   string `json:"cancelUrl"`
	ReturnURL   string `json:"returnUrl"`
	BuyerEmail  string `json:"buyerEmail,omitempty"`
	ExpiredAt   int64  `json:"expiredAt,omitempty"`
	Signature   string `json:"signature"`
}

// CheckoutData is returned after a payment link is created.
type CheckoutData struct {
	Bin           string `json:"bin"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
	OrderCode     int64  `json:"orderCode"`
	Currency      string `json:"currency"`
	PaymentLinkID string `json:"paymentLinkId"`
	Status        string `json:"status"`
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode"`
}

// PaymentLink is the current gateway-side state of a payment link.
type PaymentLink struct {
	ID                 string            `json:"id"`
	OrderCode          int64             `json:"orderCode"`
	Amount             int64             `json:"amount"`
	AmountPaid         int64             `json:"amountPaid"`
	AmountRemaining    int64             `json:"amountRemaining"`
	Status             string            `json:"status"`
	CreatedAt          string            `json:"createdAt"`
	Transactions       []json.RawMessage `json:"transactions"`
	CancellationReason *string           `json:"cancellationReason"`
	CanceledAt         *string           `json:"canceledAt"`
}

type envelope struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

// CreatePaymentLink signs and submits a new payment link.
func (c *Client) CreatePaymentLink(ctx context.Context, req CreatePaymentLinkRequest) (*CheckoutData, json.RawMessage, error) {
	if req.OrderCode <= 0 || req.Amount <= 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "payos order code and amount are required")
	}
	req.Signature = signature.SignFields(map[string]any{
		"amount":      req.Amount,
		"cancelUrl":   req.CancelURL,
		"description": req.Description,
		"orderCode":   req.OrderCode,
		"returnUrl":   req.ReturnURL,
	}, c.checksumKey)

	raw, err := c.do(ctx, http.MethodPost, "/v2/payment-requests", req)
	if err != nil {
		return nil, nil, err
	}
	var out CheckoutData
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode payos checkout data")
	}
	return &out, raw, nil
}

// GetPaymentLink fetches the link by order code or payment link id.
func (c *Client) GetPaymentLink(ctx context.Context, ref string) (*PaymentLink, json.RawMessage, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "payos payment reference is required")
	}
	raw, err := c.do(ctx, http.MethodGet, "/v2/payment-requests/"+ref, nil)
	if err != nil {
		return nil, nil, err
	}
	var out PaymentLink
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode payos payment link")
	}
	return &out, raw, nil
}

// CancelPaymentLink cancels an unpaid link.
func (c *Client) CancelPaymentLink(ctx context.Context, ref, reason string) error {
	body := map[string]string{}
	if reason != "" {
		body["cancellationReason"] = reason
	}
	_, err := c.do(ctx, http.MethodPost, "/v2/payment-requests/"+strings.TrimSpace(ref)+"/cancel", body)
	return err
}

// ConfirmWebhook registers the webhook URL with PayOS. PayOS sends a test
// delivery to the URL before accepting it.
func (c *Client) ConfirmWebhook(ctx context.Context, webhookURL string) error {
	_, err := c.do(ctx, http.MethodPost, "/confirm-webhook", map[string]string{"webhookUrl": webhookURL})
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal payos request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "build payos request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-client-id", c.clientID)
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "execute payos request")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "read payos response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, fmt.Sprintf("payos returned http %d", resp.StatusCode)).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode payos envelope")
	}
	if env.Code != CodeSuccess {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "payos rejected request: "+env.Desc).
			WithDetails(map[string]any{"code": env.Code})
	}
	return env.Data, nil
}

// FormatOrderCode renders an order code the way PayOS path parameters expect.
func FormatOrderCode(orderCode int64) string {
	return strconv.FormatInt(orderCode, 10)
}
