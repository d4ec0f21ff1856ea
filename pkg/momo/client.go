// Package momo is a REST client for the MoMo wallet gateway (API v2).
package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/furnique/furnique-backend/pkg/config"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/signature"
)

// ResultSuccess is MoMo's resultCode for a successful request or payment.
const ResultSuccess = 0

const responseBodyLimit int64 = 1 << 20

var (
	errPartnerCodeRequired = errors.New("momo partner code is required")
	errAccessKeyRequired   = errors.New("momo access key is required")
	errSecretKeyRequired   = errors.New("momo secret key is required")
)

// Client signs and submits MoMo API requests.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	partnerCode string
	accessKey   string
	secretKey   string
	requestType string
	lang        string
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

// WithEndpoint overrides the configured endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(endpoint); trimmed != "" {
			c.endpoint = strings.TrimRight(trimmed, "/")
		}
	}
}

func NewClient(cfg config.MoMoConfig, opts ...Option) (*Client, error) {
	switch {
	case strings.TrimSpace(cfg.PartnerCode) == "":
		return nil, errPartnerCodeRequired
	case strings.TrimSpace(cfg.AccessKey) == "":
		return nil, errAccessKeyRequired
	case strings.TrimSpace(cfg.SecretKey) == "":
		return nil, errSecretKeyRequired
	}
	client := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		endpoint:    strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		partnerCode: cfg.PartnerCode,
		accessKey:   cfg.AccessKey,
		secretKey:   cfg.SecretKey,
		requestType: cfg.RequestType,
		lang:        cfg.Lang,
	}
	if client.requestType == "" {
		client.requestType = "captureWallet"
	}
	if client.lang == "" {
		client.lang = "vi"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CreateRequest describes a new MoMo payment.
type CreateRequest struct {
	RequestID       string
	OrderID         string
	Amount          int64
	OrderInfo       string
	RedirectURL     string
	IPNURL          string
	ExtraData       string
	OrderExpireTime int
}

// CreateResponse is MoMo's answer to /v2/gateway/api/create.
type CreateResponse struct {
	PartnerCode  string `json:"partnerCode"`
	RequestID    string `json:"requestId"`
	OrderID      string `json:"orderId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
	Deeplink     string `json:"deeplink"`
	QRCodeURL    string `json:"qrCodeUrl"`
}

// QueryResponse is the transaction status returned by /v2/gateway/api/query.
type QueryResponse struct {
	PartnerCode  string `json:"partnerCode"`
	RequestID    string `json:"requestId"`
	OrderID      string `json:"orderId"`
	Amount       int64  `json:"amount"`
	TransID      int64  `json:"transId"`
	PayType      string `json:"payType"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	ResponseTime int64  `json:"responseTime"`
}

// RefundRequest refunds part or all of a captured transaction.
type RefundRequest struct {
	RequestID   string
	OrderID     string
	Amount      int64
	TransID     int64
	Description string
}

// RefundResponse is MoMo's answer to /v2/gateway/api/refund.
type RefundResponse struct {
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	ResponseTime int64  `json:"responseTime"`
}

// Create submits a signed payment request.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*CreateResponse, json.RawMessage, error) {
	fields := map[string]any{
		"accessKey":   c.accessKey,
		"amount":      req.Amount,
		"extraData":   req.ExtraData,
		"ipnUrl":      req.IPNURL,
		"orderId":     req.OrderID,
		"orderInfo":   req.OrderInfo,
		"partnerCode": c.partnerCode,
		"redirectUrl": req.RedirectURL,
		"requestId":   req.RequestID,
		"requestType": c.requestType,
	}
	body := map[string]any{
		"partnerCode": c.partnerCode,
		"requestId":   req.RequestID,
		"amount":      req.Amount,
		"orderId":     req.OrderID,
		"orderInfo":   req.OrderInfo,
		"redirectUrl": req.RedirectURL,
		"ipnUrl":      req.IPNURL,
		"requestType": c.requestType,
		"extraData":   req.ExtraData,
		"autoCapture": true,
		"lang":        c.lang,
		"signature":   signature.SignFields(fields, c.secretKey),
	}
	if req.OrderExpireTime > 0 {
		body["orderExpireTime"] = req.OrderExpireTime
	}

	var out CreateResponse
	raw, err := c.post(ctx, "/v2/gateway/api/create", body, &out)
	if err != nil {
		return nil, nil, err
	}
	if out.ResultCode != ResultSuccess {
		return nil, raw, rejection("create", out.ResultCode, out.Message)
	}
	return &out, raw, nil
}

// Query returns the current status of orderID. A non-success resultCode is a
// valid answer (the payment failed or is pending), not an error.
func (c *Client) Query(ctx context.Context, requestID, orderID string) (*QueryResponse, json.RawMessage, error) {
	body := c.querySigned(requestID, orderID)
	var out QueryResponse
	raw, err := c.post(ctx, "/v2/gateway/api/query", body, &out)
	if err != nil {
		return nil, nil, err
	}
	return &out, raw, nil
}

// Refund submits a signed refund request.
func (c *Client) Refund(ctx context.Context, req RefundRequest) (*RefundResponse, json.RawMessage, error) {
	fields := map[string]any{
		"accessKey":   c.accessKey,
		"amount":      req.Amount,
		"description": req.Description,
		"orderId":     req.OrderID,
		"partnerCode": c.partnerCode,
		"requestId":   req.RequestID,
		"transId":     req.TransID,
	}
	body := map[string]any{
		"partnerCode": c.partnerCode,
		"orderId":     req.OrderID,
		"requestId":   req.RequestID,
		"amount":      req.Amount,
		"transId":     req.TransID,
		"lang":        c.lang,
		"description": req.Description,
		"signature":   signature.SignFields(fields, c.secretKey),
	}
	var out RefundResponse
	raw, err := c.post(ctx, "/v2/gateway/api/refund", body, &out)
	if err != nil {
		return nil, nil, err
	}
	if out.ResultCode != ResultSuccess {
		return nil, raw, rejection("refund", out.ResultCode, out.Message)
	}
	return &out, raw, nil
}

// QueryRefund returns the refunds recorded for orderID.
func (c *Client) QueryRefund(ctx context.Context, requestID, orderID string) (json.RawMessage, error) {
	body := c.querySigned(requestID, orderID)
	return c.post(ctx, "/v2/gateway/api/refund/query", body, nil)
}

// IPNFields lists the notification fields covered by the IPN signature.
var IPNFields = []string{
	"amount", "extraData", "message", "orderId", "orderInfo", "orderType",
	"partnerCode", "payType", "requestId", "responseTime", "resultCode", "transId",
}

// VerifyIPN checks an instant payment notification body against its signature field.
func (c *Client) VerifyIPN(fields map[string]any) bool {
	provided, _ := fields["signature"].(string)
	signed := map[string]any{"accessKey": c.accessKey}
	for _, key := range IPNFields {
		signed[key] = fields[key]
	}
	return signature.VerifyFields(signed, provided, c.secretKey)
}

func (c *Client) querySigned(requestID, orderID string) map[string]any {
	fields := map[string]any{
		"accessKey":   c.accessKey,
		"orderId":     orderID,
		"partnerCode": c.partnerCode,
		"requestId":   requestID,
	}
	return map[string]any{
		"partnerCode": c.partnerCode,
		"requestId":   requestID,
		"orderId":     orderID,
		"lang":        c.lang,
		"signature":   signature.SignFields(fields, c.secretKey),
	}
}

func (c *Client) post(ctx context.Context, path string, body any, out any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal momo request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "build momo request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "execute momo request")
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "read momo response")
	}
	if resp.StatusCode >= 500 {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, fmt.Sprintf("momo returned http %d", resp.StatusCode))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode momo response")
		}
	}
	return raw, nil
}

func rejection(op string, code int, message string) error {
	return pkgerrors.New(pkgerrors.CodeGateway, fmt.Sprintf("momo %s rejected: %s", op, message)).
		WithDetails(map[string]any{"resultCode": code})
}
