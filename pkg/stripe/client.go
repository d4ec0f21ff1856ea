package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/furnique/furnique-backend/pkg/config"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	// SignatureHeader is the header Stripe signs webhook deliveries with.
	SignatureHeader = "Stripe-Signature"

	metadataOrderCode = "order_code"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps Stripe checkout sessions, refunds and webhook verification.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
	logger        *logger.Logger

	newSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSession func(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	newRefund  func(*stripe.RefundParams) (*stripe.Refund, error)
}

// LineItem is one product row on the hosted checkout page.
type LineItem struct {
	Name      string
	UnitPrice int64
	Quantity  int64
}

// SessionParams describes a hosted checkout session for one order code.
type SessionParams struct {
	OrderCode  int64
	Currency   string
	Items      []LineItem
	SuccessURL string
	CancelURL  string
	Email      string
}

// Session is the checkout session state the payment flow keeps.
type Session struct {
	ID              string          `json:"id"`
	URL             string          `json:"url"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	AmountTotal     int64           `json:"amount_total"`
	OrderCode       int64           `json:"-"`
	PaymentIntentID string          `json:"-"`
	Raw             json.RawMessage `json:"-"`
}

// Event is a verified webhook delivery.
type Event struct {
	ID      string
	Type    string
	Session *Session
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	api := stripe.NewClient(apiKey)
	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		api:           api,
		environment:   env,
		signingSecret: signingSecret,
		logger:        logg,
		newSession:    session.New,
		getSession:    session.Get,
		newRefund:     refund.New,
	}, nil
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreateSession opens a hosted checkout session tagged with the order code.
func (c *Client) CreateSession(ctx context.Context, params SessionParams) (*Session, error) {
	if params.OrderCode <= 0 || len(params.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe session requires an order code and items")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "vnd"
	}
	code := strconv.FormatInt(params.OrderCode, 10)

	req := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(code),
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
		Metadata:          map[string]string{metadataOrderCode: code},
	}
	if params.Email != "" {
		req.CustomerEmail = stripe.String(params.Email)
	}
	for _, item := range params.Items {
		req.LineItems = append(req.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(item.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(item.UnitPrice),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		})
	}
	req.Context = ctx

	s, err := c.newSession(req)
	if err != nil {
		c.logError(ctx, "create checkout session", err)
		return nil, mapStripeError(err, "create checkout session")
	}
	return summarizeSession(s)
}

// GetSession fetches a checkout session by id.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	s, err := c.getSession(id, params)
	if err != nil {
		c.logError(ctx, "get checkout session", err)
		return nil, mapStripeError(err, "get checkout session")
	}
	return summarizeSession(s)
}

// Refund refunds the payment intent behind a paid session.
func (c *Client) Refund(ctx context.Context, paymentIntentID string, amount int64) (json.RawMessage, error) {
	if strings.TrimSpace(paymentIntentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe payment intent is required for refunds")
	}
	params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentIntentID)}
	if amount > 0 {
		params.Amount = stripe.Int64(amount)
	}
	params.Context = ctx
	r, err := c.newRefund(params)
	if err != nil {
		c.logError(ctx, "refund", err)
		return nil, mapStripeError(err, "refund")
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "encode stripe refund")
	}
	return raw, nil
}

// ParseWebhook verifies the signature header and decodes checkout session
// events. Other event types come back with a nil Session.
func (c *Client) ParseWebhook(payload []byte, sigHeader string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, c.signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeSignatureInvalid, err, "verify stripe signature")
	}
	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil || !strings.HasPrefix(out.Type, "checkout.session.") {
		return out, nil
	}
	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	out.Session, err = summarizeSession(&s)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func summarizeSession(s *stripe.CheckoutSession) (*Session, error) {
	if s == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "stripe returned no session")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "encode stripe session")
	}
	out := &Session{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Raw:           raw,
	}
	ref := s.ClientReferenceID
	if ref == "" && s.Metadata != nil {
		ref = s.Metadata[metadataOrderCode]
	}
	if ref != "" {
		code, err := strconv.ParseInt(ref, 10, 64)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "stripe session carries a malformed order code")
		}
		out.OrderCode = code
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out, nil
}

func mapStripeError(err error, op string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.HTTPStatusCode {
		case 400:
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "stripe "+op+" failed")
		case 401:
			return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "stripe "+op+" failed")
		case 404:
			return pkgerrors.Wrap(pkgerrors.CodePaymentNotFound, err, "stripe "+op+" failed")
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "stripe "+op+" failed")
}

func (c *Client) logError(ctx context.Context, op string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Error(ctx, "stripe "+op, err)
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
