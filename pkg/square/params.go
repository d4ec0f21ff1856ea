package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

const defaultCurrency = "VND"

// PaymentCreateParams describes a card charge. ReferenceID carries the order
// code; webhooks are matched back to the order through it.
type PaymentCreateParams struct {
	Amount         int64
	Currency       string
	LocationID     string
	CustomerID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
}

func (p PaymentCreateParams) request(idempotencyKey string) *sq.CreatePaymentRequest {
	return &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey,
		SourceID:       p.SourceID,
		AmountMoney:    money(p.Amount, p.Currency),
		LocationID:     optional(p.LocationID),
		CustomerID:     optional(p.CustomerID),
		Note:           optional(p.Note),
		ReferenceID:    optional(p.ReferenceID),
	}
}

type RefundParams struct {
	PaymentID      string
	Amount         int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

func (p RefundParams) request(idempotencyKey string) *sq.RefundPaymentRequest {
	return &sq.RefundPaymentRequest{
		IdempotencyKey: idempotencyKey,
		PaymentID:      optional(p.PaymentID),
		AmountMoney:    money(p.Amount, p.Currency),
		Reason:         optional(p.Reason),
	}
}

// optional trims s and returns nil when nothing is left.
func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// money returns nil for non-positive amounts.
func money(amount int64, currency string) *sq.Money {
	if amount <= 0 {
		return nil
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = defaultCurrency
	}
	cur := sq.Currency(code)
	return &sq.Money{Amount: &amount, Currency: &cur}
}
