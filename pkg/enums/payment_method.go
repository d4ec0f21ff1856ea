package enums

import (
	"fmt"
	"slices"
	"strings"
)

// PaymentMethod names the gateway that settles a payment.
type PaymentMethod string

const (
	PaymentMethodPayOS  PaymentMethod = "PAY_OS"
	PaymentMethodMoMo   PaymentMethod = "MOMO"
	PaymentMethodSquare PaymentMethod = "SQUARE"
	PaymentMethodStripe PaymentMethod = "STRIPE"
)

var paymentMethods = []PaymentMethod{
	PaymentMethodPayOS,
	PaymentMethodMoMo,
	PaymentMethodSquare,
	PaymentMethodStripe,
}

func (p PaymentMethod) IsValid() bool { return slices.Contains(paymentMethods, p) }

// Slug is the webhook route segment, e.g. PAY_OS -> payos.
func (p PaymentMethod) Slug() string {
	return strings.ToLower(strings.ReplaceAll(string(p), "_", ""))
}

// PaymentMethodFromSlug resolves a webhook route segment case-insensitively.
func PaymentMethodFromSlug(slug string) (PaymentMethod, error) {
	want := strings.ToLower(strings.TrimSpace(slug))
	if i := slices.IndexFunc(paymentMethods, func(p PaymentMethod) bool { return p.Slug() == want }); i >= 0 {
		return paymentMethods[i], nil
	}
	return "", fmt.Errorf("invalid payment gateway %q", slug)
}

// PaymentType is the purpose a payment settles.
type PaymentType string

const (
	PaymentTypeOrder          PaymentType = "ORDER"
	PaymentTypeCreditPurchase PaymentType = "CREDIT_PURCHASE"
)

func (p PaymentType) IsValid() bool {
	return slices.Contains([]PaymentType{PaymentTypeOrder, PaymentTypeCreditPurchase}, p)
}
