// Package payments owns the payment ledger: it opens gateway checkouts, turns
// verified gateway callbacks into state changes, and hands each settled
// payment to the handler registered for its purpose.
package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/internal/gateway"
	"github.com/furnique/furnique-backend/pkg/auth"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
)

// ErrAlreadySettled is returned by a PurposeHandler whose aggregate already
// left its pre-capture state. The callback is then treated as a duplicate and
// the transaction is rolled back.
var ErrAlreadySettled = errors.New("payment purpose already settled")

// errSettledConcurrently means the payment left DRAFT between the row lock and
// the guarded update.
var errSettledConcurrently = errors.New("payment settled concurrently")

// PostCommit runs after the settling transaction commits. It must not fail the
// caller; implementations log their own errors.
type PostCommit func(ctx context.Context)

// PurposeHandler settles whatever a payment paid for. Settle runs inside the
// webhook transaction before the payment row leaves DRAFT. outcome.Success
// selects the capture or the failure path.
type PurposeHandler interface {
	Settle(ctx context.Context, tx *gorm.DB, payment *models.Payment, outcome *gateway.Outcome) (PostCommit, error)
}

// RefundHandler is implemented by purposes whose captured payments may be refunded.
type RefundHandler interface {
	// CheckRefund fails when the purpose does not allow refunding payment yet.
	CheckRefund(ctx context.Context, tx *gorm.DB, payment *models.Payment) error
	// Refunded records the refund on the purpose side inside the refund transaction.
	Refunded(ctx context.Context, tx *gorm.DB, payment *models.Payment, actor auth.Actor) error
}

// PersistFunc stores the purpose record (the order, for order payments) in the
// same transaction as the DRAFT payment.
type PersistFunc func(ctx context.Context, tx *gorm.DB, payment *models.Payment) error

// PaymentRequest opens a checkout for one purpose. Checkout.OrderCode and
// Checkout.Amount become the payment's correlation id and amount.
type PaymentRequest struct {
	Method     enums.PaymentMethod
	Type       enums.PaymentType
	CustomerID uuid.UUID
	CreditPlan *enums.CreditPlan
	Checkout   gateway.CheckoutSpec
}

// WebhookResult summarizes what a processed callback did.
type WebhookResult struct {
	Method    enums.PaymentMethod
	OrderCode int64
	PaymentID uuid.UUID
	Status    enums.TransactionStatus
	// Duplicate marks callbacks for payments that had already left DRAFT.
	Duplicate bool
	// Ignored marks callbacks without a terminal outcome.
	Ignored bool
}
