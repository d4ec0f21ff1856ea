package credits

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/internal/gateway"
	"github.com/furnique/furnique-backend/internal/notifications"
	"github.com/furnique/furnique-backend/internal/payments"
	"github.com/furnique/furnique-backend/pkg/auth"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/outbox"
	"github.com/furnique/furnique-backend/pkg/outbox/payloads"
)

// Handler settles CREDIT_PURCHASE payments by adjusting the customer's balance.
type Handler struct {
	outbox   outbox.Emitter
	notifier notifications.Notifier
	logg     *logger.Logger
}

var (
	_ payments.PurposeHandler = (*Handler)(nil)
	_ payments.RefundHandler  = (*Handler)(nil)
)

func NewHandler(emitter outbox.Emitter, notifier notifications.Notifier, logg *logger.Logger) (*Handler, error) {
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Handler{outbox: emitter, notifier: notifier, logg: logg}, nil
}

// Settle grants the plan's credits on success. A failed purchase has nothing
// to undo on the credits side.
func (h *Handler) Settle(ctx context.Context, tx *gorm.DB, payment *models.Payment, outcome *gateway.Outcome) (payments.PostCommit, error) {
	if !outcome.Success {
		return nil, nil
	}
	plan, err := planOf(payment)
	if err != nil {
		return nil, err
	}

	res := tx.WithContext(ctx).Model(&models.Customer{}).
		Where("id = ?", payment.CustomerID).
		Update("credits", gorm.Expr("credits + ?", plan.Credits))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}
	var customer models.Customer
	if err := tx.WithContext(ctx).Where("id = ?", payment.CustomerID).First(&customer).Error; err != nil {
		return nil, err
	}

	actor := auth.CustomerActor(payment.CustomerID)
	if err := h.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCreditsGranted,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         outbox.ActorOf(actor),
		Data: payloads.CreditsGrantedEvent{
			CustomerID: payment.CustomerID,
			PaymentID:  payment.ID,
			Plan:       plan.Name,
			Credits:    plan.Credits,
		},
	}); err != nil {
		return nil, err
	}

	notice := notifications.CreditsNotice{
		CustomerID: customer.ID,
		Email:      customer.Email,
		Plan:       plan.Name,
		Credits:    plan.Credits,
		Amount:     payment.Amount,
	}
	return func(ctx context.Context) {
		if h.notifier == nil {
			return
		}
		if err := h.notifier.CreditsGranted(ctx, notice); err != nil {
			h.logg.Error(ctx, "credits notification failed", err)
		}
	}, nil
}

// CheckRefund refuses refunds once the customer has spent the granted credits.
func (h *Handler) CheckRefund(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	plan, err := planOf(payment)
	if err != nil {
		return err
	}
	var customer models.Customer
	err = tx.WithContext(ctx).Where("id = ?", payment.CustomerID).First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}
	if err != nil {
		return err
	}
	if customer.Credits < plan.Credits {
		return insufficientCredits(customer.Credits, plan.Credits)
	}
	return nil
}

// Refunded takes the plan's credits back.
func (h *Handler) Refunded(ctx context.Context, tx *gorm.DB, payment *models.Payment, _ auth.Actor) error {
	plan, err := planOf(payment)
	if err != nil {
		return err
	}
	res := tx.WithContext(ctx).Model(&models.Customer{}).
		Where("id = ? AND credits >= ?", payment.CustomerID, plan.Credits).
		Update("credits", gorm.Expr("credits - ?", plan.Credits))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return insufficientCredits(0, plan.Credits)
	}
	return nil
}

func planOf(payment *models.Payment) (Plan, error) {
	if payment.CreditPlan != nil {
		if plan, ok := PlanFor(*payment.CreditPlan); ok {
			return plan, nil
		}
	}
	if plan, ok := PlanForAmount(payment.Amount); ok {
		return plan, nil
	}
	return Plan{}, pkgerrors.New(pkgerrors.CodeValidation, "payment does not match a credit plan").
		WithDetails(map[string]any{"amount": payment.Amount})
}

func insufficientCredits(have, need int64) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "granted credits were already spent").
		WithDetails(map[string]any{"credits": have, "required": need})
}
