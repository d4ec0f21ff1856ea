package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/internal/gateway"
	"github.com/furnique/furnique-backend/internal/payments"
	"github.com/furnique/furnique-backend/pkg/config"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
)

// PurchaseInput buys one plan through one gateway.
type PurchaseInput struct {
	CustomerID  uuid.UUID
	Plan        enums.CreditPlan
	Method      enums.PaymentMethod
	SourceToken string
}

type Service struct {
	db           *gorm.DB
	orchestrator *payments.Orchestrator
	checkout     config.CheckoutConfig
}

func NewService(db *gorm.DB, orchestrator *payments.Orchestrator, checkout config.CheckoutConfig) (*Service, error) {
	if db == nil || orchestrator == nil {
		return nil, fmt.Errorf("credits service requires db and orchestrator")
	}
	return &Service{db: db, orchestrator: orchestrator, checkout: checkout}, nil
}

// Purchase opens a checkout for plan. No credits move until the gateway
// confirms the payment.
func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (*gateway.CheckoutSession, error) {
	plan, ok := PlanFor(in.Plan)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown credit plan").
			WithDetails(map[string]any{"plan": in.Plan})
	}
	customer, err := s.customer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}

	var session *gateway.CheckoutSession
	err = s.orchestrator.WithOrderCode(ctx, s.checkout.OrderCodeRetries, func(code int64) error {
		planName := plan.Name
		session, err = s.orchestrator.CreatePayment(ctx, payments.PaymentRequest{
			Method:     in.Method,
			Type:       enums.PaymentTypeCreditPurchase,
			CustomerID: customer.ID,
			CreditPlan: &planName,
			Checkout: gateway.CheckoutSpec{
				OrderCode:     code,
				Amount:        plan.Amount,
				Currency:      s.checkout.Currency,
				Description:   plan.Description,
				Items:         []gateway.Item{{Name: plan.Description, Quantity: 1, UnitPrice: plan.Amount}},
				CancelURL:     s.checkout.CreditsURL(),
				ReturnURL:     s.checkout.CreditsURL(),
				NotifyURL:     s.checkout.WebhookURL(in.Method.Slug()),
				CustomerEmail: customer.Email,
				SourceToken:   in.SourceToken,
			},
		}, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Balance returns the customer's remaining credits.
func (s *Service) Balance(ctx context.Context, customerID uuid.UUID) (int64, error) {
	customer, err := s.customer(ctx, customerID)
	if err != nil {
		return 0, err
	}
	return customer.Credits, nil
}

func (s *Service) customer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}
