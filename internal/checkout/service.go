// Package checkout turns cart lines into a DRAFT order paid through a hosted
// gateway checkout.
package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/internal/cart"
	"github.com/furnique/furnique-backend/internal/gateway"
	"github.com/furnique/furnique-backend/internal/orders"
	"github.com/furnique/furnique-backend/internal/payments"
	"github.com/furnique/furnique-backend/internal/reconcile"
	"github.com/furnique/furnique-backend/pkg/auth"
	"github.com/furnique/furnique-backend/pkg/config"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/outbox"
	"github.com/furnique/furnique-backend/pkg/outbox/payloads"
)

const maxNotesLength = 1000

type paymentCreator interface {
	CreatePayment(ctx context.Context, req payments.PaymentRequest, persist payments.PersistFunc) (*gateway.CheckoutSession, error)
	WithOrderCode(ctx context.Context, attempts int, fn func(orderCode int64) error) error
}

type snapshotLoader interface {
	LoadSnapshot(ctx context.Context, customerID uuid.UUID) (*cart.Snapshot, error)
}

// Input is a checkout request for some of the lines in the customer's cart.
type Input struct {
	CustomerID  uuid.UUID
	Items       []reconcile.RequestedItem
	Notes       string
	Method      enums.PaymentMethod
	SourceToken string
}

// Result is where to send the customer and how to correlate the callback.
type Result struct {
	CheckoutURL string              `json:"checkoutUrl"`
	ProviderRef string              `json:"providerRef"`
	OrderCode   int64               `json:"orderCode"`
	Method      enums.PaymentMethod `json:"paymentMethod"`
	Amount      int64               `json:"amount"`
}

// Service executes checkout orchestration.
type Service interface {
	Checkout(ctx context.Context, in Input) (*Result, error)
}

type service struct {
	db       *gorm.DB
	carts    snapshotLoader
	orders   orders.Repository
	payments paymentCreator
	outbox   outbox.Emitter
	cfg      config.CheckoutConfig
}

// NewService builds the checkout service.
func NewService(
	db *gorm.DB,
	carts snapshotLoader,
	ordersRepo orders.Repository,
	creator paymentCreator,
	publisher outbox.Emitter,
	cfg config.CheckoutConfig,
) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart loader required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if creator == nil {
		return nil, fmt.Errorf("payment orchestrator required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		db:       db,
		carts:    carts,
		orders:   ordersRepo,
		payments: creator,
		outbox:   publisher,
		cfg:      cfg,
	}, nil
}

// Checkout validates the requested lines against the cart without taking
// anything, opens the gateway checkout and stores the DRAFT payment and the
// PENDING order together. Cart and stock change only when the payment
// is captured.
func (s *service) Checkout(ctx context.Context, in Input) (*Result, error) {
	if in.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if !in.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is invalid")
	}
	notes := strings.TrimSpace(in.Notes)
	if len(notes) > maxNotesLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notes are too long").
			WithDetails(map[string]any{"max": maxNotesLength})
	}

	var customer models.Customer
	if err := s.db.WithContext(ctx).Where("id = ?", in.CustomerID).First(&customer).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "customer not found")
	}
	snap, err := s.carts.LoadSnapshot(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	res, err := reconcile.Validate(in.Items, snap)
	if err != nil {
		return nil, err
	}
	items, err := res.OrderItems()
	if err != nil {
		return nil, err
	}
	customerJSON, err := orders.NewCustomerSnapshot(customer).JSON()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode customer snapshot")
	}

	var (
		session   *gateway.CheckoutSession
		orderCode int64
	)
	err = s.payments.WithOrderCode(ctx, s.cfg.OrderCodeRetries, func(code int64) error {
		orderCode = code
		var notesPtr *string
		if notes != "" {
			notesPtr = &notes
		}
		persist := func(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
			order := &models.Order{
				OrderCode:         code,
				CustomerID:        customer.ID,
				Customer:          customerJSON,
				TotalAmount:       res.Total,
				OrderStatus:       enums.OrderStatusPending,
				TransactionStatus: enums.TransactionStatusDraft,
				PaymentID:         &payment.ID,
				Notes:             notesPtr,
				Items:             cloneItems(items),
			}
			if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
				return err
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         outbox.ActorOf(auth.CustomerActor(order.CustomerID)),
				Data: payloads.OrderCreatedEvent{
					OrderID:       order.ID,
					OrderCode:     code,
					CustomerID:    order.CustomerID,
					PaymentID:     payment.ID,
					PaymentMethod: payment.PaymentMethod,
					TotalAmount:   order.TotalAmount,
				},
			})
		}
		session, err = s.payments.CreatePayment(ctx, payments.PaymentRequest{
			Method:     in.Method,
			Type:       enums.PaymentTypeOrder,
			CustomerID: customer.ID,
			Checkout: gateway.CheckoutSpec{
				OrderCode:     code,
				Amount:        res.Total,
				Currency:      s.cfg.Currency,
				Description:   description(code),
				Items:         gatewayItems(res.Lines),
				CancelURL:     s.cfg.CartURL(),
				ReturnURL:     s.cfg.OrdersURL(),
				NotifyURL:     s.cfg.WebhookURL(in.Method.Slug()),
				CustomerEmail: customer.Email,
				SourceToken:   in.SourceToken,
			},
		}, persist)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		CheckoutURL: session.CheckoutURL,
		ProviderRef: session.ProviderRef,
		OrderCode:   orderCode,
		Method:      in.Method,
		Amount:      res.Total,
	}, nil
}

// description fits PayOS's 25 character limit.
func description(orderCode int64) string {
	code := fmt.Sprintf("%d", orderCode)
	return "FURNIQUE " + code[len(code)-8:]
}

func gatewayItems(lines []reconcile.Line) []gateway.Item {
	out := make([]gateway.Item, 0, len(lines))
	for _, line := range lines {
		out = append(out, gateway.Item{Name: line.Product.Name, Quantity: line.Quantity, UnitPrice: line.Price})
	}
	return out
}

// cloneItems gives each attempt fresh rows; gorm writes generated ids back.
func cloneItems(items []models.OrderItem) []models.OrderItem {
	out := make([]models.OrderItem, len(items))
	copy(out, items)
	return out
}
