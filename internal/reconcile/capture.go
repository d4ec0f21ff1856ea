package reconcile

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/internal/cart"
	"github.com/furnique/furnique-backend/internal/gateway"
	"github.com/furnique/furnique-backend/internal/inventory"
	"github.com/furnique/furnique-backend/internal/notifications"
	"github.com/furnique/furnique-backend/internal/orders"
	"github.com/furnique/furnique-backend/internal/payments"
	"github.com/furnique/furnique-backend/pkg/auth"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/outbox"
	"github.com/furnique/furnique-backend/pkg/outbox/payloads"
)

var draftGuard = orders.Guard{
	OrderStatuses:     []enums.OrderStatus{enums.OrderStatusPending},
	TransactionStatus: enums.TransactionStatusDraft,
}

type OrderCaptureParams struct {
	Orders    orders.Repository
	Carts     *cart.Repository
	Inventory *inventory.Repository
	Outbox    outbox.Emitter
	Notifier  notifications.Notifier
	Logger    *logger.Logger
}

// OrderCapture settles ORDER payments: on success it takes the ordered lines
// out of the cart and stock and marks the order CAPTURED, on failure it marks
// the order ERROR.
type OrderCapture struct {
	orders    orders.Repository
	carts     *cart.Repository
	inventory *inventory.Repository
	outbox    outbox.Emitter
	notifier  notifications.Notifier
	logg      *logger.Logger
}

var (
	_ payments.PurposeHandler = (*OrderCapture)(nil)
	_ payments.RefundHandler  = (*OrderCapture)(nil)
)

func NewOrderCapture(params OrderCaptureParams) (*OrderCapture, error) {
	switch {
	case params.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	case params.Carts == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart repository required")
	case params.Inventory == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory repository required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &OrderCapture{
		orders:    params.Orders,
		carts:     params.Carts,
		inventory: params.Inventory,
		outbox:    params.Outbox,
		notifier:  params.Notifier,
		logg:      logg,
	}, nil
}

// Settle runs inside the webhook transaction. Any error rolls back every
// cart, stock, order and payment write made for this callback.
func (c *OrderCapture) Settle(ctx context.Context, tx *gorm.DB, payment *models.Payment, outcome *gateway.Outcome) (payments.PostCommit, error) {
	repo := c.orders.WithTx(tx)
	order, err := repo.LockByOrderCode(ctx, payment.OrderCode)
	if err != nil {
		return nil, err
	}
	if order.OrderStatus != enums.OrderStatusPending || order.TransactionStatus != enums.TransactionStatusDraft {
		return nil, payments.ErrAlreadySettled
	}
	customer := auth.CustomerActor(order.CustomerID)

	if !outcome.Success {
		return nil, c.fail(ctx, repo, order, customer)
	}
	post, err := c.capture(ctx, tx, repo, payment, order, customer)
	if pkgerrors.HasCode(err, pkgerrors.CodeOrderItemsInvalid) {
		// The customer has paid but the goods are gone; this needs a person.
		c.logg.Error(c.logg.WithOrderCode(ctx, order.OrderCode), "paid order could not be reconciled", err)
	}
	return post, err
}

func (c *OrderCapture) capture(ctx context.Context, tx *gorm.DB, repo orders.Repository, payment *models.Payment, order *models.Order, customer auth.Actor) (payments.PostCommit, error) {
	items, err := repo.Items(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	carts := c.carts.WithTx(tx)
	snap, err := carts.LockSnapshot(ctx, order.CustomerID)
	if err != nil {
		return nil, err
	}
	requested := make([]RequestedItem, 0, len(items))
	for _, item := range items {
		requested = append(requested, RequestedItem{ProductID: item.ProductID, SKU: item.SKU})
	}
	res, err := Validate(requested, snap)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeCartEmpty) {
			return nil, pkgerrors.New(pkgerrors.CodeOrderItemsInvalid, "cart was emptied after checkout").
				WithDetails(map[string]any{"reason": ReasonCartChanged})
		}
		return nil, err
	}
	if res.Total != order.TotalAmount {
		return nil, pkgerrors.New(pkgerrors.CodeOrderItemsInvalid, "cart changed after checkout").
			WithDetails(map[string]any{"reason": ReasonCartChanged, "expected": order.TotalAmount, "actual": res.Total})
	}

	if err := carts.SaveItems(ctx, snap, res.Remaining); err != nil {
		return nil, err
	}
	if err := c.inventory.WithTx(tx).Apply(ctx, res.Stock); err != nil {
		return nil, err
	}
	captured, err := c.snapshotItems(ctx, tx, items, res)
	if err != nil {
		return nil, err
	}

	moved, err := repo.Transition(ctx, order.ID, draftGuard, map[string]any{
		"transaction_status": enums.TransactionStatusCaptured,
		"payment_id":         payment.ID,
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, payments.ErrAlreadySettled
	}
	if err := repo.AppendHistory(ctx, &models.OrderHistory{
		OrderID:           order.ID,
		OrderStatus:       enums.OrderStatusPending,
		TransactionStatus: enums.TransactionStatusCaptured,
		ActorID:           customer.IDPtr(),
		ActorRole:         customer.Role,
	}); err != nil {
		return nil, err
	}
	if err := c.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.ActorOf(customer),
		Data: payloads.OrderPaidEvent{
			OrderID:     order.ID,
			OrderCode:   order.OrderCode,
			CustomerID:  order.CustomerID,
			PaymentID:   payment.ID,
			TotalAmount: order.TotalAmount,
			PaidAt:      time.Now().UTC(),
		},
	}); err != nil {
		return nil, err
	}

	order.TransactionStatus = enums.TransactionStatusCaptured
	notice := orders.Notice(order, captured, "")
	return func(ctx context.Context) {
		if c.notifier == nil {
			return
		}
		if err := c.notifier.OrderConfirmed(ctx, notice); err != nil {
			c.logg.Error(ctx, "order confirmation notification failed", err)
		}
	}, nil
}

func (c *OrderCapture) fail(ctx context.Context, repo orders.Repository, order *models.Order, actor auth.Actor) error {
	moved, err := repo.Transition(ctx, order.ID, draftGuard, map[string]any{
		"transaction_status": enums.TransactionStatusError,
	})
	if err != nil {
		return err
	}
	if !moved {
		return payments.ErrAlreadySettled
	}
	return repo.AppendHistory(ctx, &models.OrderHistory{
		OrderID:           order.ID,
		OrderStatus:       enums.OrderStatusPending,
		TransactionStatus: enums.TransactionStatusError,
		ActorID:           actor.IDPtr(),
		ActorRole:         actor.Role,
	})
}

// snapshotItems refreshes each order item with the product data and price it
// was captured at.
func (c *OrderCapture) snapshotItems(ctx context.Context, tx *gorm.DB, items []models.OrderItem, res *Result) ([]models.OrderItem, error) {
	bySKU := make(map[string]Line, len(res.Lines))
	for _, line := range res.Lines {
		bySKU[line.SKU] = line
	}
	out := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		line, ok := bySKU[item.SKU]
		if !ok {
			out = append(out, item)
			continue
		}
		snap, err := line.Product.JSON()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode product snapshot")
		}
		item.Quantity = line.Quantity
		item.Price = line.Price
		item.ProductSnapshot = snap
		if err := tx.WithContext(ctx).Model(&models.OrderItem{}).Where("id = ?", item.ID).Updates(map[string]any{
			"quantity":         item.Quantity,
			"price":            item.Price,
			"product_snapshot": item.ProductSnapshot,
		}).Error; err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// CheckRefund allows refunds only for orders that were canceled after capture.
func (c *OrderCapture) CheckRefund(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	order, err := c.orders.WithTx(tx).FindByOrderCode(ctx, payment.OrderCode)
	if err != nil {
		return err
	}
	if order.OrderStatus != enums.OrderStatusCanceled || order.TransactionStatus != enums.TransactionStatusCanceled {
		return pkgerrors.New(pkgerrors.CodeOrderStatusInvalid, "only canceled orders can be refunded").
			WithDetails(map[string]any{"orderStatus": order.OrderStatus, "transactionStatus": order.TransactionStatus})
	}
	return nil
}

// Refunded moves the canceled order's transaction status to REFUNDED.
func (c *OrderCapture) Refunded(ctx context.Context, tx *gorm.DB, payment *models.Payment, actor auth.Actor) error {
	repo := c.orders.WithTx(tx)
	order, err := repo.FindByOrderCode(ctx, payment.OrderCode)
	if err != nil {
		return err
	}
	moved, err := repo.Transition(ctx, order.ID, orders.Guard{
		OrderStatuses:     []enums.OrderStatus{enums.OrderStatusCanceled},
		TransactionStatus: enums.TransactionStatusCanceled,
	}, map[string]any{"transaction_status": enums.TransactionStatusRefunded})
	if err != nil {
		return err
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeOrderStatusInvalid, "order is no longer refundable")
	}
	if err := repo.AppendHistory(ctx, &models.OrderHistory{
		OrderID:           order.ID,
		OrderStatus:       enums.OrderStatusCanceled,
		TransactionStatus: enums.TransactionStatusRefunded,
		ActorID:           actor.IDPtr(),
		ActorRole:         actor.Role,
	}); err != nil {
		return err
	}
	return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStateChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.ActorOf(actor),
		Data: payloads.OrderStateChangedEvent{
			OrderID:           order.ID,
			OrderCode:         order.OrderCode,
			From:              order.OrderStatus,
			To:                order.OrderStatus,
			TransactionStatus: enums.TransactionStatusRefunded,
			Operation:         "refund",
		},
	})
}
