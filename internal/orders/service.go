package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/internal/inventory"
	"github.com/furnique/furnique-backend/internal/notifications"
	"github.com/furnique/furnique-backend/pkg/auth"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/outbox"
	"github.com/furnique/furnique-backend/pkg/outbox/payloads"
	"github.com/furnique/furnique-backend/pkg/pagination"
)

const maxCancelReasonLength = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives the fulfillment lifecycle of captured orders.
type Service interface {
	Confirm(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	AssignDelivery(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	Deliver(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	Complete(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, actor auth.Actor, orderID uuid.UUID, reason string) (*models.Order, error)
	Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, actor auth.Actor, filter ListFilter, params pagination.Params) (pagination.Page[models.Order], error)
	History(ctx context.Context, actor auth.Actor, orderID uuid.UUID) ([]models.OrderHistory, error)
	ExpireDraft(ctx context.Context, tx *gorm.DB, orderCode int64) (bool, error)
}

type ServiceParams struct {
	Repo              Repository
	Inventory         *inventory.Repository
	TransactionRunner txRunner
	Outbox            outbox.Emitter
	Notifier          notifications.Notifier
	Logger            *logger.Logger
	Clock             func() time.Time
}

type service struct {
	repo      Repository
	inventory *inventory.Repository
	tx        txRunner
	outbox    outbox.Emitter
	notifier  notifications.Notifier
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	case params.Inventory == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory repository required")
	case params.TransactionRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:      params.Repo,
		inventory: params.Inventory,
		tx:        params.TransactionRunner,
		outbox:    params.Outbox,
		notifier:  params.Notifier,
		logg:      logg,
		now:       now,
	}, nil
}

func (s *service) Confirm(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	return s.staffTransition(ctx, actor, orderID, OpConfirm)
}

func (s *service) AssignDelivery(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	return s.staffTransition(ctx, actor, orderID, OpAssignDelivery)
}

func (s *service) Deliver(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	return s.staffTransition(ctx, actor, orderID, OpDeliver)
}

func (s *service) Complete(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	return s.staffTransition(ctx, actor, orderID, OpComplete)
}

func (s *service) staffTransition(ctx context.Context, actor auth.Actor, orderID uuid.UUID, op Operation) (*models.Order, error) {
	if !actor.Role.IsStaff() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		_, err = s.transition(ctx, tx, actor, order, op, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindDetail(ctx, orderID)
}

// Cancel cancels a captured order that has not shipped and restores its stock.
// Customers may cancel their own orders; staff may cancel any.
func (s *service) Cancel(ctx context.Context, actor auth.Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxCancelReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancel reason is too long").
			WithDetails(map[string]any{"max": maxCancelReasonLength})
	}

	var (
		order *models.Order
		items []models.OrderItem
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.visibleOrder(ctx, repo, actor, orderID)
		if err != nil {
			return err
		}
		items, err = repo.Items(ctx, order.ID)
		if err != nil {
			return err
		}
		extra := map[string]any{}
		if reason != "" {
			extra["cancel_reason"] = reason
		}
		now, err := s.transition(ctx, tx, actor, order, OpCancel, extra)
		if err != nil {
			return err
		}
		// Cancel undoes exactly what capture took.
		captured := inventory.NewBatch()
		for _, item := range items {
			captured.Take(item.SKU, item.Quantity)
		}
		batch := captured.Inverse()
		if err := s.inventory.WithTx(tx).Apply(ctx, batch); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.ActorOf(actor),
			Data: payloads.OrderCanceledEvent{
				OrderID:    order.ID,
				OrderCode:  order.OrderCode,
				CustomerID: order.CustomerID,
				Reason:     reason,
				Restocked:  batch.Deltas(),
				CanceledAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifyCanceled(ctx, order, items, reason)
	return s.repo.FindDetail(ctx, orderID)
}

// transition runs op as one conditional update on order, then appends history
// and emits order_state_changed. It returns the transition timestamp.
func (s *service) transition(ctx context.Context, tx *gorm.DB, actor auth.Actor, order *models.Order, op Operation, extra map[string]any) (time.Time, error) {
	t, ok := transitions[op]
	if !ok {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeInternal, "unknown order operation "+string(op))
	}
	now := s.now()
	updates, to, txn := t.apply(order.OrderStatus, now)
	for k, v := range extra {
		updates[k] = v
	}

	repo := s.repo.WithTx(tx)
	moved, err := repo.Transition(ctx, order.ID, t.Guard, updates)
	if err != nil {
		return time.Time{}, err
	}
	if !moved {
		return time.Time{}, statusInvalid(order, op)
	}
	if err := repo.AppendHistory(ctx, &models.OrderHistory{
		OrderID:           order.ID,
		OrderStatus:       to,
		TransactionStatus: txn,
		ActorID:           actor.IDPtr(),
		ActorRole:         actor.Role,
		Note:              notePtr(string(op)),
	}); err != nil {
		return time.Time{}, err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStateChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.ActorOf(actor),
		Data: payloads.OrderStateChangedEvent{
			OrderID:           order.ID,
			OrderCode:         order.OrderCode,
			From:              order.OrderStatus,
			To:                to,
			TransactionStatus: txn,
			Operation:         string(op),
		},
	}); err != nil {
		return time.Time{}, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"order_id": order.ID.String(), "operation": string(op)})
	s.logg.Info(ctx, "order transitioned to "+string(to))
	return now, nil
}

// ExpireDraft cancels a PENDING order whose payment never settled. It reports
// false when the order already left DRAFT, which lets a late capture win.
func (s *service) ExpireDraft(ctx context.Context, tx *gorm.DB, orderCode int64) (bool, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByOrderCode(ctx, orderCode)
	if err != nil {
		return false, err
	}
	now := s.now()
	moved, err := repo.Transition(ctx, order.ID, Guard{
		OrderStatuses:     []enums.OrderStatus{enums.OrderStatusPending},
		TransactionStatus: enums.TransactionStatusDraft,
	}, map[string]any{
		"order_status":       enums.OrderStatusCanceled,
		"transaction_status": enums.TransactionStatusCanceled,
		"cancel_reason":      "checkout expired",
		"updated_at":         now,
	})
	if err != nil || !moved {
		return false, err
	}
	system := auth.SystemActor()
	if err := repo.AppendHistory(ctx, &models.OrderHistory{
		OrderID:           order.ID,
		OrderStatus:       enums.OrderStatusCanceled,
		TransactionStatus: enums.TransactionStatusCanceled,
		ActorRole:         system.Role,
		Note:              notePtr("expired"),
	}); err != nil {
		return false, err
	}
	return true, s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderExpired,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.ActorOf(system),
		Data:          payloads.OrderExpiredEvent{OrderID: order.ID, OrderCode: order.OrderCode, ExpiredAt: now},
	})
}

func (s *service) Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.visibleOrder(ctx, s.repo, actor, orderID)
	if err != nil {
		return nil, err
	}
	return s.repo.FindDetail(ctx, order.ID)
}

func (s *service) History(ctx context.Context, actor auth.Actor, orderID uuid.UUID) ([]models.OrderHistory, error) {
	order, err := s.visibleOrder(ctx, s.repo, actor, orderID)
	if err != nil {
		return nil, err
	}
	return s.repo.History(ctx, order.ID)
}

// List scopes customers to their own orders; staff see every customer unless
// the filter names one.
func (s *service) List(ctx context.Context, actor auth.Actor, filter ListFilter, params pagination.Params) (pagination.Page[models.Order], error) {
	if !actor.Role.IsStaff() {
		if actor.ID == uuid.Nil {
			return pagination.Page[models.Order]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer required")
		}
		id := actor.ID
		filter.CustomerID = &id
	}
	return s.repo.List(ctx, filter, params)
}

// visibleOrder hides other customers' orders behind ORDER_NOT_FOUND.
func (s *service) visibleOrder(ctx context.Context, repo Repository, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor.Role.IsStaff() {
		return order, nil
	}
	if actor.Role != enums.ActorRoleCustomer || order.CustomerID != actor.ID {
		return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
	}
	return order, nil
}

func (s *service) notifyCanceled(ctx context.Context, order *models.Order, items []models.OrderItem, reason string) {
	if s.notifier == nil || order == nil {
		return
	}
	if err := s.notifier.OrderCanceled(ctx, Notice(order, items, reason)); err != nil {
		s.logg.Error(s.logg.WithOrderCode(ctx, order.OrderCode), "order canceled notification failed", err)
	}
}

func statusInvalid(order *models.Order, op Operation) error {
	return pkgerrors.New(pkgerrors.CodeOrderStatusInvalid, "order cannot "+strings.ReplaceAll(string(op), "_", " ")+" from its current state").
		WithDetails(map[string]any{
			"orderId":           order.ID,
			"operation":         string(op),
			"orderStatus":       order.OrderStatus,
			"transactionStatus": order.TransactionStatus,
		})
}

func notePtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
