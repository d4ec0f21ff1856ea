package orders

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/internal/inventory"
	"github.com/furnique/furnique-backend/internal/notifications"
	"github.com/furnique/furnique-backend/pkg/auth"
	"github.com/furnique/furnique-backend/pkg/db"
	"github.com/furnique/furnique-backend/pkg/db/dbtest"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/outbox"
	"github.com/furnique/furnique-backend/pkg/pagination"
)

type recordingNotifier struct {
	canceled []notifications.OrderNotice
	err      error
}

func (n *recordingNotifier) OrderConfirmed(context.Context, notifications.OrderNotice) error {
	return nil
}

func (n *recordingNotifier) OrderCanceled(_ context.Context, notice notifications.OrderNotice) error {
	n.canceled = append(n.canceled, notice)
	return n.err
}

func (n *recordingNotifier) CreditsGranted(context.Context, notifications.CreditsNotice) error {
	return nil
}

var nextOrderCode atomic.Int64

func init() { nextOrderCode.Store(1_000_000_000_000_000) }

type fixture struct {
	client   *db.Client
	svc      Service
	notifier *recordingNotifier
	customer models.Customer
	staff    auth.Actor
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.New(t)
	conn := client.DB()

	customer := models.Customer{Email: "binh@example.vn", Name: "Binh"}
	if err := conn.Create(&customer).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	product := models.Product{Name: "Teak sideboard", Active: true}
	if err := conn.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := conn.Create(&models.Variant{ProductID: product.ID, SKU: "A", Price: 100, Quantity: 3}).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}

	f := &fixture{
		client:   client,
		notifier: &recordingNotifier{},
		customer: customer,
		staff:    auth.Actor{ID: uuid.New(), Role: enums.ActorRoleStaff},
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(conn),
		Inventory:         inventory.NewRepository(conn),
		TransactionRunner: client,
		Outbox:            outbox.NewService(outbox.NewRepository(conn), nil),
		Notifier:          f.notifier,
		Clock:             func() time.Time { return f.now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) seedOrder(t *testing.T, status enums.OrderStatus, txn enums.TransactionStatus) models.Order {
	t.Helper()
	snap, _ := NewCustomerSnapshot(f.customer).JSON()
	order := models.Order{
		OrderCode:         nextOrderCode.Add(1),
		CustomerID:        f.customer.ID,
		Customer:          snap,
		TotalAmount:       200,
		OrderStatus:       status,
		TransactionStatus: txn,
		Items:             []models.OrderItem{{SKU: "A", ProductID: uuid.New(), Quantity: 2, Price: 100}},
	}
	if err := f.client.DB().Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func (f *fixture) stock(t *testing.T) int64 {
	t.Helper()
	var v models.Variant
	if err := f.client.DB().Where("sku = ?", "A").First(&v).Error; err != nil {
		t.Fatalf("load variant: %v", err)
	}
	return v.Quantity
}

func (f *fixture) events(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	if err := f.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func TestConfirmAppendsHistoryAndEvent(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusPending, enums.TransactionStatusCaptured)

	got, err := f.svc.Confirm(context.Background(), f.staff, order.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.OrderStatus != enums.OrderStatusConfirmed || got.TransactionStatus != enums.TransactionStatusCaptured {
		t.Fatalf("unexpected state %s/%s", got.OrderStatus, got.TransactionStatus)
	}
	if len(got.History) != 1 || got.History[0].OrderStatus != enums.OrderStatusConfirmed || got.History[0].ActorRole != enums.ActorRoleStaff {
		t.Fatalf("unexpected history %+v", got.History)
	}
	if f.events(t, enums.EventOrderStateChanged) != 1 {
		t.Fatal("expected one order_state_changed event")
	}
}

func TestConfirmGuardFailureLeavesOrderUnchanged(t *testing.T) {
	f := newFixture(t)
	for _, status := range []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusDelivering, enums.OrderStatusCanceled} {
		order := f.seedOrder(t, status, enums.TransactionStatusCaptured)
		_, err := f.svc.Confirm(context.Background(), f.staff, order.ID)
		if !pkgerrors.HasCode(err, pkgerrors.CodeOrderStatusInvalid) {
			t.Fatalf("%s: expected ORDER_STATUS_INVALID, got %v", status, err)
		}
		var stored models.Order
		if err := f.client.DB().First(&stored, "id = ?", order.ID).Error; err != nil {
			t.Fatalf("reload: %v", err)
		}
		if stored.OrderStatus != status {
			t.Fatalf("%s: order mutated to %s", status, stored.OrderStatus)
		}
	}

	uncaptured := f.seedOrder(t, enums.OrderStatusPending, enums.TransactionStatusDraft)
	if _, err := f.svc.Confirm(context.Background(), f.staff, uncaptured.ID); !pkgerrors.HasCode(err, pkgerrors.CodeOrderStatusInvalid) {
		t.Fatalf("draft order: expected ORDER_STATUS_INVALID, got %v", err)
	}
	var history int64
	f.client.DB().Model(&models.OrderHistory{}).Count(&history)
	if history != 0 {
		t.Fatalf("guard failures must not append history, found %d rows", history)
	}
}

func TestFulfillmentPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending, enums.TransactionStatusCaptured)

	steps := []func(context.Context, auth.Actor, uuid.UUID) (*models.Order, error){
		f.svc.Confirm, f.svc.AssignDelivery, f.svc.Deliver, f.svc.Complete,
	}
	var got *models.Order
	for i, step := range steps {
		var err error
		if got, err = step(ctx, f.staff, order.ID); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if got.OrderStatus != enums.OrderStatusCompleted || !got.IsDeliveryAssigned {
		t.Fatalf("unexpected final order %+v", got)
	}
	if got.DeliveryDate == nil || got.CompleteDate == nil {
		t.Fatal("delivery and complete dates should be set")
	}
	if len(got.History) != 4 {
		t.Fatalf("expected 4 history rows, got %d", len(got.History))
	}
	if _, err := f.svc.Complete(ctx, f.staff, order.ID); !pkgerrors.HasCode(err, pkgerrors.CodeOrderStatusInvalid) {
		t.Fatalf("completing twice should fail, got %v", err)
	}
}

func TestStaffOperationsRequireStaff(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusPending, enums.TransactionStatusCaptured)
	_, err := f.svc.Confirm(context.Background(), auth.CustomerActor(f.customer.ID), order.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}

func TestCancelRestoresStock(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusConfirmed, enums.TransactionStatusCaptured)

	got, err := f.svc.Cancel(context.Background(), f.staff, order.ID, " damaged in warehouse ")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.OrderStatus != enums.OrderStatusCanceled || got.TransactionStatus != enums.TransactionStatusCanceled {
		t.Fatalf("unexpected state %s/%s", got.OrderStatus, got.TransactionStatus)
	}
	if got.CancelReason == nil || *got.CancelReason != "damaged in warehouse" {
		t.Fatalf("unexpected reason %v", got.CancelReason)
	}
	if q := f.stock(t); q != 5 {
		t.Fatalf("stock should be restored by 2, got %d", q)
	}
	if f.events(t, enums.EventOrderCanceled) != 1 {
		t.Fatal("expected order_canceled event")
	}
	if len(f.notifier.canceled) != 1 || f.notifier.canceled[0].Email != "binh@example.vn" {
		t.Fatalf("expected one cancel notice, got %+v", f.notifier.canceled)
	}

	if _, err := f.svc.Cancel(context.Background(), f.staff, order.ID, ""); !pkgerrors.HasCode(err, pkgerrors.CodeOrderStatusInvalid) {
		t.Fatalf("second cancel should fail, got %v", err)
	}
	if q := f.stock(t); q != 5 {
		t.Fatalf("failed cancel must not restock, got %d", q)
	}
}

func TestCancelRejectsDeliveringOrders(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusDelivering, enums.TransactionStatusCaptured)
	if _, err := f.svc.Cancel(context.Background(), f.staff, order.ID, ""); !pkgerrors.HasCode(err, pkgerrors.CodeOrderStatusInvalid) {
		t.Fatalf("expected ORDER_STATUS_INVALID, got %v", err)
	}
	if q := f.stock(t); q != 3 {
		t.Fatalf("stock changed to %d", q)
	}
	if len(f.notifier.canceled) != 0 {
		t.Fatal("no notice on failed cancel")
	}
}

func TestCustomerCancelsOwnOrderOnly(t *testing.T) {
	f := newFixture(t)
	order := f.seedOrder(t, enums.OrderStatusPending, enums.TransactionStatusCaptured)

	stranger := auth.CustomerActor(uuid.New())
	if _, err := f.svc.Cancel(context.Background(), stranger, order.ID, ""); !pkgerrors.HasCode(err, pkgerrors.CodeOrderNotFound) {
		t.Fatalf("expected ORDER_NOT_FOUND for another customer, got %v", err)
	}
	f.notifier.err = errors.New("smtp down")
	got, err := f.svc.Cancel(context.Background(), auth.CustomerActor(f.customer.ID), order.ID, "")
	if err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if got.OrderStatus != enums.OrderStatusCanceled {
		t.Fatalf("notification failure must not undo the cancel, got %s", got.OrderStatus)
	}
	if got.History[0].ActorRole != enums.ActorRoleCustomer {
		t.Fatalf("unexpected actor role %s", got.History[0].ActorRole)
	}
}

func TestGetUnknownOrder(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Get(context.Background(), f.staff, uuid.New()); !pkgerrors.HasCode(err, pkgerrors.CodeOrderNotFound) {
		t.Fatalf("expected ORDER_NOT_FOUND, got %v", err)
	}
}

func TestListScopesCustomers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOrder(t, enums.OrderStatusPending, enums.TransactionStatusCaptured)
	f.seedOrder(t, enums.OrderStatusDeleted, enums.TransactionStatusCaptured)

	other := models.Customer{Email: "chi@example.vn", Name: "Chi"}
	if err := f.client.DB().Create(&other).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := f.client.DB().Create(&models.Order{OrderCode: 1_000_000_000_000_777, CustomerID: other.ID, TotalAmount: 1}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	page, err := f.svc.List(ctx, auth.CustomerActor(f.customer.ID), ListFilter{}, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || len(page.Items[0].Items) != 1 {
		t.Fatalf("customer should see one non-deleted order with items, got %d", len(page.Items))
	}

	page, err = f.svc.List(ctx, f.staff, ListFilter{}, pagination.Params{Limit: 10})
	if err != nil {
		t.Fatalf("staff list: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("staff should see both customers' orders, got %d", len(page.Items))
	}
}

func TestExpireDraftOnlyMovesDrafts(t *testing.T) {
	f := newFixture(t)
	draft := f.seedOrder(t, enums.OrderStatusPending, enums.TransactionStatusDraft)
	captured := f.seedOrder(t, enums.OrderStatusPending, enums.TransactionStatusCaptured)

	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		moved, err := f.svc.ExpireDraft(context.Background(), tx, draft.OrderCode)
		if err != nil || !moved {
			t.Fatalf("expire draft: moved=%v err=%v", moved, err)
		}
		moved, err = f.svc.ExpireDraft(context.Background(), tx, captured.OrderCode)
		if err != nil || moved {
			t.Fatalf("captured order must not expire: moved=%v err=%v", moved, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if f.events(t, enums.EventOrderExpired) != 1 {
		t.Fatal("expected one order_expired event")
	}
	history, err := f.svc.History(context.Background(), f.staff, draft.ID)
	if err != nil || len(history) != 1 || history[0].ActorRole != enums.ActorRoleSystem {
		t.Fatalf("unexpected history %+v err=%v", history, err)
	}
}
