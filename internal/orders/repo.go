package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/pkg/db"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByOrderCode(ctx context.Context, orderCode int64) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("order_code = ?", orderCode))
}

// LockByOrderCode loads and row-locks the order for the rest of the transaction.
func (r *repository) LockByOrderCode(ctx context.Context, orderCode int64) (*models.Order, error) {
	return r.first(db.ForUpdate(r.db.WithContext(ctx)).Where("order_code = ?", orderCode))
}

// FindDetail loads the order with items (in cart order) and history (oldest first).
func (r *repository) FindDetail(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).
		Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("position ASC") }).
		Preload("History", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", id))
}

func (r *repository) first(q *gorm.DB) (*models.Order, error) {
	var order models.Order
	err := q.First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Items(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("position ASC").Find(&items).Error
	return items, err
}

func (r *repository) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderHistory, error) {
	var rows []models.OrderHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// Transition applies updates only when the order matches guard. It reports
// whether a row matched; zero rows means the guard failed (or the order is gone).
func (r *repository) Transition(ctx context.Context, id uuid.UUID, guard Guard, updates map[string]any) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id)
	if len(guard.OrderStatuses) > 0 {
		q = q.Where("order_status IN ?", guard.OrderStatuses)
	}
	if guard.TransactionStatus != "" {
		q = q.Where("transaction_status = ?", guard.TransactionStatus)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AppendHistory inserts one history entry. History rows are never updated.
func (r *repository) AppendHistory(ctx context.Context, entry *models.OrderHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[models.Order], error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("order_status <> ?", enums.OrderStatusDeleted)
	if filter.CustomerID != nil {
		q = q.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.OrderStatus != nil {
		q = q.Where("order_status = ?", *filter.OrderStatus)
	}
	q, err := pagination.Apply(q, "orders", params)
	if err != nil {
		return pagination.Page[models.Order]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var rows []models.Order
	if err := q.Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("position ASC") }).Find(&rows).Error; err != nil {
		return pagination.Page[models.Order]{}, err
	}
	return pagination.Build(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}
