package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	"github.com/furnique/furnique-backend/pkg/pagination"
)

// Repository defines persistence operations for orders, their items and history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderCode(ctx context.Context, orderCode int64) (*models.Order, error)
	LockByOrderCode(ctx context.Context, orderCode int64) (*models.Order, error)
	FindDetail(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Items(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderHistory, error)
	Transition(ctx context.Context, id uuid.UUID, guard Guard, updates map[string]any) (bool, error)
	AppendHistory(ctx context.Context, entry *models.OrderHistory) error
	List(ctx context.Context, filter ListFilter, params pagination.Params) (pagination.Page[models.Order], error)
}

// Guard is the state an order must be in for a conditional update to match.
type Guard struct {
	OrderStatuses     []enums.OrderStatus
	TransactionStatus enums.TransactionStatus
}

// ListFilter narrows order listings. A nil CustomerID lists every customer.
type ListFilter struct {
	CustomerID  *uuid.UUID
	OrderStatus *enums.OrderStatus
}
