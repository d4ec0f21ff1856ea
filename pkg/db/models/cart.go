package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/pkg/enums"
)

// Cart is the customer's single working cart. It is deactivated, never deleted.
type Cart struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID  uuid.UUID        `gorm:"column:customer_id;type:uuid;not null;uniqueIndex"`
	TotalAmount int64            `gorm:"column:total_amount;not null;default:0"`
	Status      enums.CartStatus `gorm:"column:status;not null;default:'ACTIVE'"`
	Items       []CartItem       `gorm:"foreignKey:CartID"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// CartItem keeps the customer's chosen order through Position.
type CartItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CartID    uuid.UUID `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	SKU       string    `gorm:"column:sku;not null"`
	Quantity  int64     `gorm:"column:quantity;not null"`
	Position  int       `gorm:"column:position;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *CartItem) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}
