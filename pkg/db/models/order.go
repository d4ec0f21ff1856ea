package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/pkg/enums"
)

// Order is the fulfillment record created alongside a draft payment.
type Order struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderCode          int64                   `gorm:"column:order_code;not null;uniqueIndex"`
	CustomerID         uuid.UUID               `gorm:"column:customer_id;type:uuid;not null;index"`
	Customer           datatypes.JSON          `gorm:"column:customer"`
	TotalAmount        int64                   `gorm:"column:total_amount;not null"`
	OrderStatus        enums.OrderStatus       `gorm:"column:order_status;not null;default:'PENDING'"`
	TransactionStatus  enums.TransactionStatus `gorm:"column:transaction_status;not null;default:'DRAFT'"`
	PaymentID          *uuid.UUID              `gorm:"column:payment_id;type:uuid"`
	Notes              *string                 `gorm:"column:notes"`
	IsDeliveryAssigned bool                    `gorm:"column:is_delivery_assigned;not null;default:false"`
	DeliveryDate       *time.Time              `gorm:"column:delivery_date"`
	CompleteDate       *time.Time              `gorm:"column:complete_date"`
	CancelReason       *string                 `gorm:"column:cancel_reason"`
	Items              []OrderItem             `gorm:"foreignKey:OrderID"`
	History            []OrderHistory          `gorm:"foreignKey:OrderID"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// OrderItem snapshots the product as it was when the order was placed.
type OrderItem struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID      `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID       uuid.UUID      `gorm:"column:product_id;type:uuid;not null"`
	SKU             string         `gorm:"column:sku;not null"`
	Quantity        int64          `gorm:"column:quantity;not null"`
	Price           int64          `gorm:"column:price;not null"`
	ProductSnapshot datatypes.JSON `gorm:"column:product_snapshot"`
	Position        int            `gorm:"column:position;not null;default:0"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// OrderHistory rows are insert-only.
type OrderHistory struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	OrderStatus       enums.OrderStatus       `gorm:"column:order_status;not null"`
	TransactionStatus enums.TransactionStatus `gorm:"column:transaction_status;not null"`
	ActorID           *uuid.UUID              `gorm:"column:actor_id;type:uuid"`
	ActorRole         enums.ActorRole         `gorm:"column:actor_role;not null"`
	Note              *string                 `gorm:"column:note"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (OrderHistory) TableName() string { return "order_history" }

func (h *OrderHistory) BeforeCreate(*gorm.DB) error {
	assignID(&h.ID)
	return nil
}
