package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Product groups sellable variants.
type Product struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name        string    `gorm:"column:name;not null"`
	Description string    `gorm:"column:description;not null;default:''"`
	Image       *string   `gorm:"column:image"`
	Active      bool      `gorm:"column:active;not null;default:true"`
	Variants    []Variant `gorm:"foreignKey:ProductID"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// Variant is the stock keeping unit. Quantity is only mutated through
// per-sku conditional increments and decrements.
type Variant struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID      `gorm:"column:product_id;type:uuid;not null;index"`
	SKU        string         `gorm:"column:sku;not null;uniqueIndex"`
	Price      int64          `gorm:"column:price;not null"`
	Quantity   int64          `gorm:"column:quantity;not null;default:0"`
	Attributes datatypes.JSON `gorm:"column:attributes"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Variant) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}
