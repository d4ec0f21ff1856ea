package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/pkg/enums"
)

// Payment is the ledger row for one gateway checkout.
type Payment struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderCode         int64                   `gorm:"column:order_code;not null;uniqueIndex"`
	CustomerID        uuid.UUID               `gorm:"column:customer_id;type:uuid;not null;index"`
	PaymentMethod     enums.PaymentMethod     `gorm:"column:payment_method;not null"`
	PaymentType       enums.PaymentType       `gorm:"column:payment_type;not null"`
	Amount            int64                   `gorm:"column:amount;not null"`
	TransactionStatus enums.TransactionStatus `gorm:"column:transaction_status;not null;default:'DRAFT'"`
	ProviderRef       string                  `gorm:"column:provider_ref;not null;default:''"`
	CheckoutURL       string                  `gorm:"column:checkout_url;not null;default:''"`
	CreditPlan        *enums.CreditPlan       `gorm:"column:credit_plan"`
	Transaction       datatypes.JSON          `gorm:"column:transaction"`
	History           []PaymentTransaction    `gorm:"foreignKey:PaymentID"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// PaymentTransaction keeps every gateway payload ever seen for a payment. Insert-only.
type PaymentTransaction struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	PaymentID         uuid.UUID               `gorm:"column:payment_id;type:uuid;not null;index"`
	TransactionStatus enums.TransactionStatus `gorm:"column:transaction_status;not null"`
	Payload           datatypes.JSON          `gorm:"column:payload"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (p *PaymentTransaction) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
