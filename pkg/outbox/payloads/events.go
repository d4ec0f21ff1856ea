package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/furnique/furnique-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when a draft order is persisted with its payment.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"orderId"`
	OrderCode     int64               `json:"orderCode"`
	CustomerID    uuid.UUID           `json:"customerId"`
	PaymentID     uuid.UUID           `json:"paymentId"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	TotalAmount   int64               `json:"totalAmount"`
}

// OrderPaidEvent is emitted when capture commits.
type OrderPaidEvent struct {
	OrderID     uuid.UUID `json:"orderId"`
	OrderCode   int64     `json:"orderCode"`
	CustomerID  uuid.UUID `json:"customerId"`
	PaymentID   uuid.UUID `json:"paymentId"`
	TotalAmount int64     `json:"totalAmount"`
	PaidAt      time.Time `json:"paidAt"`
}

// OrderStateChangedEvent records one lifecycle transition.
type OrderStateChangedEvent struct {
	OrderID           uuid.UUID               `json:"orderId"`
	OrderCode         int64                   `json:"orderCode"`
	From              enums.OrderStatus       `json:"from"`
	To                enums.OrderStatus       `json:"to"`
	TransactionStatus enums.TransactionStatus `json:"transactionStatus"`
	Operation         string                  `json:"operation"`
}

// OrderCanceledEvent is emitted when a captured order is canceled and stock restored.
type OrderCanceledEvent struct {
	OrderID    uuid.UUID        `json:"orderId"`
	OrderCode  int64            `json:"orderCode"`
	CustomerID uuid.UUID        `json:"customerId"`
	Reason     string           `json:"reason,omitempty"`
	Restocked  map[string]int64 `json:"restocked"`
	CanceledAt time.Time        `json:"canceledAt"`
}

// OrderExpiredEvent is emitted when a draft order outlives its checkout window.
type OrderExpiredEvent struct {
	OrderID   uuid.UUID `json:"orderId"`
	OrderCode int64     `json:"orderCode"`
	ExpiredAt time.Time `json:"expiredAt"`
}

// PaymentStatusEvent covers settled, failed and refunded payments.
type PaymentStatusEvent struct {
	PaymentID     uuid.UUID               `json:"paymentId"`
	OrderCode     int64                   `json:"orderCode"`
	CustomerID    uuid.UUID               `json:"customerId"`
	PaymentMethod enums.PaymentMethod     `json:"paymentMethod"`
	PaymentType   enums.PaymentType       `json:"paymentType"`
	Amount        int64                   `json:"amount"`
	Status        enums.TransactionStatus `json:"status"`
}

// CreditsGrantedEvent is emitted when a credit purchase settles.
type CreditsGrantedEvent struct {
	CustomerID uuid.UUID        `json:"customerId"`
	PaymentID  uuid.UUID        `json:"paymentId"`
	Plan       enums.CreditPlan `json:"plan"`
	Credits    int64            `json:"credits"`
}
