// Package notifications tells customers about settled orders, cancellations
// and credit grants. Producers publish after commit; the worker renders and
// delivers.
package notifications

import (
	"time"

	"github.com/google/uuid"

	"github.com/furnique/furnique-backend/pkg/enums"
)

// Line is one ordered item as the customer saw it.
type Line struct {
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

// Message is the broker payload for every notification type.
type Message struct {
	ID           string                 `json:"id"`
	Type         enums.NotificationType `json:"type"`
	CustomerID   uuid.UUID              `json:"customerId"`
	Email        string                 `json:"email"`
	CustomerName string                 `json:"customerName,omitempty"`
	OrderCode    int64                  `json:"orderCode,omitempty"`
	Items        []Line                 `json:"items,omitempty"`
	TotalAmount  int64                  `json:"totalAmount,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
	Plan         enums.CreditPlan       `json:"plan,omitempty"`
	Credits      int64                  `json:"credits,omitempty"`
	OccurredAt   time.Time              `json:"occurredAt"`
}

// OrderNotice feeds OrderConfirmed and OrderCanceled.
type OrderNotice struct {
	CustomerID   uuid.UUID
	Email        string
	CustomerName string
	OrderCode    int64
	Items        []Line
	TotalAmount  int64
	Reason       string
}

// CreditsNotice feeds CreditsGranted.
type CreditsNotice struct {
	CustomerID uuid.UUID
	Email      string
	Plan       enums.CreditPlan
	Credits    int64
	Amount     int64
}

func (n OrderNotice) message(kind enums.NotificationType) Message {
	return Message{
		ID:           uuid.NewString(),
		Type:         kind,
		CustomerID:   n.CustomerID,
		Email:        n.Email,
		CustomerName: n.CustomerName,
		OrderCode:    n.OrderCode,
		Items:        n.Items,
		TotalAmount:  n.TotalAmount,
		Reason:       n.Reason,
		OccurredAt:   time.Now().UTC(),
	}
}

func (n CreditsNotice) message() Message {
	return Message{
		ID:          uuid.NewString(),
		Type:        enums.NotificationCreditsGranted,
		CustomerID:  n.CustomerID,
		Email:       n.Email,
		Plan:        n.Plan,
		Credits:     n.Credits,
		TotalAmount: n.Amount,
		OccurredAt:  time.Now().UTC(),
	}
}
