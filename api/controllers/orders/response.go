package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
)

type orderSummary struct {
	ID                 uuid.UUID               `json:"id"`
	OrderCode          int64                   `json:"orderCode"`
	CustomerID         uuid.UUID               `json:"customerId"`
	TotalAmount        int64                   `json:"totalAmount"`
	OrderStatus        enums.OrderStatus       `json:"orderStatus"`
	TransactionStatus  enums.TransactionStatus `json:"transactionStatus"`
	IsDeliveryAssigned bool                    `json:"isDeliveryAssigned"`
	DeliveryDate       *time.Time              `json:"deliveryDate,omitempty"`
	CompleteDate       *time.Time              `json:"completeDate,omitempty"`
	CancelReason       *string                 `json:"cancelReason,omitempty"`
	CreatedAt          time.Time               `json:"createdAt"`
	UpdatedAt          time.Time               `json:"updatedAt"`
}

type orderDetail struct {
	orderSummary
	Customer json.RawMessage `json:"customer,omitempty"`
	Notes    *string         `json:"notes,omitempty"`
	Items    []orderItem     `json:"items"`
}

type orderItem struct {
	ProductID uuid.UUID       `json:"productId"`
	SKU       string          `json:"sku"`
	Quantity  int64           `json:"quantity"`
	Price     int64           `json:"price"`
	Product   json.RawMessage `json:"product,omitempty"`
}

type historyEntry struct {
	OrderStatus       enums.OrderStatus       `json:"orderStatus"`
	TransactionStatus enums.TransactionStatus `json:"transactionStatus"`
	ActorID           *uuid.UUID              `json:"actorId,omitempty"`
	ActorRole         enums.ActorRole         `json:"actorRole"`
	Note              *string                 `json:"note,omitempty"`
	CreatedAt         time.Time               `json:"createdAt"`
}

func newOrderSummary(o models.Order) orderSummary {
	return orderSummary{
		ID:                 o.ID,
		OrderCode:          o.OrderCode,
		CustomerID:         o.CustomerID,
		TotalAmount:        o.TotalAmount,
		OrderStatus:        o.OrderStatus,
		TransactionStatus:  o.TransactionStatus,
		IsDeliveryAssigned: o.IsDeliveryAssigned,
		DeliveryDate:       o.DeliveryDate,
		CompleteDate:       o.CompleteDate,
		CancelReason:       o.CancelReason,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

func newOrderDetail(o models.Order) orderDetail {
	out := orderDetail{
		orderSummary: newOrderSummary(o),
		Notes:        o.Notes,
		Items:        make([]orderItem, 0, len(o.Items)),
	}
	if len(o.Customer) > 0 {
		out.Customer = json.RawMessage(o.Customer)
	}
	for _, item := range o.Items {
		row := orderItem{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
		if len(item.ProductSnapshot) > 0 {
			row.Product = json.RawMessage(item.ProductSnapshot)
		}
		out.Items = append(out.Items, row)
	}
	return out
}

func newHistoryEntry(h models.OrderHistory) historyEntry {
	return historyEntry{
		OrderStatus:       h.OrderStatus,
		TransactionStatus: h.TransactionStatus,
		ActorID:           h.ActorID,
		ActorRole:         h.ActorRole,
		Note:              h.Note,
		CreatedAt:         h.CreatedAt,
	}
}
