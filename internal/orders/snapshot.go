package orders

import (
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/furnique/furnique-backend/internal/notifications"
	"github.com/furnique/furnique-backend/pkg/db/models"
)

// CustomerSnapshot is the customer as they were when the order was placed.
type CustomerSnapshot struct {
	ID      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	Phone   *string   `json:"phone,omitempty"`
	Address *string   `json:"address,omitempty"`
}

// NewCustomerSnapshot copies the customer fields orders keep.
func NewCustomerSnapshot(c models.Customer) CustomerSnapshot {
	return CustomerSnapshot{ID: c.ID, Email: c.Email, Name: c.Name, Phone: c.Phone, Address: c.Address}
}

func (s CustomerSnapshot) JSON() (datatypes.JSON, error) {
	raw, err := json.Marshal(s)
	return datatypes.JSON(raw), err
}

// ProductSnapshot is the product and chosen variant as sold.
type ProductSnapshot struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Image       *string         `json:"image,omitempty"`
	SKU         string          `json:"sku"`
	Price       int64           `json:"price"`
	Attributes  json.RawMessage `json:"attributes,omitempty"`
}

// NewProductSnapshot captures product p sold as variant v.
func NewProductSnapshot(p models.Product, v models.Variant) ProductSnapshot {
	snap := ProductSnapshot{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Image:       p.Image,
		SKU:         v.SKU,
		Price:       v.Price,
	}
	if len(v.Attributes) > 0 {
		snap.Attributes = json.RawMessage(v.Attributes)
	}
	return snap
}

func (s ProductSnapshot) JSON() (datatypes.JSON, error) {
	raw, err := json.Marshal(s)
	return datatypes.JSON(raw), err
}

// DecodeCustomer reads the order's customer snapshot. A malformed snapshot
// yields just the customer id.
func DecodeCustomer(order *models.Order) CustomerSnapshot {
	snap := CustomerSnapshot{ID: order.CustomerID}
	if len(order.Customer) > 0 {
		_ = json.Unmarshal(order.Customer, &snap)
	}
	return snap
}

// Notice builds the customer notification for order with items.
func Notice(order *models.Order, items []models.OrderItem, reason string) notifications.OrderNotice {
	customer := DecodeCustomer(order)
	lines := make([]notifications.Line, 0, len(items))
	for _, item := range items {
		var product ProductSnapshot
		_ = json.Unmarshal(item.ProductSnapshot, &product)
		lines = append(lines, notifications.Line{Name: product.Name, SKU: item.SKU, Quantity: item.Quantity, Price: item.Price})
	}
	return notifications.OrderNotice{
		CustomerID:   order.CustomerID,
		Email:        customer.Email,
		CustomerName: customer.Name,
		OrderCode:    order.OrderCode,
		Items:        lines,
		TotalAmount:  order.TotalAmount,
		Reason:       reason,
	}
}
