// Package cart keeps each customer's working cart and exposes the live
// snapshot checkout and capture reconcile against.
package cart

import (
	"github.com/google/uuid"

	"github.com/furnique/furnique-backend/pkg/db/models"
)

// Item is a cart line resolved against the current product and variant rows.
type Item struct {
	ProductID uuid.UUID
	SKU       string
	Quantity  int64
	Position  int
	Product   models.Product
	Variant   models.Variant
}

// LineTotal prices the line at the variant's current price.
func (i Item) LineTotal() int64 {
	return i.Variant.Price * i.Quantity
}

// Snapshot is the cart as stored right now. A customer without a cart gets a
// snapshot with a nil CartID and no items.
type Snapshot struct {
	CartID      uuid.UUID
	CustomerID  uuid.UUID
	Items       []Item
	TotalAmount int64
	// Stale holds stored lines whose sku or product no longer resolves. They
	// are not priced or checked out.
	Stale []models.CartItem
}

// Find returns the line for (productID, sku).
func (s *Snapshot) Find(productID uuid.UUID, sku string) (Item, bool) {
	if s == nil {
		return Item{}, false
	}
	for _, item := range s.Items {
		if item.ProductID == productID && item.SKU == sku {
			return item, true
		}
	}
	return Item{}, false
}

func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Items) == 0
}

// Total sums the lines at current prices.
func Total(items []Item) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotal()
	}
	return total
}
