// Package reconcile matches orders against the live cart and stock, and
// settles order payments.
package reconcile

import (
	"github.com/google/uuid"

	"github.com/furnique/furnique-backend/internal/cart"
	"github.com/furnique/furnique-backend/internal/inventory"
	"github.com/furnique/furnique-backend/internal/orders"
	"github.com/furnique/furnique-backend/pkg/db/models"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
)

const (
	ReasonNotInCart         = "not_in_cart"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonUnavailable       = "unavailable"
	ReasonCartChanged       = "cart_changed"
)

// RequestedItem names one cart line by product and variant.
type RequestedItem struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	SKU       string    `json:"sku" validate:"required,sku"`
}

// Line is a requested item priced and snapshotted from the cart.
type Line struct {
	ProductID uuid.UUID
	SKU       string
	Quantity  int64
	Price     int64
	Product   orders.ProductSnapshot
}

// Result is what an order would look like if taken from the cart right now.
type Result struct {
	Lines          []Line
	Total          int64
	Remaining      []cart.Item
	RemainingTotal int64
	Stock          *inventory.Batch
}

// Validate matches requested against the cart snapshot. It never writes.
// Every requested item must be in the cart with enough stock behind it.
func Validate(requested []RequestedItem, snap *cart.Snapshot) (*Result, error) {
	if snap.Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeCartEmpty, "cart is empty")
	}
	if len(requested) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	type key struct {
		productID uuid.UUID
		sku       string
	}
	wanted := make(map[key]struct{}, len(requested))
	for _, item := range requested {
		k := key{item.ProductID, item.SKU}
		if _, dup := wanted[k]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate item").
				WithDetails(map[string]any{"productId": item.ProductID, "sku": item.SKU})
		}
		wanted[k] = struct{}{}
	}

	res := &Result{Stock: inventory.NewBatch()}
	for _, req := range requested {
		item, ok := snap.Find(req.ProductID, req.SKU)
		if !ok {
			return nil, itemsInvalid(req.ProductID, req.SKU, ReasonNotInCart)
		}
		if !item.Product.Active {
			return nil, itemsInvalid(req.ProductID, req.SKU, ReasonUnavailable)
		}
		if item.Quantity > item.Variant.Quantity {
			return nil, itemsInvalid(req.ProductID, req.SKU, ReasonInsufficientStock).
				WithDetails(map[string]any{
					"productId": req.ProductID,
					"sku":       req.SKU,
					"reason":    ReasonInsufficientStock,
					"requested": item.Quantity,
					"available": item.Variant.Quantity,
				})
		}
		res.Lines = append(res.Lines, Line{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			Price:     item.Variant.Price,
			Product:   orders.NewProductSnapshot(item.Product, item.Variant),
		})
		res.Total += item.LineTotal()
		res.Stock.Take(item.SKU, item.Quantity)
	}

	for _, item := range snap.Items {
		if _, taken := wanted[key{item.ProductID, item.SKU}]; !taken {
			res.Remaining = append(res.Remaining, item)
		}
	}
	res.RemainingTotal = cart.Total(res.Remaining)
	return res, nil
}

// OrderItems renders the lines as order item rows in request order.
func (r *Result) OrderItems() ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(r.Lines))
	for i, line := range r.Lines {
		snap, err := line.Product.JSON()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode product snapshot")
		}
		items = append(items, models.OrderItem{
			ProductID:       line.ProductID,
			SKU:             line.SKU,
			Quantity:        line.Quantity,
			Price:           line.Price,
			ProductSnapshot: snap,
			Position:        i,
		})
	}
	return items, nil
}

func itemsInvalid(productID uuid.UUID, sku, reason string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeOrderItemsInvalid, "order items no longer match the cart").
		WithDetails(map[string]any{"productId": productID, "sku": sku, "reason": reason})
}
