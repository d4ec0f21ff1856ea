package cartdto

import "github.com/google/uuid"

// AddItemRequest adds units of one variant to the cart.
type AddItemRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	SKU       string    `json:"sku" validate:"required,sku"`
	Quantity  int64     `json:"quantity" validate:"required,min=1,max=999"`
}

// Cart is the cart as priced right now.
type Cart struct {
	CartID      *uuid.UUID `json:"cartId,omitempty"`
	Items       []CartItem `json:"items"`
	TotalAmount int64      `json:"totalAmount"`
	// Unavailable lists stored lines whose variant is no longer sold. They are
	// not priced and cannot be checked out.
	Unavailable []UnavailableItem `json:"unavailable,omitempty"`
}

type UnavailableItem struct {
	ProductID uuid.UUID `json:"productId"`
	SKU       string    `json:"sku"`
	Quantity  int64     `json:"quantity"`
}

type CartItem struct {
	ProductID uuid.UUID `json:"productId"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Image     *string   `json:"image,omitempty"`
	Quantity  int64     `json:"quantity"`
	UnitPrice int64     `json:"unitPrice"`
	LineTotal int64     `json:"lineTotal"`
	InStock   int64     `json:"inStock"`
}
