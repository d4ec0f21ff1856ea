package cart

import (
	"github.com/google/uuid"

	cartdto "github.com/furnique/furnique-backend/api/controllers/cart/dto"
	cartsvc "github.com/furnique/furnique-backend/internal/cart"
)

func newCart(snap *cartsvc.Snapshot) cartdto.Cart {
	out := cartdto.Cart{Items: []cartdto.CartItem{}}
	if snap == nil {
		return out
	}
	if snap.CartID != uuid.Nil {
		id := snap.CartID
		out.CartID = &id
	}
	for _, item := range snap.Items {
		out.Items = append(out.Items, cartdto.CartItem{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.Product.Name,
			Image:     item.Product.Image,
			Quantity:  item.Quantity,
			UnitPrice: item.Variant.Price,
			LineTotal: item.LineTotal(),
			InStock:   item.Variant.Quantity,
		})
	}
	for _, line := range snap.Stale {
		out.Unavailable = append(out.Unavailable, cartdto.UnavailableItem{
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Quantity:  line.Quantity,
		})
	}
	out.TotalAmount = snap.TotalAmount
	return out
}
