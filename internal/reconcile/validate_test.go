package reconcile

import (
	"testing"

	"github.com/google/uuid"

	"github.com/furnique/furnique-backend/internal/cart"
	"github.com/furnique/furnique-backend/pkg/db/models"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
)

func snapshotOf(lines ...cart.Item) *cart.Snapshot {
	snap := &cart.Snapshot{CartID: uuid.New(), CustomerID: uuid.New(), Items: lines}
	snap.TotalAmount = cart.Total(lines)
	return snap
}

func line(productID uuid.UUID, sku string, qty, stock, price int64) cart.Item {
	return cart.Item{
		ProductID: productID,
		SKU:       sku,
		Quantity:  qty,
		Product:   models.Product{ID: productID, Name: "Lamp " + sku, Active: true},
		Variant:   models.Variant{ProductID: productID, SKU: sku, Price: price, Quantity: stock},
	}
}

func TestValidateSplitsCart(t *testing.T) {
	p := uuid.New()
	snap := snapshotOf(line(p, "A", 1, 5, 100), line(p, "B", 2, 5, 40), line(p, "C", 1, 1, 10))

	res, err := Validate([]RequestedItem{{ProductID: p, SKU: "C"}, {ProductID: p, SKU: "A"}}, snap)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Total != 110 {
		t.Fatalf("expected total 110, got %d", res.Total)
	}
	if len(res.Lines) != 2 || res.Lines[0].SKU != "C" || res.Lines[1].Product.Name != "Lamp A" {
		t.Fatalf("unexpected lines %+v", res.Lines)
	}
	if len(res.Remaining) != 1 || res.Remaining[0].SKU != "B" || res.RemainingTotal != 80 {
		t.Fatalf("unexpected remaining cart %+v total=%d", res.Remaining, res.RemainingTotal)
	}
	if res.Stock.Delta("A") != -1 || res.Stock.Delta("C") != -1 || res.Stock.Delta("B") != 0 {
		t.Fatalf("unexpected stock batch %v", res.Stock.Deltas())
	}

	items, err := res.OrderItems()
	if err != nil {
		t.Fatalf("order items: %v", err)
	}
	if len(items) != 2 || items[1].Position != 1 || items[1].Price != 100 || len(items[1].ProductSnapshot) == 0 {
		t.Fatalf("unexpected order items %+v", items)
	}
}

func TestValidateErrors(t *testing.T) {
	p := uuid.New()
	inactive := line(p, "OLD", 1, 5, 10)
	inactive.Product.Active = false
	snap := snapshotOf(line(p, "A", 3, 2, 100), line(p, "B", 1, 1, 10), inactive)

	tests := []struct {
		name      string
		snap      *cart.Snapshot
		requested []RequestedItem
		code      pkgerrors.Code
		reason    string
	}{
		{"empty cart", snapshotOf(), []RequestedItem{{ProductID: p, SKU: "A"}}, pkgerrors.CodeCartEmpty, ""},
		{"nil cart", nil, []RequestedItem{{ProductID: p, SKU: "A"}}, pkgerrors.CodeCartEmpty, ""},
		{"nothing requested", snap, nil, pkgerrors.CodeValidation, ""},
		{"duplicate", snap, []RequestedItem{{ProductID: p, SKU: "B"}, {ProductID: p, SKU: "B"}}, pkgerrors.CodeValidation, ""},
		{"not in cart", snap, []RequestedItem{{ProductID: p, SKU: "Z"}}, pkgerrors.CodeOrderItemsInvalid, ReasonNotInCart},
		{"wrong product", snap, []RequestedItem{{ProductID: uuid.New(), SKU: "B"}}, pkgerrors.CodeOrderItemsInvalid, ReasonNotInCart},
		{"over stock", snap, []RequestedItem{{ProductID: p, SKU: "A"}}, pkgerrors.CodeOrderItemsInvalid, ReasonInsufficientStock},
		{"inactive", snap, []RequestedItem{{ProductID: p, SKU: "OLD"}}, pkgerrors.CodeOrderItemsInvalid, ReasonUnavailable},
	}
	for _, tt := range tests {
		_, err := Validate(tt.requested, tt.snap)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != tt.code {
			t.Fatalf("%s: expected %s, got %v", tt.name, tt.code, err)
		}
		if tt.reason == "" {
			continue
		}
		details, _ := typed.Details().(map[string]any)
		if details["reason"] != tt.reason {
			t.Fatalf("%s: expected reason %s, got %v", tt.name, tt.reason, details)
		}
	}
}
