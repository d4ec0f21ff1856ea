package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/pkg/db/dbtest"
	"github.com/furnique/furnique-backend/pkg/db/models"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
)

func seedVariants(t *testing.T, db *gorm.DB, stock map[string]int64) {
	t.Helper()
	product := models.Product{Name: "Oak chair"}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	for sku, qty := range stock {
		v := models.Variant{ProductID: product.ID, SKU: sku, Price: 100, Quantity: qty}
		if err := db.Create(&v).Error; err != nil {
			t.Fatalf("seed variant %s: %v", sku, err)
		}
	}
}

func quantityOf(t *testing.T, db *gorm.DB, sku string) int64 {
	t.Helper()
	var v models.Variant
	if err := db.Where("sku = ?", sku).First(&v).Error; err != nil {
		t.Fatalf("load %s: %v", sku, err)
	}
	return v.Quantity
}

func TestBatchNetsAndSorts(t *testing.T) {
	b := NewBatch()
	b.Take("B", 2)
	b.Take("A", 1)
	b.Return("B", 2)
	b.Take("C", 3)
	b.Take(" ", 5)

	if got := b.SKUs(); len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Fatalf("unexpected skus %v", got)
	}
	inv := b.Inverse()
	if inv.Delta("A") != 1 || inv.Delta("C") != 3 {
		t.Fatalf("unexpected inverse %v", inv.Deltas())
	}
	if b.Delta("A") != -1 {
		t.Fatal("inverse must not mutate the source batch")
	}
}

func TestApplyDecrementsAndRestores(t *testing.T) {
	client := dbtest.New(t)
	seedVariants(t, client.DB(), map[string]int64{"A": 5, "B": 1})
	repo := NewRepository(client.DB())

	b := NewBatch()
	b.Take("A", 2)
	b.Take("B", 1)
	if err := repo.Apply(context.Background(), b); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if quantityOf(t, client.DB(), "A") != 3 || quantityOf(t, client.DB(), "B") != 0 {
		t.Fatal("unexpected stock after decrement")
	}

	if err := repo.Apply(context.Background(), b.Inverse()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if quantityOf(t, client.DB(), "A") != 5 || quantityOf(t, client.DB(), "B") != 1 {
		t.Fatal("inverse batch should restore stock exactly")
	}
}

func TestApplyRollsBackWholeBatchOnShortStock(t *testing.T) {
	client := dbtest.New(t)
	seedVariants(t, client.DB(), map[string]int64{"A": 5, "B": 1})
	repo := NewRepository(client.DB())

	b := NewBatch()
	b.Take("A", 2)
	b.Take("B", 2)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return repo.WithTx(tx).Apply(context.Background(), b)
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeOrderItemsInvalid) {
		t.Fatalf("expected ORDER_ITEMS_INVALID, got %v", err)
	}
	if quantityOf(t, client.DB(), "A") != 5 {
		t.Fatal("sku A must be untouched after the batch aborts")
	}
}

func TestApplyConcurrentDisjointBatchesLoseNothing(t *testing.T) {
	client := dbtest.New(t)
	seedVariants(t, client.DB(), map[string]int64{"A": 100})
	repo := NewRepository(client.DB())

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := NewBatch()
			b.Take("A", 3)
			errs <- client.WithTx(context.Background(), func(tx *gorm.DB) error {
				return repo.WithTx(tx).Apply(context.Background(), b)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if got := quantityOf(t, client.DB(), "A"); got != 70 {
		t.Fatalf("expected 70 left, got %d", got)
	}
}

func TestFindBySKUs(t *testing.T) {
	client := dbtest.New(t)
	seedVariants(t, client.DB(), map[string]int64{"A": 1})
	got, err := NewRepository(client.DB()).FindBySKUs(context.Background(), []string{"A", "missing", ""})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 1 || got["A"].ID == uuid.Nil {
		t.Fatalf("unexpected variants %+v", got)
	}
}
