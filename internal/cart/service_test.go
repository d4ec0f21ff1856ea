package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/pkg/db"
	"github.com/furnique/furnique-backend/pkg/db/dbtest"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
)

type fixture struct {
	client   *db.Client
	svc      Service
	customer uuid.UUID
	product  models.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.New(t)
	conn := client.DB()

	customer := models.Customer{Email: "an@example.vn", Name: "An"}
	require.NoError(t, conn.Create(&customer).Error)
	product := models.Product{Name: "Walnut desk", Active: true}
	require.NoError(t, conn.Create(&product).Error)
	for sku, qty := range map[string]int64{"DESK-S": 3, "DESK-L": 1} {
		require.NoError(t, conn.Create(&models.Variant{ProductID: product.ID, SKU: sku, Price: 2_000_000, Quantity: qty}).Error)
	}

	svc, err := NewService(NewRepository(conn), client)
	require.NoError(t, err)
	return &fixture{client: client, svc: svc, customer: customer.ID, product: product}
}

func TestGetWithoutCartIsEmpty(t *testing.T) {
	f := newFixture(t)
	snap, err := f.svc.Get(context.Background(), f.customer)
	require.NoError(t, err)
	require.True(t, snap.Empty())
	require.Equal(t, uuid.Nil, snap.CartID)
}

func TestAddItemMergesLinesAndTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, f.customer, AddItemInput{ProductID: f.product.ID, SKU: "DESK-S", Quantity: 1})
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, f.customer, AddItemInput{ProductID: f.product.ID, SKU: "DESK-L", Quantity: 1})
	require.NoError(t, err)
	snap, err := f.svc.AddItem(ctx, f.customer, AddItemInput{ProductID: f.product.ID, SKU: "DESK-S", Quantity: 2})
	require.NoError(t, err)

	require.Len(t, snap.Items, 2)
	require.Equal(t, "DESK-S", snap.Items[0].SKU)
	require.EqualValues(t, 3, snap.Items[0].Quantity)
	require.EqualValues(t, 8_000_000, snap.TotalAmount)

	var stored models.Cart
	require.NoError(t, f.client.DB().First(&stored, "id = ?", snap.CartID).Error)
	require.EqualValues(t, 8_000_000, stored.TotalAmount)
}

func TestAddItemRejectsOverStock(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddItem(context.Background(), f.customer, AddItemInput{ProductID: f.product.ID, SKU: "DESK-L", Quantity: 2})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.client.DB().Model(&models.Product{}).Where("id = ?", f.product.ID).Update("active", false).Error)

	_, err := f.svc.AddItem(context.Background(), f.customer, AddItemInput{ProductID: f.product.ID, SKU: "DESK-S", Quantity: 1})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestAddItemValidatesInput(t *testing.T) {
	f := newFixture(t)
	cases := []AddItemInput{
		{ProductID: f.product.ID, SKU: "DESK-S", Quantity: 0},
		{ProductID: f.product.ID, SKU: "  ", Quantity: 1},
		{ProductID: uuid.Nil, SKU: "DESK-S", Quantity: 1},
	}
	for _, in := range cases {
		_, err := f.svc.AddItem(context.Background(), f.customer, in)
		require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "input %+v got %v", in, err)
	}
}

func TestRemoveItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.AddItem(ctx, f.customer, AddItemInput{ProductID: f.product.ID, SKU: "DESK-S", Quantity: 1})
	require.NoError(t, err)

	snap, err := f.svc.RemoveItem(ctx, f.customer, f.product.ID, "DESK-S")
	require.NoError(t, err)
	require.True(t, snap.Empty())
	require.Zero(t, snap.TotalAmount)

	_, err = f.svc.RemoveItem(ctx, f.customer, f.product.ID, "DESK-S")
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestClearDeactivatesAndReaddReactivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.AddItem(ctx, f.customer, AddItemInput{ProductID: f.product.ID, SKU: "DESK-S", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, f.svc.Clear(ctx, f.customer))

	var stored models.Cart
	require.NoError(t, f.client.DB().First(&stored, "id = ?", first.CartID).Error)
	require.Equal(t, enums.CartStatusInactive, stored.Status)

	snap, err := f.svc.Get(ctx, f.customer)
	require.NoError(t, err)
	require.True(t, snap.Empty())

	again, err := f.svc.AddItem(ctx, f.customer, AddItemInput{ProductID: f.product.ID, SKU: "DESK-S", Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, first.CartID, again.CartID)
	require.Len(t, again.Items, 1)
}

func TestStaleLinesAreReportedAndKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.AddItem(ctx, f.customer, AddItemInput{ProductID: f.product.ID, SKU: "DESK-L", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, f.client.DB().Session(&gorm.Session{AllowGlobalUpdate: true}).
		Where("sku = ?", "DESK-L").Delete(&models.Variant{}).Error)

	snap, err := NewRepository(f.client.DB()).LoadSnapshot(ctx, f.customer)
	require.NoError(t, err)
	require.True(t, snap.Empty())
	require.Len(t, snap.Stale, 1)
	require.Equal(t, "DESK-L", snap.Stale[0].SKU)

	// Writing the cart again must not silently discard the unresolved line.
	snap, err = f.svc.AddItem(ctx, f.customer, AddItemInput{ProductID: f.product.ID, SKU: "DESK-S", Quantity: 1})
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	require.Len(t, snap.Stale, 1)
	_, err = f.svc.RemoveItem(ctx, f.customer, f.product.ID, "DESK-S")
	require.NoError(t, err)
	require.Equal(t, []string{"DESK-L"}, f.storedSKUs(t))

	require.NoError(t, f.svc.Clear(ctx, f.customer))
	require.Empty(t, f.storedSKUs(t))
}

func TestSaveItemsKeepsLinesAddedSinceLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := NewRepository(f.client.DB())
	_, err := f.svc.AddItem(ctx, f.customer, AddItemInput{ProductID: f.product.ID, SKU: "DESK-S", Quantity: 2})
	require.NoError(t, err)

	// A capture loads the cart, then the customer adds a line before the
	// capture writes back what is left.
	captureView, err := repo.LoadSnapshot(ctx, f.customer)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, f.customer, AddItemInput{ProductID: f.product.ID, SKU: "DESK-L", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, repo.SaveItems(ctx, captureView, nil))

	snap, err := f.svc.Get(ctx, f.customer)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	require.Equal(t, "DESK-L", snap.Items[0].SKU)
	require.Equal(t, []string{"DESK-L"}, f.storedSKUs(t))
}

func (f *fixture) storedSKUs(t *testing.T) []string {
	t.Helper()
	var skus []string
	require.NoError(t, f.client.DB().Model(&models.CartItem{}).Order("sku ASC").Pluck("sku", &skus).Error)
	return skus
}
