package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/internal/inventory"
	"github.com/furnique/furnique-backend/pkg/db"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
)

// Repository exposes persistence operations for carts.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// LoadSnapshot returns the customer's active cart with product and variant data
// populated. Lines whose sku no longer belongs to the product are left out of
// Items and reported in Stale; they stay stored.
func (r *Repository) LoadSnapshot(ctx context.Context, customerID uuid.UUID) (*Snapshot, error) {
	return r.loadSnapshot(ctx, customerID, false)
}

// LockSnapshot is LoadSnapshot that also locks the cart row until the
// transaction ends. Every cart write loads through it.
func (r *Repository) LockSnapshot(ctx context.Context, customerID uuid.UUID) (*Snapshot, error) {
	return r.loadSnapshot(ctx, customerID, true)
}

func (r *Repository) loadSnapshot(ctx context.Context, customerID uuid.UUID, lock bool) (*Snapshot, error) {
	snap := &Snapshot{CustomerID: customerID}

	q := r.db.WithContext(ctx)
	if lock {
		q = db.ForUpdate(q)
	}
	var cart models.Cart
	err := q.Where("customer_id = ? AND status = ?", customerID, enums.CartStatusActive).
		First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return snap, nil
	}
	if err != nil {
		return nil, err
	}
	snap.CartID = cart.ID

	var rows []models.CartItem
	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cart.ID).
		Order("position ASC").
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return snap, nil
	}

	skus := make([]string, 0, len(rows))
	productIDs := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		skus = append(skus, row.SKU)
		productIDs = append(productIDs, row.ProductID)
	}

	bySKU, err := inventory.NewRepository(r.db).FindBySKUs(ctx, skus)
	if err != nil {
		return nil, err
	}

	var products []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", productIDs).Find(&products).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for _, row := range rows {
		variant, ok := bySKU[row.SKU]
		product, found := byID[row.ProductID]
		if !ok || !found || variant.ProductID != row.ProductID {
			snap.Stale = append(snap.Stale, row)
			continue
		}
		snap.Items = append(snap.Items, Item{
			ProductID: row.ProductID,
			SKU:       row.SKU,
			Quantity:  row.Quantity,
			Position:  row.Position,
			Product:   product,
			Variant:   variant,
		})
	}
	snap.TotalAmount = Total(snap.Items)
	return snap, nil
}

// EnsureCart returns the customer's cart, creating or reactivating it.
func (r *Repository) EnsureCart(ctx context.Context, customerID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cart = models.Cart{CustomerID: customerID, Status: enums.CartStatusActive}
		if err := r.db.WithContext(ctx).Create(&cart).Error; err != nil {
			return nil, err
		}
		return &cart, nil
	}
	if err != nil {
		return nil, err
	}
	if cart.Status != enums.CartStatusActive {
		if err := r.db.WithContext(ctx).Model(&cart).Update("status", enums.CartStatusActive).Error; err != nil {
			return nil, err
		}
		cart.Status = enums.CartStatusActive
	}
	return &cart, nil
}

// SaveItems writes items, in order, as the cart lines derived from before.
// Lines in before but not in items are deleted; lines before never saw, such
// as stale lines or lines written since it was loaded, are left alone.
func (r *Repository) SaveItems(ctx context.Context, before *Snapshot, items []Item) error {
	cartID := before.CartID
	wanted := make(map[lineKey]bool, len(items))
	for _, item := range items {
		wanted[keyOf(item.ProductID, item.SKU)] = true
	}
	for _, old := range before.Items {
		if wanted[keyOf(old.ProductID, old.SKU)] {
			continue
		}
		if err := r.db.WithContext(ctx).
			Where("cart_id = ? AND product_id = ? AND sku = ?", cartID, old.ProductID, old.SKU).
			Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
	}
	for i, item := range items {
		res := r.db.WithContext(ctx).Model(&models.CartItem{}).
			Where("cart_id = ? AND product_id = ? AND sku = ?", cartID, item.ProductID, item.SKU).
			Updates(map[string]any{"quantity": item.Quantity, "position": i})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			continue
		}
		row := models.CartItem{
			CartID:    cartID,
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			Position:  i,
		}
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
	}
	return r.db.WithContext(ctx).Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("total_amount", Total(items)).Error
}

// DeleteItems removes every line of the cart, stale ones included.
func (r *Repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error
}

type lineKey struct {
	productID uuid.UUID
	sku       string
}

func keyOf(productID uuid.UUID, sku string) lineKey {
	return lineKey{productID: productID, sku: sku}
}

// Deactivate soft-closes the cart. Carts are never deleted.
func (r *Repository) Deactivate(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Cart{}).
		Where("id = ?", cartID).
		Updates(map[string]any{"status": enums.CartStatusInactive, "total_amount": 0}).Error
}
