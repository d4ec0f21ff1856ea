package inventory

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/pkg/db/models"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
)

// Repository applies stock batches and reads variants.
type Repository struct {
	db *gorm.DB
}

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

// Apply issues one conditional update per sku:
//
//	UPDATE variants SET quantity = quantity + delta WHERE sku = ? [AND quantity >= -delta]
//
// A decrement that matches no row means the stock is gone (or the sku is) and
// fails the batch with ORDER_ITEMS_INVALID. The caller's transaction rolls
// back any updates already issued.
func (r *Repository) Apply(ctx context.Context, batch *Batch) error {
	for _, sku := range batch.SKUs() {
		delta := batch.Delta(sku)
		q := r.db.WithContext(ctx).Model(&models.Variant{}).Where("sku = ?", sku)
		if delta < 0 {
			q = q.Where("quantity >= ?", -delta)
		}
		res := q.Update("quantity", gorm.Expr("quantity + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			reason := "insufficient_stock"
			if delta > 0 {
				reason = "unknown_sku"
			}
			return pkgerrors.New(pkgerrors.CodeOrderItemsInvalid, "stock changed for "+sku).
				WithDetails(map[string]any{"sku": sku, "delta": delta, "reason": reason})
		}
	}
	return nil
}

// FindBySKUs loads variants keyed by sku. Unknown skus are absent from the map.
func (r *Repository) FindBySKUs(ctx context.Context, skus []string) (map[string]models.Variant, error) {
	out := make(map[string]models.Variant, len(skus))
	clean := make([]string, 0, len(skus))
	for _, sku := range skus {
		if trimmed := strings.TrimSpace(sku); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	if len(clean) == 0 {
		return out, nil
	}
	var rows []models.Variant
	if err := r.db.WithContext(ctx).Where("sku IN ?", clean).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.SKU] = row
	}
	return out, nil
}
