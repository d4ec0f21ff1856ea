package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/pkg/db/models"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the customer-facing cart surface.
type Service interface {
	Get(ctx context.Context, customerID uuid.UUID) (*Snapshot, error)
	AddItem(ctx context.Context, customerID uuid.UUID, input AddItemInput) (*Snapshot, error)
	RemoveItem(ctx context.Context, customerID, productID uuid.UUID, sku string) (*Snapshot, error)
	Clear(ctx context.Context, customerID uuid.UUID) error
}

// AddItemInput adds Quantity units of a variant, merging with an existing line.
type AddItemInput struct {
	ProductID uuid.UUID
	SKU       string
	Quantity  int64
}

type service struct {
	repo *Repository
	tx   txRunner
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo *Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) Get(ctx context.Context, customerID uuid.UUID) (*Snapshot, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	snap, err := s.repo.LoadSnapshot(ctx, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return snap, nil
}

func (s *service) AddItem(ctx context.Context, customerID uuid.UUID, input AddItemInput) (*Snapshot, error) {
	input.SKU = strings.TrimSpace(input.SKU)
	switch {
	case customerID == uuid.Nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	case input.ProductID == uuid.Nil || input.SKU == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id and sku are required")
	case input.Quantity <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var out *Snapshot
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		variant, err := loadSellableVariant(ctx, tx, input.ProductID, input.SKU)
		if err != nil {
			return err
		}
		if _, err := repo.EnsureCart(ctx, customerID); err != nil {
			return err
		}
		snap, err := repo.LockSnapshot(ctx, customerID)
		if err != nil {
			return err
		}

		items := append([]Item(nil), snap.Items...)
		merged := false
		for i := range items {
			if items[i].ProductID == input.ProductID && items[i].SKU == input.SKU {
				items[i].Quantity += input.Quantity
				if items[i].Quantity > variant.Quantity {
					return insufficientStock(input.SKU, variant.Quantity)
				}
				merged = true
				break
			}
		}
		if !merged {
			if input.Quantity > variant.Quantity {
				return insufficientStock(input.SKU, variant.Quantity)
			}
			items = append(items, Item{ProductID: input.ProductID, SKU: input.SKU, Quantity: input.Quantity, Variant: *variant})
		}
		if err := repo.SaveItems(ctx, snap, items); err != nil {
			return err
		}
		out, err = repo.LoadSnapshot(ctx, customerID)
		return err
	})
	if err != nil {
		return nil, wrapCartError(err, "add cart item")
	}
	return out, nil
}

func (s *service) RemoveItem(ctx context.Context, customerID, productID uuid.UUID, sku string) (*Snapshot, error) {
	if customerID == uuid.Nil || productID == uuid.Nil || strings.TrimSpace(sku) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id, product id and sku are required")
	}
	var out *Snapshot
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		snap, err := repo.LockSnapshot(ctx, customerID)
		if err != nil {
			return err
		}
		if _, ok := snap.Find(productID, sku); !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		kept := make([]Item, 0, len(snap.Items))
		for _, item := range snap.Items {
			if item.ProductID == productID && item.SKU == sku {
				continue
			}
			kept = append(kept, item)
		}
		if err := repo.SaveItems(ctx, snap, kept); err != nil {
			return err
		}
		out, err = repo.LoadSnapshot(ctx, customerID)
		return err
	})
	if err != nil {
		return nil, wrapCartError(err, "remove cart item")
	}
	return out, nil
}

// Clear empties the cart and marks it inactive.
func (s *service) Clear(ctx context.Context, customerID uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		snap, err := repo.LockSnapshot(ctx, customerID)
		if err != nil {
			return err
		}
		if snap.CartID == uuid.Nil {
			return nil
		}
		if err := repo.DeleteItems(ctx, snap.CartID); err != nil {
			return err
		}
		return repo.Deactivate(ctx, snap.CartID)
	})
	if err != nil {
		return wrapCartError(err, "clear cart")
	}
	return nil
}

func loadSellableVariant(ctx context.Context, tx *gorm.DB, productID uuid.UUID, sku string) (*models.Variant, error) {
	var variant models.Variant
	err := tx.WithContext(ctx).
		Joins("JOIN products ON products.id = variants.product_id AND products.active = ?", true).
		Where("variants.sku = ? AND variants.product_id = ?", sku, productID).
		First(&variant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found")
	}
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

func insufficientStock(sku string, available int64) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "requested quantity exceeds stock").
		WithDetails(map[string]any{"sku": sku, "available": available})
}

func wrapCartError(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
