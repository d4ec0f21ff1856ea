package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/furnique/furnique-backend/pkg/enums"
)

const defaultDeliveryTTL = 24 * time.Hour

// DeliveryStore is the redis surface the guard needs.
type DeliveryStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookDeliveryKey(gateway, deliveryID string) string
}

// DeliveryGuard drops exact replays of a gateway delivery before they reach
// the database. Order and payment state guards stay authoritative.
type DeliveryGuard struct {
	store DeliveryStore
	ttl   time.Duration
}

func NewDeliveryGuard(store DeliveryStore, ttl time.Duration) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("delivery store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = defaultDeliveryTTL
	}
	return &DeliveryGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark reports whether the delivery was already seen and marks it otherwise.
func (g *DeliveryGuard) CheckAndMark(ctx context.Context, method enums.PaymentMethod, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, errors.New("delivery id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookDeliveryKey(string(method), deliveryID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set delivery key: %w", err)
	}
	return !set, nil
}

// Release forgets a delivery so the gateway retry is processed.
func (g *DeliveryGuard) Release(ctx context.Context, method enums.PaymentMethod, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Del(ctx, g.store.WebhookDeliveryKey(string(method), deliveryID))
}

// bodyDigest identifies deliveries whose provider sends no event id.
func bodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
