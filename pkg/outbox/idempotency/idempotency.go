// Package idempotency drops broker redeliveries: a consumer claims a message
// id before handling it and releases the claim when handling fails.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/furnique/furnique-backend/pkg/redis"
)

type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewGuard keeps claims for ttl; zero keeps them until evicted.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency: store is required")
	}
	if ttl < 0 {
		return nil, errors.New("idempotency: negative ttl")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Claim reports whether consumer sees messageID for the first time.
func (g *Guard) Claim(ctx context.Context, consumer, messageID string) (bool, error) {
	key, err := g.key(consumer, messageID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Release forgets a claim so the redelivered message is handled again.
func (g *Guard) Release(ctx context.Context, consumer, messageID string) error {
	key, err := g.key(consumer, messageID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(consumer, messageID string) (string, error) {
	consumer, messageID = strings.TrimSpace(consumer), strings.TrimSpace(messageID)
	if consumer == "" || messageID == "" {
		return "", errors.New("idempotency: consumer and message id are required")
	}
	return g.store.ProcessedKey(consumer, messageID), nil
}
