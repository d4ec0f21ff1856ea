package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	claimed map[string]time.Duration
	err     error
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.claimed[key]; ok {
		return false, nil
	}
	f.claimed[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.claimed, k)
	}
	return nil
}

func (f *fakeStore) ProcessedKey(consumer, id string) string {
	return "fq:processed:" + consumer + ":" + id
}

func TestClaimOncePerConsumer(t *testing.T) {
	store := &fakeStore{claimed: map[string]time.Duration{}}
	guard, err := NewGuard(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	ctx := context.Background()

	if first, _ := guard.Claim(ctx, "customer-notifications", "m-1"); !first {
		t.Fatal("first delivery should be claimed")
	}
	if first, _ := guard.Claim(ctx, "customer-notifications", "m-1"); first {
		t.Fatal("redelivery should be dropped")
	}
	if first, _ := guard.Claim(ctx, "audit", "m-1"); !first {
		t.Fatal("claims are per consumer")
	}
	if ttl := store.claimed["fq:processed:customer-notifications:m-1"]; ttl != 24*time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	if err := guard.Release(ctx, "customer-notifications", "m-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if first, _ := guard.Claim(ctx, "customer-notifications", "m-1"); !first {
		t.Fatal("released message should be claimable again")
	}
}

func TestClaimErrors(t *testing.T) {
	boom := errors.New("redis down")
	guard, _ := NewGuard(&fakeStore{err: boom}, time.Hour)
	if _, err := guard.Claim(context.Background(), "c", "m"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if _, err := guard.Claim(context.Background(), "c", " "); err == nil {
		t.Fatal("blank message id must be rejected")
	}
	if _, err := NewGuard(nil, time.Hour); err == nil {
		t.Fatal("nil store must be rejected")
	}
	if _, err := NewGuard(&fakeStore{}, -time.Second); err == nil {
		t.Fatal("negative ttl must be rejected")
	}
}
