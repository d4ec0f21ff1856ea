package payments

import (
	"context"
	"testing"

	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
)

func TestNewOrderCodeRange(t *testing.T) {
	seen := map[int64]bool{}
	for i := 0; i < 200; i++ {
		code, err := NewOrderCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if code < MinOrderCode || code > MaxOrderCode {
			t.Fatalf("code %d out of range", code)
		}
		seen[code] = true
	}
	if len(seen) < 199 {
		t.Fatalf("codes should practically never repeat, got %d distinct", len(seen))
	}
}

func TestWithOrderCodeRetriesCollisions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.orch.CreatePayment(ctx, request(MinOrderCode), nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	codes := []int64{MinOrderCode, MinOrderCode + 1, MinOrderCode + 2}
	h.orch.newCode = func() (int64, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}
	var used []int64
	err := h.orch.WithOrderCode(ctx, 3, func(code int64) error {
		used = append(used, code)
		if code == MinOrderCode+1 {
			// lost a race with a concurrent checkout
			return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrOrderCodeTaken, "order code already in use")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with order code: %v", err)
	}
	if len(used) != 2 || used[1] != MinOrderCode+2 {
		t.Fatalf("expected the taken code to be skipped and the collision retried, used %v", used)
	}
}

func TestWithOrderCodeGivesUp(t *testing.T) {
	h := newHarness(t)
	h.orch.newCode = func() (int64, error) { return MinOrderCode + 9, nil }
	calls := 0
	err := h.orch.WithOrderCode(context.Background(), 2, func(int64) error {
		calls++
		return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrOrderCodeTaken, "order code already in use")
	})
	if calls != 2 || !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected two attempts and a conflict, got %d calls err=%v", calls, err)
	}
}
