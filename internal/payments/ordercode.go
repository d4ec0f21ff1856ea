package payments

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"

	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
)

const (
	// MinOrderCode and MaxOrderCode bound order codes: 16 digits, and small
	// enough to survive a round trip through a JSON number.
	MinOrderCode int64 = 1_000_000_000_000_000
	MaxOrderCode int64 = 1<<53 - 1

	defaultOrderCodeAttempts = 3
)

var orderCodeSpan = big.NewInt(MaxOrderCode - MinOrderCode + 1)

// NewOrderCode draws a uniformly random order code.
func NewOrderCode() (int64, error) {
	n, err := rand.Int(rand.Reader, orderCodeSpan)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order code")
	}
	return MinOrderCode + n.Int64(), nil
}

// WithOrderCode calls fn with fresh order codes until it succeeds or fails
// with anything but an order code collision. Codes already in use are skipped
// before fn runs; the unique index catches the rest.
func (o *Orchestrator) WithOrderCode(ctx context.Context, attempts int, fn func(orderCode int64) error) error {
	if attempts <= 0 {
		attempts = defaultOrderCodeAttempts
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		code, err := o.newCode()
		if err != nil {
			return err
		}
		taken, err := o.repo.OrderCodeExists(ctx, code)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order code")
		}
		if taken {
			lastErr = pkgerrors.Wrap(pkgerrors.CodeConflict, ErrOrderCodeTaken, "order code already in use")
			continue
		}
		err = fn(code)
		if !errors.Is(err, ErrOrderCodeTaken) {
			return err
		}
		lastErr = err
		o.logg.Warn(o.logg.WithOrderCode(ctx, code), "order code collision, retrying")
	}
	return lastErr
}
