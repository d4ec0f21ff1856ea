package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	"github.com/furnique/furnique-backend/pkg/logger"
)

const defaultDraftBatch = 100

type draftReader interface {
	StaleDrafts(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
}

type draftCanceler interface {
	ReconcileDraft(ctx context.Context, payment *models.Payment) (bool, error)
	CancelDraft(ctx context.Context, payment *models.Payment, cancel func(tx *gorm.DB) error) (bool, error)
}

type orderExpirer interface {
	ExpireDraft(ctx context.Context, tx *gorm.DB, orderCode int64) (bool, error)
}

// DraftExpiryJobParams configure the draft checkout expiry job.
type DraftExpiryJobParams struct {
	Logger    *logger.Logger
	Drafts    draftReader
	Payments  draftCanceler
	Orders    orderExpirer
	TTL       time.Duration
	BatchSize int
}

// NewDraftExpiryJob builds the job that cancels checkouts nobody paid for.
func NewDraftExpiryJob(params DraftExpiryJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Drafts == nil:
		return nil, fmt.Errorf("draft reader required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payment orchestrator required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order service required")
	case params.TTL <= 0:
		return nil, fmt.Errorf("draft ttl must be positive")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultDraftBatch
	}
	return &draftExpiryJob{
		logg:     params.Logger,
		drafts:   params.Drafts,
		payments: params.Payments,
		orders:   params.Orders,
		ttl:      params.TTL,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type draftExpiryJob struct {
	logg     *logger.Logger
	drafts   draftReader
	payments draftCanceler
	orders   orderExpirer
	ttl      time.Duration
	batch    int
	now      func() time.Time
}

func (j *draftExpiryJob) Name() string { return "draft-expiry" }

func (j *draftExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	drafts, err := j.drafts.StaleDrafts(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query stale drafts: %w", err)
	}

	var (
		errs    error
		expired int
		settled int
	)
	for i := range drafts {
		payment := &drafts[i]
		// A paid checkout whose callback never landed is settled, not expired.
		paid, err := j.payments.ReconcileDraft(ctx, payment)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile draft %d: %w", payment.OrderCode, err))
			continue
		}
		if paid {
			settled++
			continue
		}
		var cancel func(tx *gorm.DB) error
		if payment.PaymentType == enums.PaymentTypeOrder {
			code := payment.OrderCode
			cancel = func(tx *gorm.DB) error {
				_, err := j.orders.ExpireDraft(ctx, tx, code)
				return err
			}
		}
		moved, err := j.payments.CancelDraft(ctx, payment, cancel)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire draft %d: %w", payment.OrderCode, err))
			continue
		}
		if moved {
			expired++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"scanned": len(drafts),
		"expired": expired,
		"settled": settled,
	})
	j.logg.Info(logCtx, "draft expiry loop complete")
	return errs
}
