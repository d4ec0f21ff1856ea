package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/furnique/furnique-backend/pkg/db"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/pagination"
)

// Repository persists payments and their append-only transaction log.
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

func (r *Repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// AppendTransaction records a gateway payload. Rows are never updated.
func (r *Repository) AppendTransaction(ctx context.Context, paymentID uuid.UUID, status enums.TransactionStatus, payload json.RawMessage) error {
	row := models.PaymentTransaction{
		PaymentID:         paymentID,
		TransactionStatus: status,
		Payload:           datatypes.JSON(payload),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// FindByOrderCodeForUpdate loads and row-locks the payment for a correlation id.
func (r *Repository) FindByOrderCodeForUpdate(ctx context.Context, orderCode int64) (*models.Payment, error) {
	var payment models.Payment
	err := db.ForUpdate(r.db.WithContext(ctx)).Where("order_code = ?", orderCode).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodePaymentNotFound, "no payment for order code").
			WithDetails(map[string]any{"orderCode": orderCode})
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodePaymentNotFound, "payment not found")
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// OrderCodeExists reports whether a payment already uses orderCode.
func (r *Repository) OrderCodeExists(ctx context.Context, orderCode int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Payment{}).Where("order_code = ?", orderCode).Count(&count).Error
	return count > 0, err
}

// Transition moves the payment from one status to another and stores the
// latest gateway payload. It reports false when the payment was not in from.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.TransactionStatus, payload json.RawMessage) (bool, error) {
	updates := map[string]any{"transaction_status": to}
	if len(payload) > 0 {
		updates["transaction"] = datatypes.JSON(payload)
	}
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND transaction_status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Transactions returns the payment's gateway payloads oldest first.
func (r *Repository) Transactions(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ListSettled pages through a customer's captured and refunded payments, newest first.
// Payments with a refund in flight are included.
func (r *Repository) ListSettled(ctx context.Context, customerID uuid.UUID, params pagination.Params) (pagination.Page[models.Payment], error) {
	q := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("customer_id = ?", customerID).
		Where("transaction_status IN ?", []enums.TransactionStatus{enums.TransactionStatusCaptured, enums.TransactionStatusRefunding, enums.TransactionStatusRefunded})
	q, err := pagination.Apply(q, "payments", params)
	if err != nil {
		return pagination.Page[models.Payment]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	var rows []models.Payment
	if err := q.Find(&rows).Error; err != nil {
		return pagination.Page[models.Payment]{}, err
	}
	return pagination.Build(rows, params.Limit, func(p models.Payment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	}), nil
}

// StaleDrafts lists DRAFT payments created before cutoff, oldest first.
func (r *Repository) StaleDrafts(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("transaction_status = ? AND created_at < ?", enums.TransactionStatusDraft, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
