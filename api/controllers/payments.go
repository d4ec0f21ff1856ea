package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/furnique/furnique-backend/api/middleware"
	"github.com/furnique/furnique-backend/api/responses"
	"github.com/furnique/furnique-backend/api/validators"
	"github.com/furnique/furnique-backend/pkg/auth"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/pagination"
)

// PaymentsService is the read and refund surface of the payment orchestrator.
type PaymentsService interface {
	ListPayments(ctx context.Context, customerID uuid.UUID, params pagination.Params) (pagination.Page[models.Payment], error)
	RefundPayment(ctx context.Context, paymentID uuid.UUID, reason string, actor auth.Actor) (*models.Payment, error)
}

// PaymentList lists the caller's payments, newest first.
func PaymentList(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListPayments(r.Context(), actor.ID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := pagination.Page[paymentResponse]{NextCursor: page.NextCursor, Items: make([]paymentResponse, 0, len(page.Items))}
		for _, p := range page.Items {
			out.Items = append(out.Items, newPaymentResponse(p))
		}
		responses.WriteSuccess(w, out)
	}
}

// StaffRefundPayment refunds a captured payment at the gateway.
func StaffRefundPayment(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := svc.RefundPayment(r.Context(), paymentID, validators.SanitizeString(payload.Reason, 255), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResponse(*payment))
	}
}

type refundRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type paymentResponse struct {
	ID                uuid.UUID               `json:"id"`
	OrderCode         int64                   `json:"orderCode"`
	PaymentMethod     enums.PaymentMethod     `json:"paymentMethod"`
	PaymentType       enums.PaymentType       `json:"paymentType"`
	Amount            int64                   `json:"amount"`
	TransactionStatus enums.TransactionStatus `json:"transactionStatus"`
	CheckoutURL       string                  `json:"checkoutUrl,omitempty"`
	CreditPlan        *enums.CreditPlan       `json:"creditPlan,omitempty"`
	CreatedAt         time.Time               `json:"createdAt"`
	UpdatedAt         time.Time               `json:"updatedAt"`
}

func newPaymentResponse(p models.Payment) paymentResponse {
	return paymentResponse{
		ID:                p.ID,
		OrderCode:         p.OrderCode,
		PaymentMethod:     p.PaymentMethod,
		PaymentType:       p.PaymentType,
		Amount:            p.Amount,
		TransactionStatus: p.TransactionStatus,
		CheckoutURL:       p.CheckoutURL,
		CreditPlan:        p.CreditPlan,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
