package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/furnique/furnique-backend/api/middleware"
	"github.com/furnique/furnique-backend/api/responses"
	"github.com/furnique/furnique-backend/api/validators"
	"github.com/furnique/furnique-backend/internal/credits"
	"github.com/furnique/furnique-backend/internal/gateway"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/logger"
)

// CreditsService is the slice of the credits service the API uses.
type CreditsService interface {
	Purchase(ctx context.Context, in credits.PurchaseInput) (*gateway.CheckoutSession, error)
	Balance(ctx context.Context, customerID uuid.UUID) (int64, error)
}

func CreditPlans() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, credits.Plans())
	}
}

func CreditBalance(svc CreditsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balance, err := svc.Balance(r.Context(), actor.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"credits": balance})
	}
}

// CreditPurchase opens a gateway checkout for a credit plan.
func CreditPurchase(svc CreditsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload creditPurchaseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Purchase(r.Context(), credits.PurchaseInput{
			CustomerID:  actor.ID,
			Plan:        enums.CreditPlan(strings.ToUpper(strings.TrimSpace(payload.Plan))),
			Method:      enums.PaymentMethod(strings.ToUpper(strings.TrimSpace(payload.PaymentMethod))),
			SourceToken: strings.TrimSpace(payload.SourceToken),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

type creditPurchaseRequest struct {
	Plan          string `json:"plan" validate:"required,credit_plan"`
	PaymentMethod string `json:"paymentMethod" validate:"required,payment_method"`
	SourceToken   string `json:"sourceToken,omitempty"`
}
