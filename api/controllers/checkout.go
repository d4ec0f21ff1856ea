package controllers

import (
	"net/http"
	"strings"

	"github.com/furnique/furnique-backend/api/middleware"
	"github.com/furnique/furnique-backend/api/responses"
	"github.com/furnique/furnique-backend/api/validators"
	checkoutsvc "github.com/furnique/furnique-backend/internal/checkout"
	"github.com/furnique/furnique-backend/internal/reconcile"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/logger"
)

// Checkout turns the selected cart lines into a draft order and returns the
// gateway URL the customer pays at.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), checkoutsvc.Input{
			CustomerID:  actor.ID,
			Items:       payload.Items,
			Notes:       validators.SanitizeString(payload.Notes, 500),
			Method:      enums.PaymentMethod(strings.ToUpper(strings.TrimSpace(payload.PaymentMethod))),
			SourceToken: strings.TrimSpace(payload.SourceToken),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type checkoutRequest struct {
	Items         []reconcile.RequestedItem `json:"items" validate:"required,min=1,max=50,dive"`
	Notes         string                    `json:"notes" validate:"max=500"`
	PaymentMethod string                    `json:"paymentMethod" validate:"required,payment_method"`
	SourceToken   string                    `json:"sourceToken,omitempty"`
}
