package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/furnique/furnique-backend/api/middleware"
	"github.com/furnique/furnique-backend/api/responses"
	"github.com/furnique/furnique-backend/api/validators"
	internalorders "github.com/furnique/furnique-backend/internal/orders"
	"github.com/furnique/furnique-backend/pkg/auth"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/pagination"
)

// List returns the caller's orders. Staff see every order and may filter by
// customerId.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
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
		filter, err := buildFilter(r, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), actor, filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := pagination.Page[orderSummary]{NextCursor: page.NextCursor, Items: make([]orderSummary, 0, len(page.Items))}
		for _, order := range page.Items {
			out.Items = append(out.Items, newOrderSummary(order))
		}
		responses.WriteSuccess(w, out)
	}
}

func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := actorAndOrder(w, r, logg)
		if !ok {
			return
		}
		order, err := svc.Get(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderDetail(*order))
	}
}

// History returns the order's status changes, oldest first.
func History(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := actorAndOrder(w, r, logg)
		if !ok {
			return
		}
		rows, err := svc.History(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]historyEntry, 0, len(rows))
		for _, row := range rows {
			out = append(out, newHistoryEntry(row))
		}
		responses.WriteSuccess(w, out)
	}
}

// Cancel cancels an order the caller may see. Customers may only cancel
// orders that have not been confirmed.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := actorAndOrder(w, r, logg)
		if !ok {
			return
		}
		var payload cancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Cancel(r.Context(), actor, orderID, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderSummary(*order))
	}
}

type transitionFunc func(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)

// Transition wraps one staff fulfillment step.
func Transition(step transitionFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := actorAndOrder(w, r, logg)
		if !ok {
			return
		}
		order, err := step(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderSummary(*order))
	}
}

func actorAndOrder(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (auth.Actor, uuid.UUID, bool) {
	actor, err := middleware.RequireActor(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return auth.Actor{}, uuid.Nil, false
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return auth.Actor{}, uuid.Nil, false
	}
	return actor, orderID, true
}

func buildFilter(r *http.Request, actor auth.Actor) (internalorders.ListFilter, error) {
	var filter internalorders.ListFilter
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(strings.ToUpper(raw))
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").WithDetails(map[string]any{"field": "status"})
		}
		filter.OrderStatus = &status
	}
	if raw := strings.TrimSpace(query.Get("customerId")); raw != "" && actor.Role.IsStaff() {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customerId filter").WithDetails(map[string]any{"field": "customerId"})
		}
		filter.CustomerID = &id
	}
	return filter, nil
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}
