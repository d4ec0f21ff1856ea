package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/furnique/furnique-backend/api/responses"
	"github.com/furnique/furnique-backend/internal/gateway"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

// Dispatcher verifies, deduplicates and applies one gateway callback.
type Dispatcher interface {
	Dispatch(ctx context.Context, method enums.PaymentMethod, payload gateway.WebhookPayload) (gateway.Ack, error)
}

// GatewayWebhook receives callbacks at /webhooks/{gateway}. The response is
// whatever the gateway expects as an acknowledgement. Errors that should be
// retried come back as 5xx.
func GatewayWebhook(dispatcher Dispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if dispatcher == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook dispatcher unavailable"))
			return
		}

		method, err := enums.PaymentMethodFromSlug(chi.URLParam(r, "gateway"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown payment gateway"))
			return
		}
		if logg != nil {
			ctx = logg.WithGateway(ctx, string(method))
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		ack, err := dispatcher.Dispatch(ctx, method, gateway.WebhookPayload{Body: body, Header: r.Header.Clone()})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteAck(w, ack)
	}
}
