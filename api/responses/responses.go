// Package responses renders the JSON envelopes shared by every endpoint and
// the raw acknowledgements gateways expect from webhook callbacks.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/furnique/furnique-backend/internal/gateway"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/logger"
)

// SuccessEnvelope wraps every 2xx JSON body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope is {"error":{"code","message","details"}}.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// codes whose own message is safe to show callers
var publicMessages = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:         true,
	pkgerrors.CodeForbidden:          true,
	pkgerrors.CodeUnauthorized:       true,
	pkgerrors.CodeNotFound:           true,
	pkgerrors.CodeConflict:           true,
	pkgerrors.CodeIdempotency:        true,
	pkgerrors.CodeRateLimit:          true,
	pkgerrors.CodeCartEmpty:          true,
	pkgerrors.CodeOrderItemsInvalid:  true,
	pkgerrors.CodeOrderNotFound:      true,
	pkgerrors.CodeOrderStatusInvalid: true,
	pkgerrors.CodePaymentNotFound:    true,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteError renders err with the status of its code. Client errors are
// logged at warn and server errors at error, both with the full report.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("handler returned a nil error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := ErrorBody{Code: string(typed.Code()), Message: meta.PublicMessage}
	if publicMessages[typed.Code()] && typed.Message() != "" {
		body.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if logg != nil {
		lctx := logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(lctx, "request.error", err)
		} else {
			logg.Warn(lctx, "request.rejected")
		}
	}

	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: body})
}

// WriteAck answers a gateway callback with exactly the status and body the
// provider expects. An empty body writes no Content-Type.
func WriteAck(w http.ResponseWriter, ack gateway.Ack) {
	if len(ack.Body) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(ack.Status)
	if len(ack.Body) > 0 {
		_, _ = w.Write(ack.Body)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// headers are already sent; nothing useful can be done with the error
	_ = json.NewEncoder(w).Encode(payload)
}
