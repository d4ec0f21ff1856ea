package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/furnique/furnique-backend/api/responses"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/logger"
	pkgredis "github.com/furnique/furnique-backend/pkg/redis"
)

const (
	// IdempotencyHeader carries the client's retry key.
	IdempotencyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from the idempotency store.
	ReplayedHeader = "Idempotency-Replayed"

	shortReplayTTL   = 24 * time.Hour
	paymentReplayTTL = 7 * 24 * time.Hour

	// a crashed request holds its key at most this long
	claimTTL = 2 * time.Minute

	maxIdempotencyKeyLen = 255
)

// idempotentRoutes maps "METHOD pattern" to how long a response is replayed.
// Routes that move money keep their responses for a week.
var idempotentRoutes = map[string]time.Duration{
	"POST /api/v1/cart/items":                             shortReplayTTL,
	"POST /api/v1/staff/orders/{orderId}/confirm":         shortReplayTTL,
	"POST /api/v1/staff/orders/{orderId}/assign-delivery": shortReplayTTL,
	"POST /api/v1/staff/orders/{orderId}/deliver":         shortReplayTTL,
	"POST /api/v1/staff/orders/{orderId}/complete":        shortReplayTTL,
	"POST /api/v1/staff/orders/{orderId}/cancel":          paymentReplayTTL,
	"POST /api/v1/checkout":                               paymentReplayTTL,
	"POST /api/v1/credits/purchase":                       paymentReplayTTL,
	"POST /api/v1/orders/{orderId}/cancel":                paymentReplayTTL,
	"POST /api/v1/staff/payments/{paymentId}/refund":      paymentReplayTTL,
}

// ResponseStore persists responses keyed by Idempotency-Key.
type ResponseStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	IdempotencyKey(scope, id string) string
}

// savedResponse is the value kept under an idempotency key. A claim without
// a status is a request still running.
type savedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (s savedResponse) done() bool { return s.Status != 0 }

// Idempotency claims the key before the handler runs so concurrent retries
// see a conflict instead of a second execution. Responses below 500 are
// replayed for the route's TTL; server errors release the key.
// It must be mounted where chi has resolved the full route pattern.
func Idempotency(store ResponseStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ttl, ok := idempotentRoutes[r.Method+" "+routePattern(r)]
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			switch {
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintBody(body)
			key := store.IdempotencyKey(requestScope(r), clientKey)

			claim, _ := json.Marshal(savedResponse{Fingerprint: fingerprint})
			claimed, err := store.SetNX(ctx, key, string(claim), claimTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(w, r, store, key, fingerprint, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// the client may be gone; the outcome still has to be recorded
			saveCtx := context.WithoutCancel(ctx)
			if capture.code() >= http.StatusInternalServerError {
				if err := store.Del(saveCtx, key); err != nil && logg != nil {
					logg.Error(saveCtx, "release idempotency key", err)
				}
				return
			}
			saved, _ := json.Marshal(savedResponse{
				Fingerprint: fingerprint,
				Status:      capture.code(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err := store.Set(saveCtx, key, string(saved), ttl); err != nil && logg != nil {
				logg.Error(saveCtx, "persist idempotency record", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, store ResponseStore, key, fingerprint string, logg *logger.Logger) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	if err != nil && !pkgredis.IsNil(err) {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}

	var saved savedResponse
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &saved); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
			return
		}
	}
	switch {
	case raw != "" && saved.Fingerprint != fingerprint:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case !saved.done():
		// released or expired between SetNX and Get counts as in flight too
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
	default:
		if saved.ContentType != "" {
			w.Header().Set("Content-Type", saved.ContentType)
		}
		w.Header().Set(ReplayedHeader, "true")
		w.WriteHeader(saved.Status)
		_, _ = w.Write(saved.Body)
	}
}

// requestScope keeps keys from colliding across actors and resources.
func requestScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) code() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
