package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/furnique/furnique-backend/internal/gateway"
	"github.com/furnique/furnique-backend/pkg/enums"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
)

type stubDispatcher struct {
	ack    gateway.Ack
	err    error
	method enums.PaymentMethod
	body   string
	header string
}

func (s *stubDispatcher) Dispatch(_ context.Context, method enums.PaymentMethod, payload gateway.WebhookPayload) (gateway.Ack, error) {
	s.method = method
	s.body = string(payload.Body)
	s.header = payload.Header.Get("X-Signature")
	return s.ack, s.err
}

func serve(d Dispatcher, slug, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/api/v1/webhooks/{gateway}", GatewayWebhook(d, nil))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/"+slug, strings.NewReader(body))
	req.Header.Set("X-Signature", "sig")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestGatewayWebhookWritesProviderAck(t *testing.T) {
	d := &stubDispatcher{ack: gateway.Ack{Status: http.StatusOK, Body: []byte(`{"success":true}`)}}
	resp := serve(d, "payos", `{"code":"00"}`)

	if resp.Code != http.StatusOK || resp.Body.String() != `{"success":true}` {
		t.Fatalf("unexpected ack %d %s", resp.Code, resp.Body.String())
	}
	if d.method != enums.PaymentMethodPayOS {
		t.Fatalf("resolved %s", d.method)
	}
	if d.body != `{"code":"00"}` || d.header != "sig" {
		t.Fatalf("payload not forwarded: %q %q", d.body, d.header)
	}
}

func TestGatewayWebhookEmptyAck(t *testing.T) {
	resp := serve(&stubDispatcher{ack: gateway.Ack{Status: http.StatusNoContent}}, "momo", `{}`)
	if resp.Code != http.StatusNoContent || resp.Body.Len() != 0 {
		t.Fatalf("unexpected ack %d %q", resp.Code, resp.Body.String())
	}
}

func TestGatewayWebhookUnknownGateway(t *testing.T) {
	d := &stubDispatcher{}
	resp := serve(d, "paypal", `{}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
	if d.method != "" {
		t.Fatalf("dispatcher should not run")
	}
}

func TestGatewayWebhookRetryableFailure(t *testing.T) {
	resp := serve(&stubDispatcher{err: pkgerrors.New(pkgerrors.CodeDependency, "database down")}, "stripe", `{}`)
	if resp.Code < 500 {
		t.Fatalf("retryable failures must be 5xx, got %d", resp.Code)
	}
}
