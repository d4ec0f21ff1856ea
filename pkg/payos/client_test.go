package payos

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/furnique/furnique-backend/pkg/config"
	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
	"github.com/furnique/furnique-backend/pkg/signature"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(config.PayOSConfig{ClientID: "cid", APIKey: "key", ChecksumKey: "checksum"}, WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestCreatePaymentLinkSignsRequest(t *testing.T) {
	var received CreatePaymentLinkRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/payment-requests" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("x-client-id") != "cid" || r.Header.Get("x-api-key") != "key" {
			t.Fatalf("missing auth headers")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"code":"00","desc":"success","data":{"orderCode":1000000000000001,"amount":100,"paymentLinkId":"pl_1","checkoutUrl":"https://pay.payos.vn/web/pl_1","status":"PENDING"}}`))
	})

	out, raw, err := client.CreatePaymentLink(context.Background(), CreatePaymentLinkRequest{
		OrderCode:   1000000000000001,
		Amount:      100,
		Description: "FUR order",
		CancelURL:   "https://shop/cart",
		ReturnURL:   "https://shop/customer/orders",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out.CheckoutURL != "https://pay.payos.vn/web/pl_1" || out.PaymentLinkID != "pl_1" {
		t.Fatalf("unexpected checkout data %+v", out)
	}
	if len(raw) == 0 {
		t.Fatal("expected raw payload")
	}

	want := signature.Sign("amount=100&cancelUrl=https://shop/cart&description=FUR order&orderCode=1000000000000001&returnUrl=https://shop/customer/orders", "checksum")
	if received.Signature != want {
		t.Fatalf("expected signature %s got %s", want, received.Signature)
	}
}

func TestCreatePaymentLinkMapsRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"231","desc":"order exists"}`))
	})
	_, _, err := client.CreatePaymentLink(context.Background(), CreatePaymentLinkRequest{OrderCode: 1, Amount: 1})
	if !pkgerrors.HasCode(err, pkgerrors.CodeGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
}

func TestGetPaymentLinkMapsHTTPFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, _, err := client.GetPaymentLink(context.Background(), "42")
	if !pkgerrors.HasCode(err, pkgerrors.CodeGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
}

func TestGetPaymentLink(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/payment-requests/42" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"code":"00","desc":"success","data":{"id":"pl_1","orderCode":42,"amount":100,"amountPaid":100,"status":"PAID"}}`))
	})
	link, _, err := client.GetPaymentLink(context.Background(), "42")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if link.Status != "PAID" || link.AmountPaid != 100 {
		t.Fatalf("unexpected link %+v", link)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(config.PayOSConfig{APIKey: "k", ChecksumKey: "c"}); err == nil {
		t.Fatal("expected missing client id to fail")
	}
}
