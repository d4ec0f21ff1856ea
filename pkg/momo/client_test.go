package momo

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

var testConfig = config.MoMoConfig{PartnerCode: "MOMO", AccessKey: "access", SecretKey: "secret"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(testConfig, WithEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestCreateSignsRequest(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/gateway/api/create" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		_, _ = w.Write([]byte(`{"orderId":"42","requestId":"r1","amount":1000,"resultCode":0,"message":"ok","payUrl":"https://momo/pay"}`))
	})

	out, _, err := client.Create(context.Background(), CreateRequest{
		RequestID:   "r1",
		OrderID:     "42",
		Amount:      1000,
		OrderInfo:   "order 42",
		RedirectURL: "https://shop/orders",
		IPNURL:      "https://api/webhooks/momo",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out.PayURL != "https://momo/pay" {
		t.Fatalf("unexpected pay url %q", out.PayURL)
	}

	raw := "accessKey=access&amount=1000&extraData=&ipnUrl=https://api/webhooks/momo&orderId=42&orderInfo=order 42&partnerCode=MOMO&redirectUrl=https://shop/orders&requestId=r1&requestType=captureWallet"
	if body["signature"] != signature.Sign(raw, "secret") {
		t.Fatalf("unexpected signature %v", body["signature"])
	}
}

func TestCreateRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"resultCode":41,"message":"duplicated orderId"}`))
	})
	_, _, err := client.Create(context.Background(), CreateRequest{RequestID: "r", OrderID: "1", Amount: 1})
	if !pkgerrors.HasCode(err, pkgerrors.CodeGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
}

func TestQueryReturnsFailedPaymentWithoutError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"orderId":"42","resultCode":1006,"message":"user denied","transId":0}`))
	})
	out, _, err := client.Query(context.Background(), "r1", "42")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if out.ResultCode != 1006 {
		t.Fatalf("unexpected result code %d", out.ResultCode)
	}
}

func TestVerifyIPN(t *testing.T) {
	client, err := NewClient(testConfig)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	fields := map[string]any{
		"partnerCode":  "MOMO",
		"orderId":      "42",
		"requestId":    "r1",
		"amount":       json.Number("1000"),
		"orderInfo":    "order 42",
		"orderType":    "momo_wallet",
		"transId":      json.Number("2588659987"),
		"resultCode":   json.Number("0"),
		"message":      "Successful.",
		"payType":      "qr",
		"responseTime": json.Number("1721720663942"),
		"extraData":    "",
	}
	raw := "accessKey=access&amount=1000&extraData=&message=Successful.&orderId=42&orderInfo=order 42&orderType=momo_wallet&partnerCode=MOMO&payType=qr&requestId=r1&responseTime=1721720663942&resultCode=0&transId=2588659987"
	fields["signature"] = signature.Sign(raw, "secret")

	if !client.VerifyIPN(fields) {
		t.Fatal("expected ipn to verify")
	}
	fields["amount"] = json.Number("1")
	if client.VerifyIPN(fields) {
		t.Fatal("expected tampered ipn to fail")
	}
}
