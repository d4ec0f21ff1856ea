package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/furnique/furnique-backend/pkg/errors"
)

type lineRequest struct {
	SKU string `json:"sku" validate:"required,sku"`
}

type purchaseRequest struct {
	Plan   string        `json:"plan" validate:"required,credit_plan"`
	Method string        `json:"paymentMethod" validate:"required,payment_method"`
	Lines  []lineRequest `json:"lines" validate:"max=2,dive"`
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBodyAcceptsNormalizedEnums(t *testing.T) {
	var req purchaseRequest
	err := DecodeJSONBody(post(`{"plan":" premium ","paymentMethod":"pay_os","lines":[{"sku":" OAK-CHAIR "}]}`), &req)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestDecodeJSONBodyReportsNestedFields(t *testing.T) {
	var req purchaseRequest
	err := DecodeJSONBody(post(`{"plan":"GOLD","paymentMethod":"CASH","lines":[{"sku":"bad sku!"}]}`), &req)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %#v", typed.Details())
	}
	for _, field := range []string{"plan", "paymentMethod", "lines[0].sku"} {
		if details[field] == "" {
			t.Errorf("missing detail for %s in %v", field, details)
		}
	}
}

func TestDecodeJSONBodyRejectsMalformedBodies(t *testing.T) {
	cases := map[string]string{
		"empty":     ``,
		"unknown":   `{"plan":"PERSONAL","paymentMethod":"MOMO","extra":1}`,
		"trailing":  `{"plan":"PERSONAL","paymentMethod":"MOMO"}{}`,
		"too large": `{"plan":"` + strings.Repeat("x", maxBodyBytes) + `"}`,
	}
	for name, body := range cases {
		var req purchaseRequest
		if err := DecodeJSONBody(post(body), &req); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  giao\tgiờ hành chính\x00 ", 0); got != "giaogiờ hành chính" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeString("đồng hồ", 4); got != "đồng" {
		t.Fatalf("truncation should be rune based, got %q", got)
	}
}

func TestParseUUIDParamRequiresValue(t *testing.T) {
	if _, err := ParseUUIDParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId"); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
