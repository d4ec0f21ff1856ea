package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestEveryCodeHasMetadata(t *testing.T) {
	codes := []Code{
		CodeValidation, CodeUnauthorized, CodeForbidden, CodeNotFound, CodeConflict,
		CodeIdempotency, CodeRateLimit, CodeInternal, CodeDependency,
		CodeCartEmpty, CodeOrderItemsInvalid, CodeOrderNotFound, CodeOrderStatusInvalid,
		CodePaymentNotFound, CodeSignatureInvalid, CodeGateway, CodeTransactionAbort,
	}
	for _, code := range codes {
		meta, ok := metadataByCode[code]
		if !ok {
			t.Fatalf("%s has no metadata", code)
		}
		if meta.HTTPStatus < 400 || meta.PublicMessage == "" {
			t.Fatalf("%s metadata incomplete: %+v", code, meta)
		}
	}
}

func TestStatusMapping(t *testing.T) {
	for code, status := range map[Code]int{
		CodeIdempotency:        http.StatusConflict,
		CodeRateLimit:          http.StatusTooManyRequests,
		CodeOrderStatusInvalid: http.StatusBadRequest,
		CodeSignatureInvalid:   http.StatusBadRequest,
		CodeGateway:            http.StatusBadGateway,
		CodeTransactionAbort:   http.StatusServiceUnavailable,
		"SOMETHING_UNKNOWN":    http.StatusInternalServerError,
	} {
		if got := MetadataFor(code).HTTPStatus; got != status {
			t.Fatalf("%s: status %d, want %d", code, got, status)
		}
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeGateway, cause, "create checkout")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("cause lost")
	}
	if wrapped.Error() != "GATEWAY_ERROR: create checkout: boom" {
		t.Fatalf("Error() = %q", wrapped.Error())
	}
	if got := Wrap(CodeValidation, nil, "bad").Unwrap(); got != nil {
		t.Fatalf("nil cause should stay nil, got %v", got)
	}

	withDetails := New(CodeValidation, "missing field").WithDetails(map[string]string{"field": "phone"})
	if withDetails.Details() == nil || withDetails.Message() != "missing field" {
		t.Fatalf("unexpected error %+v", withDetails)
	}
}

func TestClassification(t *testing.T) {
	err := fmt.Errorf("capture: %w", New(CodeOrderItemsInvalid, "sku out of stock"))
	switch {
	case !HasCode(err, CodeOrderItemsInvalid):
		t.Fatalf("wrapped code not found")
	case IsRetryable(err):
		t.Fatalf("invalid items must not be retried")
	case !IsRetryable(stdErrors.New("connection reset")):
		t.Fatalf("untyped errors should be retried")
	case IsRetryable(nil), HasCode(nil, CodeInternal), As(nil) != nil:
		t.Fatalf("nil must not classify")
	case CodeOf(stdErrors.New("plain")) != CodeInternal:
		t.Fatalf("untyped errors default to internal")
	}

	var nilErr *Error
	if nilErr.Code() != CodeInternal || nilErr.Error() != "" {
		t.Fatalf("nil *Error should be inert")
	}
}
