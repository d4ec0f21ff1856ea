// Package errors carries a domain Code on every error that crosses a package
// boundary, so handlers can map failures to HTTP responses and workers can
// decide whether to retry.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"

	// Checkout and reconciliation.
	CodeCartEmpty         Code = "CART_EMPTY"
	CodeOrderItemsInvalid Code = "ORDER_ITEMS_INVALID"

	// Order lifecycle.
	CodeOrderNotFound      Code = "ORDER_NOT_FOUND"
	CodeOrderStatusInvalid Code = "ORDER_STATUS_INVALID"

	// Payments and gateways.
	CodePaymentNotFound  Code = "PAYMENT_NOT_FOUND"
	CodeSignatureInvalid Code = "SIGNATURE_INVALID"
	CodeGateway          Code = "GATEWAY_ERROR"
	CodeTransactionAbort Code = "TRANSACTION_ABORT"
)

// Metadata is how a code is presented over HTTP. PublicMessage replaces the
// internal message unless DetailsAllowed is set.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:   {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
	CodeUnauthorized: {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
	CodeForbidden:    {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
	CodeNotFound:     {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
	CodeConflict:     {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
	CodeIdempotency:  {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
	CodeRateLimit:    {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded"},
	CodeInternal:     {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
	CodeDependency:   {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true},

	CodeCartEmpty:         {HTTPStatus: http.StatusBadRequest, PublicMessage: "cart is empty"},
	CodeOrderItemsInvalid: {HTTPStatus: http.StatusBadRequest, PublicMessage: "order items are invalid", DetailsAllowed: true},

	CodeOrderNotFound:      {HTTPStatus: http.StatusNotFound, PublicMessage: "order not found"},
	CodeOrderStatusInvalid: {HTTPStatus: http.StatusBadRequest, PublicMessage: "order status does not allow this action", DetailsAllowed: true},

	CodePaymentNotFound:  {HTTPStatus: http.StatusNotFound, PublicMessage: "payment not found"},
	CodeSignatureInvalid: {HTTPStatus: http.StatusBadRequest, PublicMessage: "signature invalid"},
	CodeGateway:          {HTTPStatus: http.StatusBadGateway, PublicMessage: "payment gateway error", Retryable: true},
	CodeTransactionAbort: {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "transaction aborted", Retryable: true},
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error every service returns. A nil cause means the
// error originated in this process.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the outermost typed code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// HasCode reports whether the outermost typed error in err's chain carries code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsRetryable reports whether the failure is transient and the caller should retry.
// Untyped errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(CodeOf(err)).Retryable
}
