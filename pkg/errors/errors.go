package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is the stable machine readable identifier returned to API clients.
type Code string

// Transport level codes.
const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Order and payment codes.
const (
	CodeEmptyCart            Code = "EMPTY_CART"
	CodeInsufficientStock    Code = "INSUFFICIENT_STOCK"
	CodeInvalidState         Code = "INVALID_STATE"
	CodeNotCancellable       Code = "NOT_CANCELLABLE"
	CodeGatewayNotConfigured Code = "GATEWAY_NOT_CONFIGURED"
	CodeSignatureMismatch    Code = "SIGNATURE_MISMATCH"
	CodeOrderMismatch        Code = "ORDER_MISMATCH"
	CodeUnauthorizedActor    Code = "UNAUTHORIZED_ACTOR"
)

// Metadata describes how a code is rendered on the wire. PublicMessage is
// used unless ExposeMessage allows the error's own message through.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	ExposeMessage  bool
	DetailsAllowed bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	exposeMessage
	detailsAllowed
)

func meta(status int, public string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      traits&retryable != 0,
		ExposeMessage:  traits&exposeMessage != 0,
		DetailsAllowed: traits&detailsAllowed != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", exposeMessage|detailsAllowed),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", exposeMessage),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", exposeMessage),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", exposeMessage),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", exposeMessage),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", exposeMessage|detailsAllowed),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", exposeMessage|detailsAllowed),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", exposeMessage),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|detailsAllowed),

	CodeEmptyCart:            meta(http.StatusUnprocessableEntity, "cart is empty", exposeMessage),
	CodeInsufficientStock:    meta(http.StatusConflict, "insufficient stock", exposeMessage|detailsAllowed),
	CodeInvalidState:         meta(http.StatusConflict, "invalid order state", exposeMessage|detailsAllowed),
	CodeNotCancellable:       meta(http.StatusConflict, "order cannot be cancelled", exposeMessage|detailsAllowed),
	CodeGatewayNotConfigured: meta(http.StatusServiceUnavailable, "payment gateway not configured", 0),
	CodeSignatureMismatch:    meta(http.StatusUnauthorized, "payment signature invalid", 0),
	CodeOrderMismatch:        meta(http.StatusConflict, "gateway order does not match", exposeMessage),
	CodeUnauthorizedActor:    meta(http.StatusForbidden, "actor not permitted on order", exposeMessage|detailsAllowed),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error. The cause is kept for logs and never rendered.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
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

// WithDetails sets the structured details in place and returns e.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost coded error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// CodeOf returns CodeInternal for errors without a code.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.code
	}
	return CodeInternal
}

// IsRetryable reports whether a caller may retry the failed operation as is.
func IsRetryable(err error) bool {
	return err != nil && MetadataFor(CodeOf(err)).Retryable
}
