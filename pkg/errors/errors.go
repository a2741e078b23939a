// Package errors defines AppError, the error shape every HTTP response
// carries: a stable code, a message, optional details and the status.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by all handlers. Domain-specific codes such as
// UNKNOWN_CUSTOMER_TIER live next to the services that raise them.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "RESOURCE_NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeBusinessRule        = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientBalance = "INSUFFICIENT_WALLET_BALANCE"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeTimeout             = "TIMEOUT"
)

// AppError is an error with an HTTP status and a machine-readable code
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail sets one detail
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string, 1)
	}
	e.Details[key] = value
	return e
}

// Wrap records the cause
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// NewAppError creates an AppError
func NewAppError(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func orDefault(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest)
}

// ErrValidationWithFields maps each offending field to its reason
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	e := ErrValidation(message)
	e.Details = fields
	return e
}

func ErrBadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

func ErrUnauthorized(message string) *AppError {
	return NewAppError(CodeUnauthorized, orDefault(message, "authentication required"), http.StatusUnauthorized)
}

func ErrForbidden(message string) *AppError {
	return NewAppError(CodeForbidden, orDefault(message, "access denied"), http.StatusForbidden)
}

// ErrNotFound reports a missing resource, e.g. ErrNotFound("shipment")
func ErrNotFound(resource string) *AppError {
	return NewAppError(CodeNotFound, resource+" not found", http.StatusNotFound)
}

func ErrConflict(message string) *AppError {
	return NewAppError(CodeConflict, message, http.StatusConflict)
}

// ErrBusinessRule rejects a request that was valid but not allowed. Nothing
// was applied. An empty code means CodeBusinessRule.
func ErrBusinessRule(code, message string) *AppError {
	return NewAppError(orDefault(code, CodeBusinessRule), message, http.StatusUnprocessableEntity)
}

func ErrInternal(message string) *AppError {
	return NewAppError(CodeInternalError, orDefault(message, "an internal error occurred"), http.StatusInternalServerError)
}

// ErrServiceUnavailable names the downstream that could not be reached
func ErrServiceUnavailable(service string) *AppError {
	return NewAppError(CodeServiceUnavailable, service+" is temporarily unavailable", http.StatusServiceUnavailable)
}

func ErrTimeout(operation string) *AppError {
	return NewAppError(CodeTimeout, operation+" timed out", http.StatusGatewayTimeout)
}

// AsAppError finds an AppError in err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// FromError converts err to an AppError. Deadlines become TIMEOUT and
// anything else unrecognised becomes INTERNAL_ERROR.
func FromError(err error) *AppError {
	switch appErr, ok := AsAppError(err); {
	case err == nil:
		return nil
	case ok:
		return appErr
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout("operation").Wrap(err)
	default:
		return ErrInternal("").Wrap(err)
	}
}
