package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
	ErrCodeValidation        ErrorCode = "VALIDATION_FAILED"
	ErrCodePrecondition      ErrorCode = "PRECONDITION_FAILED"
	ErrCodeOutOfOrder        ErrorCode = "OUT_OF_ORDER"
	ErrCodeAlreadyProcessed  ErrorCode = "ALREADY_PROCESSED"
	ErrCodeConflict          ErrorCode = "CONFLICT"
	ErrCodeSettlementFailure ErrorCode = "SETTLEMENT_FAILURE"
	ErrCodeUnknownReference  ErrorCode = "UNKNOWN_REFERENCE"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound, ErrCodeUnknownReference:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodePrecondition, ErrCodeOutOfOrder, ErrCodeConflict, ErrCodeAlreadyProcessed:
		return http.StatusConflict
	case ErrCodeSettlementFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the error code, or ErrCodeInternal for plain errors.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

func is(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool         { return is(err, ErrCodeNotFound) }
func IsForbidden(err error) bool        { return is(err, ErrCodeForbidden) }
func IsValidation(err error) bool       { return is(err, ErrCodeValidation) }
func IsPrecondition(err error) bool     { return is(err, ErrCodePrecondition) }
func IsOutOfOrder(err error) bool       { return is(err, ErrCodeOutOfOrder) }
func IsAlreadyProcessed(err error) bool { return is(err, ErrCodeAlreadyProcessed) }
func IsUnknownReference(err error) bool { return is(err, ErrCodeUnknownReference) }

var (
	ErrTaskNotFound    = New(ErrCodeNotFound, "task not found")
	ErrOfferNotFound   = New(ErrCodeNotFound, "offer not found")
	ErrPaymentNotFound = New(ErrCodeNotFound, "payment not found")
	ErrUserNotFound    = New(ErrCodeNotFound, "user not found")
	ErrUnauthorized    = New(ErrCodeUnauthorized, "authentication required")
	ErrForbidden       = New(ErrCodeForbidden, "insufficient rights")
)
