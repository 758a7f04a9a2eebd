package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorCode string

const (
	ErrInternalServer             ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrInvalidInput               ErrorCode = "INVALID_INPUT"
	ErrInvalidRequestData         ErrorCode = "INVALID_REQUEST_DATA"
	ErrUnauthorized               ErrorCode = "UNAUTHORIZED"
	ErrTokenExpired               ErrorCode = "TOKEN_EXPIRED"
	ErrInvalidTokenFormat         ErrorCode = "INVALID_TOKEN_FORMAT"
	ErrMissingAuthorizationHeader ErrorCode = "MISSING_AUTHORIZATION_HEADER"
	ErrForbidden                  ErrorCode = "FORBIDDEN"
	ErrNotFound                   ErrorCode = "NOT_FOUND"
	ErrAlreadyExists              ErrorCode = "ALREADY_EXISTS"

	// calendar import
	ErrIntegrationExpired ErrorCode = "INTEGRATION_EXPIRED"
	ErrProviderFailure    ErrorCode = "PROVIDER_FAILURE"

	// payouts
	ErrFetchBookings          ErrorCode = "FETCH_BOOKINGS_FAILED"
	ErrPayoutFailed           ErrorCode = "PAYOUT_FAILED"
	ErrReconciliationRequired ErrorCode = "RECONCILIATION_REQUIRED"

	// webhooks
	ErrInvalidSignature ErrorCode = "INVALID_SIGNATURE"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HasCode reports whether err carries an AppError with the given code
// anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

func As(err error, target any) bool { return stderrors.As(err, target) }
func Is(err, target error) bool     { return stderrors.Is(err, target) }
func New(text string) error         { return stderrors.New(text) }
