package domain

import (
	"errors"
	"fmt"
)

// Error codes surfaced to the route layer.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeInsufficientFunds      = "INSUFFICIENT_FUNDS"
	CodeLimitExceeded          = "LIMIT_EXCEEDED"
	CodeWalletNotFound         = "WALLET_NOT_FOUND"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeAlreadyCredited        = "ALREADY_CREDITED"
	CodeDuplicateReference     = "DUPLICATE_REFERENCE"
	CodeIPNotAllowed           = "IP_NOT_ALLOWED"
	CodeInvalidSignature       = "INVALID_SIGNATURE"
	CodeProviderMismatch       = "PROVIDER_MISMATCH"
	CodeCurrencyMismatch       = "CURRENCY_MISMATCH"
	CodeAmountMismatch         = "AMOUNT_MISMATCH"
	CodeTransactionNotFound    = "TRANSACTION_NOT_FOUND"
	CodeProviderUnavailable    = "PROVIDER_UNAVAILABLE"
	CodeNotFound               = "NOT_FOUND"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeRateLimited            = "RATE_LIMITED"
	CodeInternal               = "INTERNAL_ERROR"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// IsCode reports whether err (or anything it wraps) is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// AsAppError unwraps err into an AppError, if it is one.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Standard domain error constructors.

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrInsufficientFunds(balance, amount string) *AppError {
	return &AppError{
		Code:    CodeInsufficientFunds,
		Message: fmt.Sprintf("insufficient funds: balance %s, requested %s", balance, amount),
		Status:  400,
	}
}

func ErrLimitExceeded(limit, value string) *AppError {
	return &AppError{
		Code:    CodeLimitExceeded,
		Message: fmt.Sprintf("%s limit is %s", limit, value),
		Status:  422,
	}
}

func ErrWalletNotFound(userID string) *AppError {
	return &AppError{Code: CodeWalletNotFound, Message: fmt.Sprintf("wallet for user %s not found", userID), Status: 404}
}

func ErrConcurrentModification(cause error) *AppError {
	return &AppError{Code: CodeConcurrentModification, Message: "wallet was modified concurrently, retry the operation", Status: 409, Cause: cause}
}

func ErrAlreadyCredited(paymentID string) *AppError {
	return &AppError{Code: CodeAlreadyCredited, Message: fmt.Sprintf("payment %s already credited", paymentID), Status: 409}
}

func ErrDuplicateReference(refType, refID string) *AppError {
	return &AppError{Code: CodeDuplicateReference, Message: fmt.Sprintf("%s %s already recorded", refType, refID), Status: 409}
}

func ErrIPNotAllowed(ip string) *AppError {
	return &AppError{Code: CodeIPNotAllowed, Message: fmt.Sprintf("webhook origin %s not allowed", ip), Status: 403}
}

func ErrInvalidSignature() *AppError {
	return &AppError{Code: CodeInvalidSignature, Message: "webhook signature verification failed", Status: 401}
}

func ErrProviderMismatch(stored, got string) *AppError {
	return &AppError{Code: CodeProviderMismatch, Message: fmt.Sprintf("payment belongs to %s, webhook from %s", stored, got), Status: 400}
}

func ErrCurrencyMismatch(stored, got string) *AppError {
	return &AppError{Code: CodeCurrencyMismatch, Message: fmt.Sprintf("expected currency %s, got %s", stored, got), Status: 400}
}

func ErrAmountMismatch(stored, got string) *AppError {
	return &AppError{Code: CodeAmountMismatch, Message: fmt.Sprintf("expected amount %s, got %s", stored, got), Status: 400}
}

func ErrTransactionNotFound(id string) *AppError {
	return &AppError{Code: CodeTransactionNotFound, Message: fmt.Sprintf("payment transaction %s not found", id), Status: 404}
}

func ErrProviderUnavailable(provider string, cause error) *AppError {
	return &AppError{Code: CodeProviderUnavailable, Message: fmt.Sprintf("provider %s unavailable", provider), Status: 502, Cause: cause}
}

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, Status: 403}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: msg, Status: 429}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}
