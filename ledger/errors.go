package ledger

import (
	"errors"
	"fmt"
)

// ErrorCode is a domain error code used by movement validations.
type ErrorCode string

const (
	// ErrorAccountNotFound indicates the referenced account does not exist.
	ErrorAccountNotFound ErrorCode = "0021"
	// ErrorUnauthenticated indicates the caller presented no usable credentials.
	ErrorUnauthenticated ErrorCode = "0042"
	// ErrorForbidden indicates the caller owns neither the account nor an elevated role.
	ErrorForbidden ErrorCode = "0043"
	// ErrorAccountStatusRestriction indicates account status blocks this movement.
	ErrorAccountStatusRestriction ErrorCode = "0024"
	// ErrorInsufficientFunds indicates the source balance cannot cover the amount.
	ErrorInsufficientFunds ErrorCode = "0018"
	// ErrorCurrencyMismatch indicates the requested currency differs from the account currency.
	ErrorCurrencyMismatch ErrorCode = "0034"
	// ErrorCommitFailed indicates the atomic unit could not be applied; no effect took place.
	ErrorCommitFailed ErrorCode = "0074"
	// ErrorOutcomeUnknown indicates a collaborator timed out and the commit outcome is indeterminate.
	ErrorOutcomeUnknown ErrorCode = "0075"
	// ErrorTransactionNotFound indicates the referenced transaction does not exist.
	ErrorTransactionNotFound ErrorCode = "0076"
	// ErrorInvalidInput indicates request payload validation failed.
	ErrorInvalidInput ErrorCode = "1001"
)

// DomainError represents a structured movement domain error.
type DomainError struct {
	Code    ErrorCode
	Field   string
	Message string
}

// Error returns the formatted domain error string.
func (e DomainError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
}

// NewDomainError creates a domain error with code, field, and message.
func NewDomainError(code ErrorCode, field, message string) error {
	return DomainError{Code: code, Field: field, Message: message}
}

// CodeOf extracts the domain error code from err, or "" when err is not a DomainError.
func CodeOf(err error) ErrorCode {
	var domainErr DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}

	return ""
}
