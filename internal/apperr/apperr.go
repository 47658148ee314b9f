// Package apperr defines the closed error taxonomy of the fulfillment core.
// Handlers map codes to HTTP statuses; services never touch HTTP.
package apperr

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Code string

const (
	// CodeValidation covers caller mistakes: bad coupon, malformed input,
	// insufficient stock. Nothing was mutated.
	CodeValidation Code = "validation"

	// CodeNotFound is returned when the referenced entity does not exist
	// or is inactive.
	CodeNotFound Code = "not_found"

	// CodeStateConflict marks illegal state-machine transitions and
	// duplicate resolutions, so clients can render "already processed"
	// instead of "bad input".
	CodeStateConflict Code = "state_conflict"

	// CodeInsufficientFunds is a validation failure carrying balance context.
	CodeInsufficientFunds Code = "insufficient_funds"

	// CodeIntegrity flags a broken ledger invariant. Never auto-corrected.
	CodeIntegrity Code = "integrity"

	// CodeUnavailable covers failed external dependencies; the operation
	// stays pending and is safe to retry.
	CodeUnavailable Code = "unavailable"
)

type Error struct {
	Code    Code
	Message string

	// Balance context, set for CodeInsufficientFunds only.
	Available decimal.Decimal
	Requested decimal.Decimal

	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a taxonomy code to an underlying error.
func Wrap(code Code, err error, message string) error {
	return &Error{Code: code, Message: message, wrapped: err}
}

// InsufficientFunds reports a debit or payout exceeding the available balance.
func InsufficientFunds(available, requested decimal.Decimal) error {
	return &Error{
		Code:      CodeInsufficientFunds,
		Message:   fmt.Sprintf("requested %s exceeds available %s", requested, available),
		Available: available,
		Requested: requested,
	}
}

// CodeOf extracts the taxonomy code, or empty string for unclassified errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
