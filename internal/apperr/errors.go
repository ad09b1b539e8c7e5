// Package apperr holds the error kinds every ledger operation reports.
package apperr

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

// ValidationError is raised before any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PreconditionFailure aborts an operation before its first record write,
// e.g. a receipt that could not be stored.
type PreconditionFailure struct {
	Step string
	Err  error
}

func (e *PreconditionFailure) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *PreconditionFailure) Unwrap() error { return e.Err }

// WriteFailure is a rejected record store write.
type WriteFailure struct {
	Op   string
	Code string
	Err  error
}

func (e *WriteFailure) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %v (code %s)", e.Op, e.Err, e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *WriteFailure) Unwrap() error { return e.Err }

// AmountMismatch is not a failure: the caller has to resend with an explicit
// confirmation to go ahead.
type AmountMismatch struct {
	InstallmentID string
	Expected      decimal.Decimal
	Actual        decimal.Decimal
}

func (e *AmountMismatch) Error() string {
	return fmt.Sprintf("payment amount %s does not match installment amount %s",
		e.Actual.StringFixed(2), e.Expected.StringFixed(2))
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsPrecondition(err error) bool {
	var p *PreconditionFailure
	return errors.As(err, &p)
}

func IsWrite(err error) bool {
	var w *WriteFailure
	return errors.As(err, &w)
}

func IsAmountMismatch(err error) bool {
	var m *AmountMismatch
	return errors.As(err, &m)
}

// CheckAmount accepts money greater than zero with at most two decimals, the
// precision of the numeric(12,2) columns.
func CheckAmount(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return Invalid(field, "must be greater than zero")
	}
	if !d.Equal(d.Truncate(2)) {
		return Invalid(field, "must not have more than two decimals")
	}
	return nil
}
