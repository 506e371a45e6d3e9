package ledger

import (
	"errors"
)

// Error is a business-rule outcome returned to callers. It is never a fault:
// callers act on Code, the ledger state is unchanged.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrInvalidAmount occurs when an amount is not strictly positive or
	// carries more fractional digits than the ledger stores.
	ErrInvalidAmount = &Error{Code: "INVALID_AMOUNT", Message: "amount must be greater than 0"}

	// ErrInsufficientFunds occurs when the source wallet lacks balance to
	// cover a requested debit.
	ErrInsufficientFunds = &Error{Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds"}

	// ErrSameCurrency rejects conversions whose source and target match.
	ErrSameCurrency = &Error{Code: "SAME_CURRENCY_CONVERSION", Message: "cannot convert to the same currency"}

	// ErrRateNotFound indicates no stored rate for the exact ordered pair.
	ErrRateNotFound = &Error{Code: "RATE_NOT_FOUND", Message: "fx rate not found"}

	// ErrInvalidRate rejects non-positive or over-precise rates.
	ErrInvalidRate = &Error{Code: "INVALID_RATE", Message: "rate must be greater than 0"}
)

// errUndeclaredWallet signals a unit touching a wallet it did not lock.
var errUndeclaredWallet = errors.New("wallet not declared for this atomic unit")

// errNegativeBalance is returned when a write would leave a balance below zero.
var errNegativeBalance = errors.New("wallet balance cannot be negative")

// AsError extracts the business error carried by err, if any.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
