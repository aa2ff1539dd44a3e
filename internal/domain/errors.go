package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrInvalidCurrency         = errors.New("invalid currency")
	ErrCurrencyMismatch        = errors.New("currency mismatch")
	ErrDuplicateTransaction    = errors.New("provider transaction id already recorded")
	ErrPaymentNotSucceeded     = errors.New("payment has not succeeded")
	ErrRefundExceedsPayment    = errors.New("refund exceeds unrefunded amount")
	ErrBookingFinal            = errors.New("booking is in a final state")
	ErrUnknownProvider         = errors.New("unknown provider")

	ErrAuthentication = errors.New("authentication failed")
	ErrValidation     = errors.New("validation failed")
	ErrTransition     = errors.New("transition not applicable")
	ErrDownstream     = errors.New("downstream dispatch failed")
)

// AuthenticationError rejects a delivery whose signature cannot be trusted.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string { return "authentication failed: " + e.Reason }
func (e *AuthenticationError) Unwrap() error { return ErrAuthentication }

// ValidationError marks a payload that is structurally unusable or stale.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}
func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError is a valid event that cannot apply to the current state.
type TransitionError struct {
	Entity string
	From   string
	Event  string
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot apply %s: %s", e.Entity, e.From, e.Event, e.Reason)
}
func (e *TransitionError) Unwrap() error { return ErrTransition }

// DownstreamError is a side effect that failed after the core commit.
type DownstreamError struct {
	Operation string
	Err       error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("downstream %s: %v", e.Operation, e.Err)
}

func (e *DownstreamError) Unwrap() []error { return []error{ErrDownstream, e.Err} }
