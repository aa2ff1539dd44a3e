// Package commission derives, earns and reverses the platform cut of a
// payment. The functions in this file are pure; Ledger persists their
// results.
//
// Every result keeps CommissionAmount + HotelEarnings == BaseAmount, since
// hotel earnings are always derived, and never lets ReversedAmount exceed
// the original commission.
package commission

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
)

const places = 2

// Calculate returns base × rate rounded half away from zero to 2 places.
func Calculate(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Round(places)
}

// New builds a pending commission for a payment that has just been created.
func New(bookingID, paymentID uuid.UUID, base, rate decimal.Decimal, now time.Time) (domain.Commission, error) {
	if !base.IsPositive() {
		return domain.Commission{}, fmt.Errorf("New: %w", domain.ErrInvalidAmount)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return domain.Commission{}, fmt.Errorf("New: rate %s outside [0, 1): %w", rate, domain.ErrInvalidRequest)
	}
	return domain.Commission{
		ID:               uuid.New(),
		BookingID:        bookingID,
		PaymentID:        paymentID,
		BaseAmount:       base,
		Rate:             rate,
		CommissionAmount: Calculate(base, rate),
		ReversedAmount:   decimal.Zero,
		Status:           domain.CommissionStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func Earn(c domain.Commission, now time.Time) (domain.Commission, error) {
	if c.Status != domain.CommissionStatusPending {
		return c, &domain.TransitionError{Entity: "commission", From: string(c.Status), Event: "earn", Reason: "commission is not pending"}
	}
	c.Status = domain.CommissionStatusEarned
	c.EarnedAt = &now
	c.UpdatedAt = now
	return c, nil
}

// Void cancels a pending commission whose payment failed. Nothing was earned,
// so nothing counts as reversed.
func Void(c domain.Commission, now time.Time) (domain.Commission, error) {
	if c.Status != domain.CommissionStatusPending {
		return c, &domain.TransitionError{Entity: "commission", From: string(c.Status), Event: "void", Reason: "commission is not pending"}
	}
	c.CommissionAmount = decimal.Zero
	c.Status = domain.CommissionStatusReversed
	c.ReversedAt = &now
	c.UpdatedAt = now
	return c, nil
}

// ReversalAmount is the share of commission a refund gives back. A full
// refund returns the whole residual; a partial one returns
// original × refund / base, clamped to what is still held.
func ReversalAmount(c domain.Commission, refund decimal.Decimal, full bool) decimal.Decimal {
	if full || refund.GreaterThanOrEqual(c.BaseAmount) {
		return c.CommissionAmount
	}
	if !refund.IsPositive() || !c.BaseAmount.IsPositive() {
		return decimal.Zero
	}
	amount := c.OriginalAmount().Mul(refund).Div(c.BaseAmount).Round(places)
	if amount.GreaterThan(c.CommissionAmount) {
		return c.CommissionAmount
	}
	return amount
}

// Reverse gives back commission for a completed refund. Partial reversals
// keep the current status; a full one moves it to reversed.
func Reverse(c domain.Commission, refund decimal.Decimal, full bool, now time.Time) (domain.Commission, decimal.Decimal, error) {
	if c.Status != domain.CommissionStatusEarned && c.Status != domain.CommissionStatusPaid {
		return c, decimal.Zero, &domain.TransitionError{Entity: "commission", From: string(c.Status), Event: "reverse", Reason: "commission was never earned"}
	}
	amount := ReversalAmount(c, refund, full)
	c.CommissionAmount = c.CommissionAmount.Sub(amount)
	c.ReversedAmount = c.ReversedAmount.Add(amount)
	c.UpdatedAt = now
	if full {
		c.Status = domain.CommissionStatusReversed
		c.ReversedAt = &now
	}
	return c, amount, nil
}

func MarkPaid(c domain.Commission, now time.Time) (domain.Commission, error) {
	if c.Status != domain.CommissionStatusEarned {
		return c, &domain.TransitionError{Entity: "commission", From: string(c.Status), Event: "payout", Reason: "only earned commission can be paid"}
	}
	c.Status = domain.CommissionStatusPaid
	c.PaidAt = &now
	c.UpdatedAt = now
	return c, nil
}
