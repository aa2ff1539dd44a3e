package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CommissionStatus string

const (
	CommissionStatusPending  CommissionStatus = "pending"
	CommissionStatusEarned   CommissionStatus = "earned"
	CommissionStatusReversed CommissionStatus = "reversed"
	CommissionStatusPaid     CommissionStatus = "paid"
)

// Commission is the platform cut of one payment. CommissionAmount is the
// residual after reversals; ReversedAmount accumulates what was given back.
type Commission struct {
	ID               uuid.UUID
	BookingID        uuid.UUID
	PaymentID        uuid.UUID
	BaseAmount       decimal.Decimal
	Rate             decimal.Decimal
	CommissionAmount decimal.Decimal
	ReversedAmount   decimal.Decimal
	Status           CommissionStatus
	EarnedAt         *time.Time
	ReversedAt       *time.Time
	PaidAt           *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (c Commission) HotelEarnings() decimal.Decimal {
	return c.BaseAmount.Sub(c.CommissionAmount)
}

// OriginalAmount is the commission before any reversal.
func (c Commission) OriginalAmount() decimal.Decimal {
	return c.CommissionAmount.Add(c.ReversedAmount)
}
