package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// Payment is one charge attempt against a booking. ProviderTransactionID is
// the only key used to correlate provider events with it.
type Payment struct {
	ID                    uuid.UUID
	BookingID             uuid.UUID
	Amount                decimal.Decimal
	Currency              Currency
	Status                PaymentStatus
	Provider              string
	ProviderTransactionID string
	ErrorCode             *string
	ErrorMessage          *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	CompletedAt           *time.Time
}
