package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

func (s RefundStatus) IsValid() bool {
	switch s {
	case RefundStatusPending, RefundStatusSucceeded, RefundStatusFailed:
		return true
	}
	return false
}

type Refund struct {
	ID                    uuid.UUID
	PaymentID             uuid.UUID
	BookingID             uuid.UUID
	Amount                decimal.Decimal
	Currency              Currency
	Status                RefundStatus
	Reason                *string
	ProviderTransactionID string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	CompletedAt           *time.Time
}
