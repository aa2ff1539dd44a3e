package webhook

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResourceStatus is a provider status mapped onto a shared vocabulary.
type ResourceStatus string

const (
	StatusUnknown   ResourceStatus = ""
	StatusPending   ResourceStatus = "pending"
	StatusCompleted ResourceStatus = "completed"
	StatusFailed    ResourceStatus = "failed"
	StatusCanceled  ResourceStatus = "canceled"
)

// Notification is a decoded provider payload. Exactly one of Payment, Refund
// or Customer is set for resource events; all are nil for events the decoder
// could not attach a resource to.
type Notification struct {
	Provider   string
	EventID    string
	EventType  string
	OccurredAt time.Time

	Payment  *PaymentResource
	Refund   *RefundResource
	Customer *CustomerResource
}

type PaymentResource struct {
	TransactionID string
	Status        ResourceStatus
	Amount        *decimal.Decimal
	Currency      string
	ErrorCode     string
	ErrorMessage  string
}

type RefundResource struct {
	TransactionID        string
	PaymentTransactionID string
	Status               ResourceStatus
	Amount               decimal.Decimal
	Currency             string
	Reason               string
}

type CustomerResource struct {
	CustomerID string
	Email      string
}

// Status returns the nested resource status used for routing.
func (n Notification) Status() ResourceStatus {
	switch {
	case n.Payment != nil:
		return n.Payment.Status
	case n.Refund != nil:
		return n.Refund.Status
	default:
		return StatusUnknown
	}
}

// MinorUnits converts an integer amount in minor units into a 2dp decimal.
func MinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
