package provider

import (
	"encoding/json"
	"time"
)

// SquarePayment describes a payment notification to build with
// BuildSquarePayment. Amounts are in minor units.
type SquarePayment struct {
	EventID     string
	Type        string
	PaymentID   string
	Status      string
	Amount      int64
	Currency    string
	ErrorCode   string
	ErrorDetail string
	CreatedAt   time.Time
}

type SquareRefund struct {
	EventID   string
	Type      string
	RefundID  string
	PaymentID string
	Status    string
	Amount    int64
	Currency  string
	Reason    string
	CreatedAt time.Time
}

// BuildSquarePayment renders the wire body Square sends for a payment event.
func BuildSquarePayment(p SquarePayment) ([]byte, error) {
	env := newEnvelope(p.EventID, p.Type, p.CreatedAt)
	env.Data.Type, env.Data.ID = "payment", p.PaymentID
	payment := &squarePayment{ID: p.PaymentID, Status: p.Status}
	if p.Amount > 0 {
		payment.AmountMoney = &squareMoney{Amount: p.Amount, Currency: p.Currency}
	}
	if p.ErrorCode != "" {
		payment.Errors = []squareError{{Code: p.ErrorCode, Detail: p.ErrorDetail}}
	}
	env.Data.Object.Payment = payment
	return json.Marshal(env)
}

func BuildSquareRefund(r SquareRefund) ([]byte, error) {
	env := newEnvelope(r.EventID, r.Type, r.CreatedAt)
	env.Data.Type, env.Data.ID = "refund", r.RefundID
	env.Data.Object.Refund = &squareRefund{
		ID:          r.RefundID,
		Status:      r.Status,
		PaymentID:   r.PaymentID,
		AmountMoney: &squareMoney{Amount: r.Amount, Currency: r.Currency},
		Reason:      r.Reason,
	}
	return json.Marshal(env)
}

func newEnvelope(eventID, eventType string, createdAt time.Time) squareEnvelope {
	var env squareEnvelope
	env.EventID, env.Type = eventID, eventType
	if !createdAt.IsZero() {
		env.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	}
	return env
}
