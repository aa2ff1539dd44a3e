package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/signature"
	"github.com/josh-kwaku/stay-reconciler/internal/webhook"
)

// Square signs notificationURL+body with HMAC-SHA256 and base64.
type Square struct {
	secret     string
	url        string
	requireURL bool
}

func NewSquare(secret, notificationURL string, requireURL bool) *Square {
	return &Square{secret: secret, url: notificationURL, requireURL: requireURL}
}

func (s *Square) Name() string            { return "square" }
func (s *Square) SignatureHeader() string { return SignatureHeaderFor(s.Name()) }
func (s *Square) Configured() bool        { return s.secret != "" }

func (s *Square) Verify(body []byte, header http.Header) signature.Result {
	return signature.Verify(body, header.Get(s.SignatureHeader()), s.secret, signature.Options{
		NotificationURL: s.url,
		RequireURL:      s.requireURL,
	})
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squareError struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type squarePayment struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	AmountMoney *squareMoney  `json:"amount_money"`
	Errors      []squareError `json:"errors"`
}

type squareRefund struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	PaymentID   string       `json:"payment_id"`
	AmountMoney *squareMoney `json:"amount_money"`
	Reason      string       `json:"reason"`
}

type squareCustomer struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

type squareEnvelope struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Object struct {
			Payment  *squarePayment  `json:"payment"`
			Refund   *squareRefund   `json:"refund"`
			Customer *squareCustomer `json:"customer"`
		} `json:"object"`
	} `json:"data"`
}

func (s *Square) Decode(body []byte) (webhook.Notification, error) {
	var env squareEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return webhook.Notification{}, fmt.Errorf("Decode: %w", &domain.ValidationError{Reason: "malformed json: " + err.Error()})
	}
	if env.EventID == "" {
		return webhook.Notification{}, fmt.Errorf("Decode: %w", &domain.ValidationError{Field: "event_id", Reason: "required"})
	}
	n := webhook.Notification{Provider: s.Name(), EventID: env.EventID, EventType: env.Type}
	if env.Type == "" {
		return n, fmt.Errorf("Decode: %w", &domain.ValidationError{Field: "type", Reason: "required"})
	}

	if env.CreatedAt != "" {
		ts, err := time.Parse(time.RFC3339, env.CreatedAt)
		if err != nil {
			return n, fmt.Errorf("Decode: %w", &domain.ValidationError{Field: "created_at", Reason: "must be RFC3339"})
		}
		n.OccurredAt = ts.UTC()
	}

	obj := env.Data.Object
	switch {
	case obj.Payment != nil:
		p := &webhook.PaymentResource{
			TransactionID: obj.Payment.ID,
			Status:        squarePaymentStatus(obj.Payment.Status),
		}
		if m := obj.Payment.AmountMoney; m != nil {
			amount := webhook.MinorUnits(m.Amount)
			p.Amount = &amount
			p.Currency = m.Currency
		}
		if len(obj.Payment.Errors) > 0 {
			p.ErrorCode = obj.Payment.Errors[0].Code
			p.ErrorMessage = obj.Payment.Errors[0].Detail
		}
		n.Payment = p
	case obj.Refund != nil:
		r := &webhook.RefundResource{
			TransactionID:        obj.Refund.ID,
			PaymentTransactionID: obj.Refund.PaymentID,
			Status:               squareRefundStatus(obj.Refund.Status),
			Reason:               obj.Refund.Reason,
		}
		if m := obj.Refund.AmountMoney; m != nil {
			r.Amount = webhook.MinorUnits(m.Amount)
			r.Currency = m.Currency
		}
		n.Refund = r
	case obj.Customer != nil:
		n.Customer = &webhook.CustomerResource{CustomerID: obj.Customer.ID, Email: obj.Customer.EmailAddress}
	}

	return n, nil
}

func squarePaymentStatus(s string) webhook.ResourceStatus {
	switch strings.ToUpper(s) {
	case "COMPLETED":
		return webhook.StatusCompleted
	case "FAILED":
		return webhook.StatusFailed
	case "CANCELED":
		return webhook.StatusCanceled
	case "APPROVED", "PENDING":
		return webhook.StatusPending
	}
	return webhook.StatusUnknown
}

func squareRefundStatus(s string) webhook.ResourceStatus {
	switch strings.ToUpper(s) {
	case "COMPLETED":
		return webhook.StatusCompleted
	case "FAILED", "REJECTED":
		return webhook.StatusFailed
	case "PENDING":
		return webhook.StatusPending
	}
	return webhook.StatusUnknown
}
