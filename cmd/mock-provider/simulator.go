package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/stay-reconciler/internal/provider"
	"github.com/josh-kwaku/stay-reconciler/internal/resilience"
	"github.com/josh-kwaku/stay-reconciler/internal/signature"
)

// simulator plays the Square side: it renders events, signs them the way
// Square does and delivers them, retrying while the receiver answers 5xx.
type simulator struct {
	targetURL       string
	notificationURL string
	secret          string
	client          *http.Client
	retry           resilience.RetryPolicy
	now             func() time.Time
}

type delivery struct {
	EventID    string          `json:"event_id"`
	StatusCode int             `json:"status_code"`
	Response   json.RawMessage `json:"response"`
	Attempts   int             `json:"attempts"`
}

type paymentEvent struct {
	EventID       string          `json:"event_id"`
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ErrorCode     string          `json:"error_code"`
	// Repeat delivers the same signed body this many extra times.
	Repeat int `json:"repeat"`
}

type refundEvent struct {
	EventID       string          `json:"event_id"`
	RefundID      string          `json:"refund_id"`
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Reason        string          `json:"reason"`
	Repeat        int             `json:"repeat"`
}

func minorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func (s *simulator) paymentBody(e *paymentEvent) ([]byte, error) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	p := provider.SquarePayment{
		EventID:   e.EventID,
		Type:      "payment.updated",
		PaymentID: e.TransactionID,
		Status:    e.Status,
		Amount:    minorUnits(e.Amount),
		Currency:  e.Currency,
		ErrorCode: e.ErrorCode,
		CreatedAt: s.now(),
	}
	if e.ErrorCode != "" {
		p.ErrorDetail = "declined by issuer"
	}
	return provider.BuildSquarePayment(p)
}

func (s *simulator) refundBody(e *refundEvent) ([]byte, error) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.RefundID == "" {
		e.RefundID = "rf_" + uuid.NewString()
	}
	return provider.BuildSquareRefund(provider.SquareRefund{
		EventID:   e.EventID,
		Type:      "refund.updated",
		RefundID:  e.RefundID,
		PaymentID: e.TransactionID,
		Status:    e.Status,
		Amount:    minorUnits(e.Amount),
		Currency:  e.Currency,
		Reason:    e.Reason,
		CreatedAt: s.now(),
	})
}

func (s *simulator) sign(body []byte) string {
	if s.notificationURL != "" {
		return signature.SignWithURL(s.notificationURL, body, s.secret)
	}
	return signature.Sign(body, s.secret)
}

// deliver posts body once per repeat, each with its own retry loop.
func (s *simulator) deliver(ctx context.Context, eventID string, body []byte, repeat int) ([]delivery, error) {
	out := make([]delivery, 0, repeat+1)
	for range repeat + 1 {
		d, err := s.post(ctx, eventID, body)
		if err != nil {
			return out, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *simulator) post(ctx context.Context, eventID string, body []byte) (delivery, error) {
	d := delivery{EventID: eventID}
	err := resilience.Retry(ctx, s.retry, "deliver.square", func(ctx context.Context) error {
		d.Attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.targetURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(provider.SignatureHeaderFor("square"), s.sign(body))

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		d.StatusCode, d.Response = resp.StatusCode, raw
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("receiver answered %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return d, fmt.Errorf("post: %w", err)
	}
	return d, nil
}
