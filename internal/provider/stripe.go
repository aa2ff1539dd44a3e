package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/signature"
	pipeline "github.com/josh-kwaku/stay-reconciler/internal/webhook"
)

const stripeSignatureHeader = "Stripe-Signature"

// Stripe delegates signature checks to stripe-go's timestamped scheme.
type Stripe struct {
	secret    string
	tolerance time.Duration
}

func NewStripe(secret string, tolerance time.Duration) *Stripe {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Stripe{secret: secret, tolerance: tolerance}
}

func (s *Stripe) Name() string            { return "stripe" }
func (s *Stripe) SignatureHeader() string { return stripeSignatureHeader }
func (s *Stripe) Configured() bool        { return s.secret != "" }

func (s *Stripe) Verify(body []byte, header http.Header) signature.Result {
	if s.secret == "" {
		return signature.Result{Method: signature.MethodNone, Reason: "webhook secret not configured"}
	}
	sig := header.Get(stripeSignatureHeader)
	if sig == "" {
		return signature.Result{Method: signature.MethodNone, Reason: "missing signature header"}
	}

	err := webhook.ValidatePayloadWithTolerance(body, sig, s.secret, s.tolerance)
	switch {
	case err == nil:
		return signature.Result{Valid: true, Method: signature.MethodProvider}
	case errors.Is(err, webhook.ErrTooOld):
		return signature.Result{Method: signature.MethodNone, Reason: "signature timestamp outside tolerance"}
	case errors.Is(err, webhook.ErrInvalidHeader), errors.Is(err, webhook.ErrNotSigned):
		return signature.Result{Method: signature.MethodNone, Reason: "malformed signature header"}
	default:
		return signature.Result{Method: signature.MethodNone, Reason: "signature mismatch"}
	}
}

func (s *Stripe) Decode(body []byte) (pipeline.Notification, error) {
	var ev stripe.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return pipeline.Notification{}, fmt.Errorf("Decode: %w", &domain.ValidationError{Reason: "malformed json: " + err.Error()})
	}
	if ev.ID == "" {
		return pipeline.Notification{}, fmt.Errorf("Decode: %w", &domain.ValidationError{Field: "id", Reason: "required"})
	}

	eventType := string(ev.Type)
	n := pipeline.Notification{Provider: s.Name(), EventID: ev.ID, EventType: eventType}
	if eventType == "" {
		return n, fmt.Errorf("Decode: %w", &domain.ValidationError{Field: "type", Reason: "required"})
	}
	if ev.Created > 0 {
		n.OccurredAt = time.Unix(ev.Created, 0).UTC()
	}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return n, nil
	}

	switch {
	case strings.HasPrefix(eventType, "payment_intent."):
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return n, fmt.Errorf("Decode: %w", &domain.ValidationError{Field: "data.object", Reason: "not a payment intent"})
		}
		amount := pipeline.MinorUnits(pi.Amount)
		p := &pipeline.PaymentResource{
			TransactionID: pi.ID,
			Status:        stripeIntentStatus(eventType, pi.Status),
			Amount:        &amount,
			Currency:      strings.ToUpper(string(pi.Currency)),
		}
		if pi.LastPaymentError != nil {
			p.ErrorCode = string(pi.LastPaymentError.Code)
			p.ErrorMessage = pi.LastPaymentError.Msg
		}
		n.Payment = p

	case strings.HasPrefix(eventType, "charge.refund."):
		var rf stripe.Refund
		if err := json.Unmarshal(ev.Data.Raw, &rf); err != nil {
			return n, fmt.Errorf("Decode: %w", &domain.ValidationError{Field: "data.object", Reason: "not a refund"})
		}
		r := &pipeline.RefundResource{
			TransactionID: rf.ID,
			Status:        stripeRefundStatus(rf.Status),
			Amount:        pipeline.MinorUnits(rf.Amount),
			Currency:      strings.ToUpper(string(rf.Currency)),
			Reason:        string(rf.Reason),
		}
		if rf.PaymentIntent != nil {
			r.PaymentTransactionID = rf.PaymentIntent.ID
		}
		n.Refund = r

	case strings.HasPrefix(eventType, "customer."):
		var c stripe.Customer
		if err := json.Unmarshal(ev.Data.Raw, &c); err != nil {
			return n, fmt.Errorf("Decode: %w", &domain.ValidationError{Field: "data.object", Reason: "not a customer"})
		}
		n.Customer = &pipeline.CustomerResource{CustomerID: c.ID, Email: c.Email}
	}

	return n, nil
}

func stripeIntentStatus(eventType string, status stripe.PaymentIntentStatus) pipeline.ResourceStatus {
	// A failed attempt leaves the intent in requires_payment_method, so the
	// event type is the authoritative signal.
	switch eventType {
	case "payment_intent.payment_failed":
		return pipeline.StatusFailed
	case "payment_intent.canceled":
		return pipeline.StatusCanceled
	}
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return pipeline.StatusCompleted
	case stripe.PaymentIntentStatusCanceled:
		return pipeline.StatusCanceled
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture, stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresPaymentMethod:
		return pipeline.StatusPending
	}
	return pipeline.StatusUnknown
}

func stripeRefundStatus(status stripe.RefundStatus) pipeline.ResourceStatus {
	switch status {
	case stripe.RefundStatusSucceeded:
		return pipeline.StatusCompleted
	case stripe.RefundStatusFailed:
		return pipeline.StatusFailed
	case stripe.RefundStatusCanceled:
		return pipeline.StatusCanceled
	case stripe.RefundStatusPending, "requires_action":
		return pipeline.StatusPending
	}
	return pipeline.StatusUnknown
}
