// Package webhook turns decoded provider notifications into a closed set of
// typed events. Routing is a pure table lookup on (event type, nested
// resource status); anything outside the table becomes Unhandled.
package webhook

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
)

type Kind string

const (
	KindPaymentSucceeded Kind = "payment_succeeded"
	KindPaymentFailed    Kind = "payment_failed"
	KindRefundCompleted  Kind = "refund_completed"
	KindRefundFailed     Kind = "refund_failed"
	KindCustomerUpserted Kind = "customer_upserted"
	KindUnhandled        Kind = "unhandled"
)

// Event is implemented only by the variants in this package.
type Event interface {
	Metadata() Meta
	Kind() Kind
	sealed()
}

type Meta struct {
	Provider   string
	EventID    string
	EventType  string
	OccurredAt time.Time
}

func (m Meta) Metadata() Meta { return m }

type PaymentSucceeded struct {
	Meta
	TransactionID string
	Amount        *decimal.Decimal
	Currency      string
}

type PaymentFailed struct {
	Meta
	TransactionID string
	ErrorCode     string
	ErrorMessage  string
}

type RefundCompleted struct {
	Meta
	RefundTransactionID  string
	PaymentTransactionID string
	Amount               decimal.Decimal
	Currency             string
	Reason               string
}

type RefundFailed struct {
	Meta
	RefundTransactionID  string
	PaymentTransactionID string
	Amount               decimal.Decimal
	Currency             string
	Reason               string
}

type CustomerUpserted struct {
	Meta
	CustomerID string
	Email      string
}

type Unhandled struct {
	Meta
	Status ResourceStatus
}

func (PaymentSucceeded) Kind() Kind { return KindPaymentSucceeded }
func (PaymentFailed) Kind() Kind    { return KindPaymentFailed }
func (RefundCompleted) Kind() Kind  { return KindRefundCompleted }
func (RefundFailed) Kind() Kind     { return KindRefundFailed }
func (CustomerUpserted) Kind() Kind { return KindCustomerUpserted }
func (Unhandled) Kind() Kind        { return KindUnhandled }

func (PaymentSucceeded) sealed() {}
func (PaymentFailed) sealed()    {}
func (RefundCompleted) sealed()  {}
func (RefundFailed) sealed()     {}
func (CustomerUpserted) sealed() {}
func (Unhandled) sealed()        {}

type routeKey struct {
	eventType string
	status    ResourceStatus
}

var routes = map[routeKey]Kind{
	// HMAC (square) provider
	{"payment.created", StatusCompleted}: KindPaymentSucceeded,
	{"payment.updated", StatusCompleted}: KindPaymentSucceeded,
	{"payment.created", StatusFailed}:    KindPaymentFailed,
	{"payment.updated", StatusFailed}:    KindPaymentFailed,
	{"payment.updated", StatusCanceled}:  KindPaymentFailed,
	{"refund.created", StatusCompleted}:  KindRefundCompleted,
	{"refund.updated", StatusCompleted}:  KindRefundCompleted,
	{"refund.updated", StatusFailed}:     KindRefundFailed,
	{"customer.created", StatusUnknown}:  KindCustomerUpserted,
	{"customer.updated", StatusUnknown}:  KindCustomerUpserted,

	// stripe
	{"payment_intent.succeeded", StatusCompleted}:   KindPaymentSucceeded,
	{"payment_intent.payment_failed", StatusFailed}: KindPaymentFailed,
	{"payment_intent.canceled", StatusCanceled}:     KindPaymentFailed,
	{"charge.refund.updated", StatusCompleted}:      KindRefundCompleted,
	{"charge.refund.updated", StatusFailed}:         KindRefundFailed,
	{"charge.refund.updated", StatusCanceled}:       KindRefundFailed,
}

// Route maps a notification to its typed event. It performs no I/O. A
// notification that routes to a handled kind but lacks the fields that kind
// needs yields a *domain.ValidationError.
func Route(n Notification) (Event, error) {
	meta := Meta{
		Provider:   n.Provider,
		EventID:    n.EventID,
		EventType:  n.EventType,
		OccurredAt: n.OccurredAt,
	}

	kind, ok := routes[routeKey{n.EventType, n.Status()}]
	if !ok {
		return Unhandled{Meta: meta, Status: n.Status()}, nil
	}

	switch kind {
	case KindPaymentSucceeded, KindPaymentFailed:
		p := n.Payment
		if p == nil || p.TransactionID == "" {
			return nil, &domain.ValidationError{Field: "payment.id", Reason: "required"}
		}
		if kind == KindPaymentSucceeded {
			return PaymentSucceeded{Meta: meta, TransactionID: p.TransactionID, Amount: p.Amount, Currency: p.Currency}, nil
		}
		return PaymentFailed{Meta: meta, TransactionID: p.TransactionID, ErrorCode: p.ErrorCode, ErrorMessage: p.ErrorMessage}, nil

	case KindRefundCompleted, KindRefundFailed:
		r := n.Refund
		if r == nil || r.TransactionID == "" {
			return nil, &domain.ValidationError{Field: "refund.id", Reason: "required"}
		}
		if r.PaymentTransactionID == "" {
			return nil, &domain.ValidationError{Field: "refund.payment_id", Reason: "required"}
		}
		if !r.Amount.IsPositive() {
			return nil, &domain.ValidationError{Field: "refund.amount", Reason: "must be greater than zero"}
		}
		if kind == KindRefundCompleted {
			return RefundCompleted{
				Meta:                 meta,
				RefundTransactionID:  r.TransactionID,
				PaymentTransactionID: r.PaymentTransactionID,
				Amount:               r.Amount,
				Currency:             r.Currency,
				Reason:               r.Reason,
			}, nil
		}
		return RefundFailed{
			Meta:                 meta,
			RefundTransactionID:  r.TransactionID,
			PaymentTransactionID: r.PaymentTransactionID,
			Amount:               r.Amount,
			Currency:             r.Currency,
			Reason:               r.Reason,
		}, nil

	case KindCustomerUpserted:
		c := n.Customer
		if c == nil || c.CustomerID == "" {
			return nil, &domain.ValidationError{Field: "customer.id", Reason: "required"}
		}
		return CustomerUpserted{Meta: meta, CustomerID: c.CustomerID, Email: c.Email}, nil
	}

	return Unhandled{Meta: meta, Status: n.Status()}, nil
}
