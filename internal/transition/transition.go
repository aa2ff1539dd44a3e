// Package transition decides how a typed webhook event moves a payment, its
// refund, its booking and its commission. Decide is a pure function over a
// locked snapshot; the caller persists the returned Plan inside the same
// transaction that took the locks.
package transition

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/stay-reconciler/internal/commission"
	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/webhook"
)

const ActorWebhook = "webhook"

// Snapshot is the state an event is decided against. Payment and Booking are
// nil when the event carries no payment reference.
type Snapshot struct {
	Payment    *domain.Payment
	Booking    *domain.Booking
	Commission *domain.Commission
	// Refund is the row matching the event's refund transaction id, if any.
	Refund *domain.Refund
	// RefundedTotal sums succeeded refunds of Payment, excluding Refund.
	RefundedTotal decimal.Decimal
	// BookingPayments lists every payment of Booking, oldest first, and
	// includes Payment itself.
	BookingPayments []domain.Payment
	// Rate is used only when a succeeded payment has no commission row yet.
	Rate decimal.Decimal
}

type CommissionOp string

const (
	CommissionNone   CommissionOp = "none"
	CommissionCreate CommissionOp = "create"
	CommissionUpdate CommissionOp = "update"
)

type PaymentChange struct {
	Status       domain.PaymentStatus
	ErrorCode    *string
	ErrorMessage *string
	CompletedAt  *time.Time
}

// RefundChange carries the full refund row to insert (Create) or update.
type RefundChange struct {
	Create bool
	Refund domain.Refund
}

type BookingChange struct {
	Status             domain.BookingStatus
	PaymentStatus      domain.BookingPaymentStatus
	CancelledAt        *time.Time
	CancellationReason *string
	// History is nil when nothing is appended.
	History *domain.StatusHistory
}

type CommissionChange struct {
	Op         CommissionOp
	Commission domain.Commission
	Reversed   decimal.Decimal
}

// Plan is everything one event changes. Nil members are left untouched.
type Plan struct {
	Outcome       domain.WebhookOutcome
	Summary       string
	Payment       *PaymentChange
	Refund        *RefundChange
	Booking       *BookingChange
	Commission    CommissionChange
	Notifications []domain.Notification
}

// NeedsPayment reports whether ev can only be decided with a locked payment.
func NeedsPayment(ev webhook.Event) bool {
	switch ev.Kind() {
	case webhook.KindPaymentSucceeded, webhook.KindPaymentFailed,
		webhook.KindRefundCompleted, webhook.KindRefundFailed:
		return true
	}
	return false
}

// Decide returns the plan for ev. Events that cannot apply to the snapshot
// return a *domain.TransitionError; events whose data contradicts the stored
// payment return a *domain.ValidationError. Either way nothing is planned.
func Decide(s Snapshot, ev webhook.Event, now time.Time) (Plan, error) {
	switch e := ev.(type) {
	case webhook.Unhandled:
		return Plan{Outcome: domain.WebhookOutcomeIgnored, Summary: fmt.Sprintf("unhandled %s (status %q)", e.EventType, e.Status)}, nil
	case webhook.CustomerUpserted:
		return Plan{Outcome: domain.WebhookOutcomeApplied, Summary: "customer " + e.CustomerID + " upserted"}, nil
	}

	if s.Payment == nil {
		return Plan{}, &domain.TransitionError{Entity: "payment", From: "missing", Event: string(ev.Kind()), Reason: "no payment with this provider transaction id"}
	}
	if s.Booking == nil {
		return Plan{}, &domain.TransitionError{Entity: "booking", From: "missing", Event: string(ev.Kind()), Reason: "payment has no booking"}
	}

	switch e := ev.(type) {
	case webhook.PaymentSucceeded:
		return paymentSucceeded(s, e, now)
	case webhook.PaymentFailed:
		return paymentFailed(s, e, now)
	case webhook.RefundCompleted:
		return refundCompleted(s, e, now)
	case webhook.RefundFailed:
		return refundFailed(s, e, now)
	}
	return Plan{}, fmt.Errorf("Decide: unexpected event kind %s", ev.Kind())
}

func paymentSucceeded(s Snapshot, e webhook.PaymentSucceeded, now time.Time) (Plan, error) {
	p, b := s.Payment, s.Booking
	if p.Status != domain.PaymentStatusPending {
		return Plan{}, &domain.TransitionError{Entity: "payment", From: string(p.Status), Event: string(e.Kind()), Reason: "payment is not pending"}
	}
	if e.Amount != nil && !e.Amount.Equal(p.Amount) {
		return Plan{}, &domain.ValidationError{Field: "amount", Reason: fmt.Sprintf("event amount %s does not match payment amount %s", e.Amount, p.Amount)}
	}
	if e.Currency != "" && domain.Currency(e.Currency) != p.Currency {
		return Plan{}, &domain.ValidationError{Field: "currency", Reason: fmt.Sprintf("event currency %s does not match payment currency %s", e.Currency, p.Currency)}
	}

	next := b.Status
	switch b.Status {
	case domain.BookingStatusPending, domain.BookingStatusPaymentFailed:
		next = domain.BookingStatusConfirmed
	case domain.BookingStatusConfirmed, domain.BookingStatusCheckedIn:
	default:
		return Plan{}, &domain.TransitionError{Entity: "booking", From: string(b.Status), Event: string(e.Kind()), Reason: "booking can no longer be confirmed"}
	}

	plan := Plan{
		Outcome: domain.WebhookOutcomeApplied,
		Summary: "payment succeeded",
		Payment: &PaymentChange{Status: domain.PaymentStatusSucceeded, CompletedAt: &now},
	}
	plan.Booking = bookingChange(s, next, domain.PaymentStatusSucceeded, "Payment completed successfully", now)

	switch {
	case s.Commission == nil:
		c, err := commission.New(b.ID, p.ID, p.Amount, s.Rate, now)
		if err != nil {
			return Plan{}, fmt.Errorf("paymentSucceeded: %w", err)
		}
		if c, err = commission.Earn(c, now); err != nil {
			return Plan{}, fmt.Errorf("paymentSucceeded: %w", err)
		}
		plan.Commission = CommissionChange{Op: CommissionCreate, Commission: c}
	case s.Commission.Status == domain.CommissionStatusPending:
		c, err := commission.Earn(*s.Commission, now)
		if err != nil {
			return Plan{}, fmt.Errorf("paymentSucceeded: %w", err)
		}
		plan.Commission = CommissionChange{Op: CommissionUpdate, Commission: c}
	}

	if next != b.Status {
		plan.Notifications = append(plan.Notifications, notification(domain.NotificationBookingConfirmed, b, map[string]any{
			"amount":   p.Amount.StringFixed(2),
			"currency": string(p.Currency),
		}))
	}
	return plan, nil
}

func paymentFailed(s Snapshot, e webhook.PaymentFailed, now time.Time) (Plan, error) {
	p, b := s.Payment, s.Booking
	if p.Status != domain.PaymentStatusPending {
		return Plan{}, &domain.TransitionError{Entity: "payment", From: string(p.Status), Event: string(e.Kind()), Reason: "payment is not pending"}
	}
	if b.Status.IsFinal() {
		return Plan{}, &domain.TransitionError{Entity: "booking", From: string(b.Status), Event: string(e.Kind()), Reason: "booking is final"}
	}

	next := b.Status
	if b.Status == domain.BookingStatusPending {
		next = domain.BookingStatusPaymentFailed
	}

	code := e.ErrorCode
	if code == "" {
		code = "UNKNOWN"
	}
	change := &PaymentChange{Status: domain.PaymentStatusFailed, ErrorCode: &code}
	if e.ErrorMessage != "" {
		msg := e.ErrorMessage
		change.ErrorMessage = &msg
	}

	plan := Plan{
		Outcome: domain.WebhookOutcomeApplied,
		Summary: "payment failed: " + code,
		Payment: change,
	}
	plan.Booking = bookingChange(s, next, domain.PaymentStatusFailed, "Payment failed: "+code, now)

	if s.Commission != nil && s.Commission.Status == domain.CommissionStatusPending {
		c, err := commission.Void(*s.Commission, now)
		if err != nil {
			return Plan{}, fmt.Errorf("paymentFailed: %w", err)
		}
		plan.Commission = CommissionChange{Op: CommissionUpdate, Commission: c}
	}

	if next != b.Status {
		plan.Notifications = append(plan.Notifications, notification(domain.NotificationBookingPaymentFailed, b, map[string]any{
			"error_code": code,
		}))
	}
	return plan, nil
}

func refundCompleted(s Snapshot, e webhook.RefundCompleted, now time.Time) (Plan, error) {
	p, b := s.Payment, s.Booking
	if p.Status != domain.PaymentStatusSucceeded {
		return Plan{}, &domain.TransitionError{Entity: "payment", From: string(p.Status), Event: string(e.Kind()), Reason: "refunds apply only to succeeded payments"}
	}
	if e.Currency != "" && domain.Currency(e.Currency) != p.Currency {
		return Plan{}, &domain.ValidationError{Field: "currency", Reason: fmt.Sprintf("refund currency %s does not match payment currency %s", e.Currency, p.Currency)}
	}
	if err := checkExistingRefund(s, e.Kind(), e.Amount); err != nil {
		return Plan{}, err
	}

	cumulative := s.RefundedTotal.Add(e.Amount)
	if cumulative.GreaterThan(p.Amount) {
		return Plan{}, &domain.TransitionError{
			Entity: "payment", From: string(p.Status), Event: string(e.Kind()),
			Reason: fmt.Sprintf("refunds %s would exceed payment amount %s", cumulative, p.Amount),
		}
	}
	full := cumulative.Equal(p.Amount)

	plan := Plan{Outcome: domain.WebhookOutcomeApplied}
	plan.Refund = refundChange(s, e.RefundTransactionID, e.Amount, e.Reason, domain.RefundStatusSucceeded, now)

	paymentStatus := p.Status
	next := b.Status
	var reason string
	if full {
		paymentStatus = domain.PaymentStatusRefunded
		plan.Payment = &PaymentChange{Status: domain.PaymentStatusRefunded}
		if b.Status == domain.BookingStatusConfirmed || b.Status == domain.BookingStatusCheckedIn {
			next = domain.BookingStatusRefunded
		}
		reason = fmt.Sprintf("Full refund of %s %s completed", p.Amount.StringFixed(2), p.Currency)
		plan.Summary = "full refund completed"
	} else {
		reason = fmt.Sprintf("Partial refund of %s %s completed", e.Amount.StringFixed(2), p.Currency)
		plan.Summary = "partial refund completed"
	}

	plan.Booking = bookingChange(s, next, paymentStatus, reason, now)
	// A partial refund leaves the status alone but is still recorded.
	if plan.Booking.History == nil {
		plan.Booking.History = history(b, b.Status, reason, now)
	}
	if full && next == domain.BookingStatusRefunded {
		plan.Booking.CancelledAt = &now
		r := "refunded"
		plan.Booking.CancellationReason = &r
	}

	if s.Commission != nil && (s.Commission.Status == domain.CommissionStatusEarned || s.Commission.Status == domain.CommissionStatusPaid) {
		c, reversed, err := commission.Reverse(*s.Commission, e.Amount, full, now)
		if err != nil {
			return Plan{}, fmt.Errorf("refundCompleted: %w", err)
		}
		plan.Commission = CommissionChange{Op: CommissionUpdate, Commission: c, Reversed: reversed}
	}

	kind := domain.NotificationRefundPartial
	if full {
		kind = domain.NotificationBookingRefunded
	}
	plan.Notifications = append(plan.Notifications, notification(kind, b, map[string]any{
		"amount":   e.Amount.StringFixed(2),
		"currency": string(p.Currency),
	}))
	return plan, nil
}

func refundFailed(s Snapshot, e webhook.RefundFailed, now time.Time) (Plan, error) {
	p, b := s.Payment, s.Booking
	if p.Status != domain.PaymentStatusSucceeded && p.Status != domain.PaymentStatusRefunded {
		return Plan{}, &domain.TransitionError{Entity: "payment", From: string(p.Status), Event: string(e.Kind()), Reason: "refunds apply only to succeeded payments"}
	}
	if err := checkExistingRefund(s, e.Kind(), e.Amount); err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Outcome: domain.WebhookOutcomeApplied,
		Summary: "refund failed",
		Refund:  refundChange(s, e.RefundTransactionID, e.Amount, e.Reason, domain.RefundStatusFailed, now),
	}
	plan.Notifications = append(plan.Notifications, notification(domain.NotificationRefundFailed, b, map[string]any{
		"amount":   e.Amount.StringFixed(2),
		"currency": string(p.Currency),
	}))
	return plan, nil
}

func checkExistingRefund(s Snapshot, kind webhook.Kind, amount decimal.Decimal) error {
	r := s.Refund
	if r == nil {
		return nil
	}
	if r.PaymentID != s.Payment.ID {
		return &domain.ValidationError{Field: "refund.payment_id", Reason: "refund belongs to a different payment"}
	}
	if r.Status != domain.RefundStatusPending {
		return &domain.TransitionError{Entity: "refund", From: string(r.Status), Event: string(kind), Reason: "refund is not pending"}
	}
	if !r.Amount.Equal(amount) {
		return &domain.ValidationError{Field: "refund.amount", Reason: fmt.Sprintf("event amount %s does not match refund amount %s", amount, r.Amount)}
	}
	return nil
}

func refundChange(s Snapshot, txnID string, amount decimal.Decimal, reason string, status domain.RefundStatus, now time.Time) *RefundChange {
	if s.Refund != nil {
		r := *s.Refund
		r.Status = status
		r.UpdatedAt = now
		r.CompletedAt = &now
		return &RefundChange{Refund: r}
	}
	r := domain.Refund{
		ID:                    uuid.New(),
		PaymentID:             s.Payment.ID,
		BookingID:             s.Booking.ID,
		Amount:                amount,
		Currency:              s.Payment.Currency,
		Status:                status,
		ProviderTransactionID: txnID,
		CreatedAt:             now,
		UpdatedAt:             now,
		CompletedAt:           &now,
	}
	if reason != "" {
		r.Reason = &reason
	}
	return &RefundChange{Create: true, Refund: r}
}

// bookingChange sets the next status and re-derives paymentStatus with the
// current payment moved to paymentStatus. History is appended only when the
// status moves.
func bookingChange(s Snapshot, next domain.BookingStatus, paymentStatus domain.PaymentStatus, reason string, now time.Time) *BookingChange {
	statuses := make([]domain.PaymentStatus, 0, len(s.BookingPayments)+1)
	seen := false
	for _, bp := range s.BookingPayments {
		if bp.ID == s.Payment.ID {
			statuses = append(statuses, paymentStatus)
			seen = true
			continue
		}
		statuses = append(statuses, bp.Status)
	}
	if !seen {
		statuses = append(statuses, paymentStatus)
	}

	change := &BookingChange{
		Status:        next,
		PaymentStatus: DerivePaymentStatus(statuses),
	}
	if next != s.Booking.Status {
		change.History = history(s.Booking, next, reason, now)
	}
	return change
}

func history(b *domain.Booking, next domain.BookingStatus, reason string, now time.Time) *domain.StatusHistory {
	return &domain.StatusHistory{
		ID:             uuid.New(),
		BookingID:      b.ID,
		PreviousStatus: b.Status,
		NewStatus:      next,
		Reason:         reason,
		Actor:          ActorWebhook,
		CreatedAt:      now,
	}
}

// DerivePaymentStatus computes a booking's paymentStatus from its payments,
// oldest first: paid if any succeeded, else refunded if any was refunded,
// else the latest payment's status.
func DerivePaymentStatus(statuses []domain.PaymentStatus) domain.BookingPaymentStatus {
	if len(statuses) == 0 {
		return domain.BookingPaymentPending
	}
	refunded := false
	for _, st := range statuses {
		switch st {
		case domain.PaymentStatusSucceeded:
			return domain.BookingPaymentPaid
		case domain.PaymentStatusRefunded:
			refunded = true
		}
	}
	if refunded {
		return domain.BookingPaymentRefunded
	}
	if statuses[len(statuses)-1] == domain.PaymentStatusFailed {
		return domain.BookingPaymentFailed
	}
	return domain.BookingPaymentPending
}

func notification(kind domain.NotificationKind, b *domain.Booking, data map[string]any) domain.Notification {
	return domain.Notification{Kind: kind, BookingID: b.ID, GuestEmail: b.GuestEmail, Data: data}
}
