package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/logging"
	"github.com/josh-kwaku/stay-reconciler/internal/obs"
	"github.com/josh-kwaku/stay-reconciler/internal/provider"
	"github.com/josh-kwaku/stay-reconciler/internal/signature"
	"github.com/josh-kwaku/stay-reconciler/internal/transition"
	"github.com/josh-kwaku/stay-reconciler/internal/webhook"
)

type WebhookConfig struct {
	AllowUnsigned bool
	MaxEventAge   time.Duration
	MaxClockSkew  time.Duration
}

// WebhookResult describes how one delivery was handled.
type WebhookResult struct {
	Provider  string
	EventID   string
	EventType string
	Kind      webhook.Kind
	Outcome   domain.WebhookOutcome
	Detail    string
	Method    signature.Method
}

// WebhookProcessor runs a delivery through verification, decoding and
// routing, then applies it in one transaction that also records the event in
// the idempotency ledger. Side effects are handed to the dispatcher only
// after that transaction commits.
type WebhookProcessor struct {
	providers   providerRegistry
	events      webhookEventRepository
	payments    paymentRepository
	refunds     refundRepository
	bookings    bookingRepository
	history     historyRepository
	commissions commissionLedger
	rates       rateResolver
	effects     sideEffects
	db          txBeginner
	cfg         WebhookConfig
	now         func() time.Time
}

func NewWebhookProcessor(
	providers providerRegistry,
	events webhookEventRepository,
	payments paymentRepository,
	refunds refundRepository,
	bookings bookingRepository,
	history historyRepository,
	commissions commissionLedger,
	rates rateResolver,
	effects sideEffects,
	db txBeginner,
	cfg WebhookConfig,
) *WebhookProcessor {
	return &WebhookProcessor{
		providers:   providers,
		events:      events,
		payments:    payments,
		refunds:     refunds,
		bookings:    bookings,
		history:     history,
		commissions: commissions,
		rates:       rates,
		effects:     effects,
		db:          db,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Process handles one raw delivery. The returned error is a
// *domain.AuthenticationError, a *domain.ValidationError, an error wrapping
// domain.ErrUnknownProvider, or an infrastructure failure; the result is
// filled as far as processing got.
func (p *WebhookProcessor) Process(ctx context.Context, providerName string, body []byte, header http.Header) (WebhookResult, error) {
	start := time.Now()
	ctx, span := obs.Tracer().Start(ctx, "webhook.process")
	defer span.End()

	log := logging.FromContext(ctx).With("provider", providerName)
	res, err := p.process(logging.WithLogger(ctx, log), providerName, body, header)

	span.SetAttributes(
		attribute.String("webhook.provider", res.Provider),
		attribute.String("webhook.event_id", res.EventID),
		attribute.String("webhook.event_type", res.EventType),
		attribute.String("webhook.outcome", string(res.Outcome)),
	)
	if err != nil && !errors.Is(err, domain.ErrValidation) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	elapsed := time.Since(start)
	wlog := logging.ForWebhook(log, res.EventID, res.EventType, string(res.Outcome), elapsed)
	switch {
	case err == nil && res.Outcome == domain.WebhookOutcomeDuplicate:
		wlog.Info("duplicate webhook, skipped")
	case err == nil:
		wlog.Info("webhook processed")
	case errors.Is(err, domain.ErrValidation):
		wlog.Warn("webhook rejected", "error", err)
	case errors.Is(err, domain.ErrAuthentication), errors.Is(err, domain.ErrUnknownProvider):
		wlog.Warn("webhook refused", "error", err)
	default:
		wlog.Error("webhook processing failed", "error", err)
	}

	if res.EventID != "" && res.Outcome != "" {
		p.appendDelivery(ctx, log, res, elapsed.Milliseconds())
	}
	return res, err
}

func (p *WebhookProcessor) process(ctx context.Context, providerName string, body []byte, header http.Header) (WebhookResult, error) {
	res := WebhookResult{Provider: providerName}
	prov, err := p.providers.Get(providerName)
	if err != nil {
		return res, fmt.Errorf("Process: %w", err)
	}
	res.Provider = prov.Name()

	method, err := p.verify(ctx, prov, body, header)
	res.Method = method
	if err != nil {
		return res, err
	}

	n, err := prov.Decode(body)
	if err != nil {
		res.Outcome = domain.WebhookOutcomeRejected
		res.Detail = err.Error()
		return res, fmt.Errorf("Process: %w", err)
	}
	res.EventID, res.EventType = n.EventID, n.EventType

	now := p.now()
	var rejectErr error
	var ev webhook.Event
	if ok, reason := signature.CheckFreshness(n.OccurredAt, now, p.cfg.MaxEventAge, p.cfg.MaxClockSkew); !ok {
		rejectErr = &domain.ValidationError{Field: "created_at", Reason: reason}
	} else if ev, err = webhook.Route(n); err != nil {
		rejectErr = err
	}
	if ev != nil {
		res.Kind = ev.Kind()
	}

	return p.apply(ctx, n, ev, rejectErr, res)
}

func (p *WebhookProcessor) verify(ctx context.Context, prov provider.Provider, body []byte, header http.Header) (signature.Method, error) {
	if !prov.Configured() {
		if p.cfg.AllowUnsigned {
			logging.FromContext(ctx).Warn("webhook secret not configured, accepting unsigned delivery")
			return signature.MethodBypass, nil
		}
		return signature.MethodNone, &domain.AuthenticationError{Reason: "no webhook secret configured for " + prov.Name()}
	}

	result := prov.Verify(body, header)
	if !result.Valid {
		return result.Method, &domain.AuthenticationError{Reason: result.Reason}
	}
	if result.Method.Degraded() {
		logging.FromContext(ctx).Warn("webhook signature accepted by fallback", "method", result.Method)
	}
	return result.Method, nil
}

// apply records the event and, unless rejectErr is set or the event was
// already seen, decides and persists its transition in the same transaction.
func (p *WebhookProcessor) apply(ctx context.Context, n webhook.Notification, ev webhook.Event, rejectErr error, res WebhookResult) (WebhookResult, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("Process: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := p.now()
	isNew, err := p.events.RecordIfNew(ctx, tx, &domain.WebhookEvent{
		ID:             uuid.New(),
		Provider:       n.Provider,
		EventID:        n.EventID,
		EventType:      n.EventType,
		PayloadSummary: summarize(n, ev),
		ReceivedAt:     now,
	})
	if err != nil {
		return res, fmt.Errorf("Process: %w", err)
	}
	if !isNew {
		res.Outcome = domain.WebhookOutcomeDuplicate
		return res, nil
	}

	var plan transition.Plan
	var snap transition.Snapshot
	if rejectErr != nil {
		res.Outcome = domain.WebhookOutcomeRejected
		res.Detail = rejectErr.Error()
	} else {
		snap, err = p.snapshot(ctx, tx, ev)
		if err != nil {
			return res, fmt.Errorf("Process: %w", err)
		}
		plan, err = transition.Decide(snap, ev, now)
		var terr *domain.TransitionError
		var verr *domain.ValidationError
		switch {
		case err == nil:
			res.Outcome, res.Detail = plan.Outcome, plan.Summary
		case errors.As(err, &verr):
			res.Outcome, res.Detail = domain.WebhookOutcomeRejected, verr.Error()
			rejectErr = verr
		case errors.As(err, &terr):
			res.Outcome, res.Detail = domain.WebhookOutcomeNoop, terr.Error()
			logging.FromContext(ctx).Warn("webhook transition not applicable",
				"event_id", n.EventID, "kind", ev.Kind(), "reason", terr.Error())
		default:
			return res, fmt.Errorf("Process: %w", err)
		}
		if err == nil {
			if err := p.persist(ctx, tx, snap, plan); err != nil {
				return res, fmt.Errorf("Process: %w", err)
			}
		}
	}

	if err := p.events.SetOutcome(ctx, tx, n.Provider, n.EventID, res.Outcome, res.Detail, now); err != nil {
		return res, fmt.Errorf("Process: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("Process: commit: %w", err)
	}

	if res.Outcome == domain.WebhookOutcomeApplied && p.effects != nil {
		p.effects.Dispatch(ctx, plan.Notifications, auditRecord(n, res, snap, now))
	}
	if rejectErr != nil {
		return res, fmt.Errorf("Process: %w", rejectErr)
	}
	return res, nil
}

// snapshot locks payment, refund, booking and commission in that order.
func (p *WebhookProcessor) snapshot(ctx context.Context, tx *sql.Tx, ev webhook.Event) (transition.Snapshot, error) {
	var s transition.Snapshot
	if !transition.NeedsPayment(ev) {
		return s, nil
	}
	paymentTxn, refundTxn := references(ev)

	payment, err := p.payments.GetByTransactionIDForUpdate(ctx, tx, paymentTxn)
	if errors.Is(err, domain.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("snapshot: %w", err)
	}
	s.Payment = payment

	exclude := uuid.Nil
	if refundTxn != "" {
		refund, err := p.refunds.GetByTransactionIDForUpdate(ctx, tx, refundTxn)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return s, fmt.Errorf("snapshot: %w", err)
		default:
			s.Refund = refund
			exclude = refund.ID
		}
	}

	booking, err := p.bookings.GetForUpdate(ctx, tx, payment.BookingID)
	if errors.Is(err, domain.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("snapshot: %w", err)
	}
	s.Booking = booking

	if s.Commission, err = p.commissions.ForUpdate(ctx, tx, payment.ID); err != nil {
		return s, fmt.Errorf("snapshot: %w", err)
	}
	if s.RefundedTotal, err = p.refunds.SumByStatus(ctx, tx, payment.ID, exclude, domain.RefundStatusSucceeded); err != nil {
		return s, fmt.Errorf("snapshot: %w", err)
	}
	if s.BookingPayments, err = p.payments.ListByBooking(ctx, tx, booking.ID); err != nil {
		return s, fmt.Errorf("snapshot: %w", err)
	}
	s.Rate = p.rates.RateFor(booking.HotelID)
	return s, nil
}

func (p *WebhookProcessor) persist(ctx context.Context, tx *sql.Tx, s transition.Snapshot, plan transition.Plan) error {
	if c := plan.Payment; c != nil {
		if err := p.payments.UpdateStatus(ctx, tx, s.Payment.ID, c.Status, c.ErrorCode, c.ErrorMessage, c.CompletedAt); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
	}
	if c := plan.Refund; c != nil {
		var err error
		if c.Create {
			err = p.refunds.Create(ctx, tx, &c.Refund)
		} else {
			err = p.refunds.UpdateStatus(ctx, tx, &c.Refund)
		}
		if err != nil {
			return fmt.Errorf("persist: %w", err)
		}
	}
	if c := plan.Booking; c != nil {
		if err := p.bookings.UpdateStatus(ctx, tx, s.Booking.ID, c.Status, c.PaymentStatus, c.CancelledAt, c.CancellationReason); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
		if c.History != nil {
			if err := p.history.Append(ctx, tx, c.History); err != nil {
				return fmt.Errorf("persist: %w", err)
			}
		}
	}
	switch plan.Commission.Op {
	case transition.CommissionCreate, transition.CommissionUpdate:
		c := plan.Commission.Commission
		if err := p.commissions.Apply(ctx, tx, &c, plan.Commission.Op == transition.CommissionCreate); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
	}
	return nil
}

func (p *WebhookProcessor) appendDelivery(ctx context.Context, log *slog.Logger, res WebhookResult, latency int64) {
	d := &domain.WebhookDelivery{
		ID:         uuid.New(),
		Provider:   res.Provider,
		EventID:    res.EventID,
		Outcome:    res.Outcome,
		LatencyMS:  latency,
		ReceivedAt: p.now(),
	}
	if res.Detail != "" {
		d.Detail = &res.Detail
	}
	if err := p.events.AppendDelivery(context.WithoutCancel(ctx), d); err != nil {
		log.Error("failed to append webhook delivery", "event_id", res.EventID, "error", err)
	}
}

func references(ev webhook.Event) (payment, refund string) {
	switch e := ev.(type) {
	case webhook.PaymentSucceeded:
		return e.TransactionID, ""
	case webhook.PaymentFailed:
		return e.TransactionID, ""
	case webhook.RefundCompleted:
		return e.PaymentTransactionID, e.RefundTransactionID
	case webhook.RefundFailed:
		return e.PaymentTransactionID, e.RefundTransactionID
	}
	return "", ""
}

func summarize(n webhook.Notification, ev webhook.Event) json.RawMessage {
	summary := map[string]any{"status": n.Status()}
	if ev != nil {
		summary["kind"] = ev.Kind()
	}
	switch {
	case n.Payment != nil:
		summary["payment_id"] = n.Payment.TransactionID
		if n.Payment.Amount != nil {
			summary["amount"] = n.Payment.Amount.StringFixed(2)
		}
	case n.Refund != nil:
		summary["refund_id"] = n.Refund.TransactionID
		summary["payment_id"] = n.Refund.PaymentTransactionID
		summary["amount"] = n.Refund.Amount.StringFixed(2)
	case n.Customer != nil:
		summary["customer_id"] = n.Customer.CustomerID
	}
	b, err := json.Marshal(summary)
	if err != nil {
		return nil
	}
	return b
}

func auditRecord(n webhook.Notification, res WebhookResult, s transition.Snapshot, now time.Time) *domain.AuditRecord {
	rec := &domain.AuditRecord{
		Provider:   n.Provider,
		EventID:    n.EventID,
		EventType:  n.EventType,
		Outcome:    res.Outcome,
		OccurredAt: now,
	}
	if s.Booking != nil {
		id := s.Booking.ID
		rec.BookingID = &id
	}
	if s.Payment != nil {
		id := s.Payment.ID
		rec.PaymentID = &id
	}
	if detail, err := json.Marshal(map[string]string{"kind": string(res.Kind), "summary": res.Detail}); err == nil {
		rec.Detail = detail
	}
	return rec
}
