package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/logging"
)

type historyReader interface {
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.StatusHistory, error)
}

type refundReader interface {
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.Refund, error)
}

type webhookEventReader interface {
	Get(ctx context.Context, provider, eventID string) (*domain.WebhookEvent, error)
	ListDeliveries(ctx context.Context, provider, eventID string) ([]domain.WebhookDelivery, error)
}

type commissionBook interface {
	Get(ctx context.Context, paymentID uuid.UUID) (*domain.Commission, error)
	MarkPaid(ctx context.Context, ids []uuid.UUID) ([]domain.Commission, error)
}

// AdminHandler serves the read side of reconciliation plus commission
// payouts.
type AdminHandler struct {
	history     historyReader
	refunds     refundReader
	events      webhookEventReader
	commissions commissionBook
}

func NewAdminHandler(history historyReader, refunds refundReader, events webhookEventReader, commissions commissionBook) *AdminHandler {
	return &AdminHandler{history: history, refunds: refunds, events: events, commissions: commissions}
}

type historyDTO struct {
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Reason         string    `json:"reason"`
	Actor          string    `json:"actor"`
	CreatedAt      time.Time `json:"created_at"`
}

type commissionDTO struct {
	ID               uuid.UUID       `json:"id"`
	BookingID        uuid.UUID       `json:"booking_id"`
	PaymentID        uuid.UUID       `json:"payment_id"`
	BaseAmount       decimal.Decimal `json:"base_amount"`
	Rate             decimal.Decimal `json:"rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	ReversedAmount   decimal.Decimal `json:"reversed_amount"`
	HotelEarnings    decimal.Decimal `json:"hotel_earnings"`
	Status           string          `json:"status"`
	EarnedAt         *time.Time      `json:"earned_at,omitempty"`
	ReversedAt       *time.Time      `json:"reversed_at,omitempty"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
}

func toCommissionDTO(c *domain.Commission) commissionDTO {
	return commissionDTO{
		ID:               c.ID,
		BookingID:        c.BookingID,
		PaymentID:        c.PaymentID,
		BaseAmount:       c.BaseAmount,
		Rate:             c.Rate,
		CommissionAmount: c.CommissionAmount,
		ReversedAmount:   c.ReversedAmount,
		HotelEarnings:    c.HotelEarnings(),
		Status:           string(c.Status),
		EarnedAt:         c.EarnedAt,
		ReversedAt:       c.ReversedAt,
		PaidAt:           c.PaidAt,
	}
}

type deliveryDTO struct {
	Outcome    string    `json:"outcome"`
	Detail     *string   `json:"detail,omitempty"`
	LatencyMS  int64     `json:"latency_ms"`
	ReceivedAt time.Time `json:"received_at"`
}

type webhookEventDTO struct {
	Provider       string          `json:"provider"`
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	PayloadSummary json.RawMessage `json:"payload_summary,omitempty"`
	Processed      bool            `json:"processed"`
	Outcome        *string         `json:"outcome,omitempty"`
	OutcomeDetail  *string         `json:"outcome_detail,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	Deliveries     []deliveryDTO   `json:"deliveries"`
}

func (h *AdminHandler) BookingHistory(w http.ResponseWriter, r *http.Request) {
	bookingID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	entries, err := h.history.ListByBooking(r.Context(), bookingID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list booking history", "error", err, "booking_id", bookingID)
		RespondDomainError(w, err)
		return
	}

	out := make([]historyDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyDTO{
			PreviousStatus: string(e.PreviousStatus),
			NewStatus:      string(e.NewStatus),
			Reason:         e.Reason,
			Actor:          e.Actor,
			CreatedAt:      e.CreatedAt,
		})
	}
	RespondSuccess(w, http.StatusOK, out)
}

func (h *AdminHandler) PaymentCommission(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	c, err := h.commissions.Get(r.Context(), paymentID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("commission lookup failed", "error", err, "payment_id", paymentID)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toCommissionDTO(c))
}

func (h *AdminHandler) PaymentRefunds(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	refunds, err := h.refunds.ListByPayment(r.Context(), paymentID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list refunds", "error", err, "payment_id", paymentID)
		RespondDomainError(w, err)
		return
	}

	out := make([]refundDTO, 0, len(refunds))
	for i := range refunds {
		out = append(out, toRefundDTO(&refunds[i]))
	}
	RespondSuccess(w, http.StatusOK, out)
}

func (h *AdminHandler) WebhookEvent(w http.ResponseWriter, r *http.Request) {
	provider, eventID := r.PathValue("provider"), r.PathValue("eventId")

	ev, err := h.events.Get(r.Context(), provider, eventID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("webhook event lookup failed", "error", err, "provider", provider, "event_id", eventID)
		RespondDomainError(w, err)
		return
	}
	deliveries, err := h.events.ListDeliveries(r.Context(), provider, eventID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list webhook deliveries", "error", err)
		RespondDomainError(w, err)
		return
	}

	dto := webhookEventDTO{
		Provider:       ev.Provider,
		EventID:        ev.EventID,
		EventType:      ev.EventType,
		PayloadSummary: ev.PayloadSummary,
		Processed:      ev.Processed,
		OutcomeDetail:  ev.OutcomeDetail,
		ReceivedAt:     ev.ReceivedAt,
		ProcessedAt:    ev.ProcessedAt,
		Deliveries:     make([]deliveryDTO, 0, len(deliveries)),
	}
	if ev.Outcome != nil {
		o := string(*ev.Outcome)
		dto.Outcome = &o
	}
	for _, d := range deliveries {
		dto.Deliveries = append(dto.Deliveries, deliveryDTO{
			Outcome:    string(d.Outcome),
			Detail:     d.Detail,
			LatencyMS:  d.LatencyMS,
			ReceivedAt: d.ReceivedAt,
		})
	}
	RespondSuccess(w, http.StatusOK, dto)
}

type payoutRequest struct {
	CommissionIDs []string `json:"commission_ids"`
}

func (r payoutRequest) Validate() []FieldError {
	if len(r.CommissionIDs) == 0 {
		return []FieldError{{Field: "commission_ids", Message: "required"}}
	}
	var errs []FieldError
	for _, id := range r.CommissionIDs {
		if _, err := uuid.Parse(id); err != nil {
			errs = append(errs, FieldError{Field: "commission_ids", Message: "must contain valid UUIDs"})
			break
		}
	}
	return errs
}

// Payout marks earned commissions as paid. Ids that are not earned are left
// out of the response.
func (h *AdminHandler) Payout(w http.ResponseWriter, r *http.Request) {
	var req payoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	ids := make([]uuid.UUID, 0, len(req.CommissionIDs))
	for _, id := range req.CommissionIDs {
		ids = append(ids, uuid.MustParse(id))
	}

	paid, err := h.commissions.MarkPaid(r.Context(), ids)
	if err != nil {
		logging.FromContext(r.Context()).Error("commission payout failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	out := make([]commissionDTO, 0, len(paid))
	for i := range paid {
		out = append(out, toCommissionDTO(&paid[i]))
	}
	logging.FromContext(r.Context()).Info("commissions paid out", "requested", len(ids), "paid", len(paid))
	RespondSuccess(w, http.StatusOK, out)
}
