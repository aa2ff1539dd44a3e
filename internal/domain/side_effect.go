package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	NotificationBookingConfirmed     NotificationKind = "booking.confirmed"
	NotificationBookingPaymentFailed NotificationKind = "booking.payment_failed"
	NotificationBookingRefunded      NotificationKind = "booking.refunded"
	NotificationRefundPartial        NotificationKind = "booking.refund_partial"
	NotificationRefundFailed         NotificationKind = "booking.refund_failed"
)

// Notification is a guest-facing message emitted by a committed transition.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	BookingID  uuid.UUID        `json:"booking_id"`
	GuestEmail string           `json:"guest_email"`
	Data       map[string]any   `json:"data,omitempty"`
}

// AuditRecord describes one applied webhook for the audit stream.
type AuditRecord struct {
	Provider   string          `json:"provider"`
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	Outcome    WebhookOutcome  `json:"outcome"`
	BookingID  *uuid.UUID      `json:"booking_id,omitempty"`
	PaymentID  *uuid.UUID      `json:"payment_id,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type OutboxChannel string

const (
	OutboxChannelNotification OutboxChannel = "notification"
	OutboxChannelAudit        OutboxChannel = "audit"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusInFlight   OutboxStatus = "in_flight"
	OutboxStatusDispatched OutboxStatus = "dispatched"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// OutboxMessage holds a side effect whose primary sink was unavailable.
type OutboxMessage struct {
	ID          uuid.UUID
	Channel     OutboxChannel
	RoutingKey  string
	Payload     json.RawMessage
	Status      OutboxStatus
	Attempts    int
	LastAttempt *time.Time
	LastError   *string
	ClaimedAt   *time.Time
	CreatedAt   time.Time
}
