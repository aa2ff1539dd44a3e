package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookOutcome string

const (
	WebhookOutcomeApplied  WebhookOutcome = "applied"
	WebhookOutcomeIgnored  WebhookOutcome = "ignored"
	WebhookOutcomeRejected WebhookOutcome = "rejected"
	WebhookOutcomeNoop     WebhookOutcome = "noop"
	// Only recorded on deliveries; the ledger row keeps the first outcome.
	WebhookOutcomeDuplicate WebhookOutcome = "duplicate"
)

// WebhookEvent is the idempotency ledger entry, unique per (Provider, EventID).
type WebhookEvent struct {
	ID             uuid.UUID
	Provider       string
	EventID        string
	EventType      string
	PayloadSummary json.RawMessage
	ReceivedAt     time.Time
	Processed      bool
	Outcome        *WebhookOutcome
	OutcomeDetail  *string
	ProcessedAt    *time.Time
}

// WebhookDelivery is an append-only record of one inbound HTTP delivery.
type WebhookDelivery struct {
	ID         uuid.UUID
	Provider   string
	EventID    string
	Outcome    WebhookOutcome
	Detail     *string
	LatencyMS  int64
	ReceivedAt time.Time
}
