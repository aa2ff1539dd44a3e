package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
)

const webhookEventColumns = `id, provider, event_id, event_type, payload_summary,
	received_at, processed, outcome, outcome_detail, processed_at`

// WebhookEventRepository is the idempotency ledger plus the delivery log.
type WebhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// RecordIfNew inserts the ledger row unless (provider, event_id) already
// exists. A concurrent insert of the same key blocks on the unique index
// until the other transaction finishes, so at most one caller sees true.
func (r *WebhookEventRepository) RecordIfNew(ctx context.Context, tx *sql.Tx, event *domain.WebhookEvent) (bool, error) {
	var id uuid.UUID
	err := tx.QueryRowContext(ctx,
		`INSERT INTO webhook_events (id, provider, event_id, event_type, payload_summary, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider, event_id) DO NOTHING
		RETURNING id`,
		event.ID, event.Provider, event.EventID, event.EventType, nullJSON(event.PayloadSummary), event.ReceivedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("RecordIfNew: %w", err)
	}
	return true, nil
}

// SetOutcome attaches the terminal outcome. It only fills an unprocessed row,
// so a recorded outcome is never overwritten.
func (r *WebhookEventRepository) SetOutcome(ctx context.Context, tx *sql.Tx, provider, eventID string, outcome domain.WebhookOutcome, detail string, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE webhook_events SET processed = true, outcome = $1, outcome_detail = $2, processed_at = $3
		WHERE provider = $4 AND event_id = $5 AND processed = false`,
		outcome, nullString(detail), at, provider, eventID,
	)
	if err != nil {
		return fmt.Errorf("SetOutcome: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetOutcome: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("SetOutcome: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *WebhookEventRepository) Get(ctx context.Context, provider, eventID string) (*domain.WebhookEvent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events WHERE provider = $1 AND event_id = $2`,
		provider, eventID,
	)
	e, err := scanWebhookEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return e, nil
}

func (r *WebhookEventRepository) AppendDelivery(ctx context.Context, d *domain.WebhookDelivery) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, provider, event_id, outcome, detail, latency_ms, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.Provider, d.EventID, d.Outcome, d.Detail, d.LatencyMS, d.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("AppendDelivery: %w", err)
	}
	return nil
}

func (r *WebhookEventRepository) ListDeliveries(ctx context.Context, provider, eventID string) ([]domain.WebhookDelivery, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, provider, event_id, outcome, detail, latency_ms, received_at
		FROM webhook_deliveries WHERE provider = $1 AND event_id = $2 ORDER BY received_at, id`,
		provider, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListDeliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []domain.WebhookDelivery{}
	for rows.Next() {
		var d domain.WebhookDelivery
		if err := rows.Scan(&d.ID, &d.Provider, &d.EventID, &d.Outcome, &d.Detail, &d.LatencyMS, &d.ReceivedAt); err != nil {
			return nil, fmt.Errorf("ListDeliveries: scan: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListDeliveries: rows: %w", err)
	}
	return deliveries, nil
}

func scanWebhookEvent(s scanner) (*domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	var summary []byte
	err := s.Scan(
		&e.ID, &e.Provider, &e.EventID, &e.EventType, &summary,
		&e.ReceivedAt, &e.Processed, &e.Outcome, &e.OutcomeDetail, &e.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	e.PayloadSummary = summary
	return &e, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
