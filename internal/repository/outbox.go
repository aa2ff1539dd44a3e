package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
)

const outboxColumns = `id, channel, routing_key, payload, status,
	attempts, last_attempt, last_error, claimed_at, created_at`

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, msg *domain.OutboxMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_outbox (
			id, channel, routing_key, payload, status, attempts, last_attempt, last_error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, msg.Channel, msg.RoutingKey, string(msg.Payload), msg.Status,
		msg.Attempts, msg.LastAttempt, msg.LastError, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Enqueue: %w", err)
	}
	return nil
}

// ClaimPending moves up to limit rows to in_flight and returns them. Rows
// stuck in_flight longer than lease belong to a relay that died and are
// claimed again. SKIP LOCKED keeps concurrent relays off the same rows; the
// row locks last only as long as tx, which the caller commits before
// publishing.
func (r *OutboxRepository) ClaimPending(ctx context.Context, tx *sql.Tx, limit int, lease time.Duration) ([]domain.OutboxMessage, error) {
	rows, err := tx.QueryContext(ctx,
		`UPDATE notification_outbox SET status = $1, claimed_at = now()
		WHERE id IN (
			SELECT id FROM notification_outbox
			WHERE status = $2 OR (status = $1 AND claimed_at < now() - make_interval(secs => $3))
			ORDER BY created_at LIMIT $4 FOR UPDATE SKIP LOCKED
		)
		RETURNING `+outboxColumns,
		domain.OutboxStatusInFlight, domain.OutboxStatusPending, lease.Seconds(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimPending: %w", err)
	}
	defer rows.Close()

	var msgs []domain.OutboxMessage
	for rows.Next() {
		m, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("ClaimPending: scan: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimPending: rows: %w", err)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

func (r *OutboxRepository) MarkDispatched(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE notification_outbox SET status = $1, attempts = attempts + 1, last_attempt = now(), last_error = NULL,
			claimed_at = NULL
		WHERE id = $2 AND status = $3`,
		domain.OutboxStatusDispatched, id, domain.OutboxStatusInFlight,
	)
	if err != nil {
		return fmt.Errorf("MarkDispatched: %w", err)
	}
	return checkAffected(res, "MarkDispatched")
}

// MarkAttemptFailed records a failed relay attempt and releases the row back
// to pending, or gives up on it once maxAttempts is reached.
func (r *OutboxRepository) MarkAttemptFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, reason string, maxAttempts int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE notification_outbox SET attempts = attempts + 1, last_attempt = now(), last_error = $1,
			claimed_at = NULL, status = CASE WHEN attempts + 1 >= $2 THEN $3 ELSE $4 END
		WHERE id = $5 AND status = $6`,
		reason, maxAttempts, domain.OutboxStatusFailed, domain.OutboxStatusPending, id, domain.OutboxStatusInFlight,
	)
	if err != nil {
		return fmt.Errorf("MarkAttemptFailed: %w", err)
	}
	return checkAffected(res, "MarkAttemptFailed")
}

func (r *OutboxRepository) CountByStatus(ctx context.Context, channel domain.OutboxChannel, status domain.OutboxStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM notification_outbox WHERE channel = $1 AND status = $2`,
		channel, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountByStatus: %w", err)
	}
	return n, nil
}

func checkAffected(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func scanOutbox(s scanner) (*domain.OutboxMessage, error) {
	var m domain.OutboxMessage
	var payload []byte
	err := s.Scan(
		&m.ID, &m.Channel, &m.RoutingKey, &payload, &m.Status,
		&m.Attempts, &m.LastAttempt, &m.LastError, &m.ClaimedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Payload = payload
	return &m, nil
}
