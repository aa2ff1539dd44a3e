package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
)

// StatusHistoryRepository only appends; the table rejects updates and deletes.
type StatusHistoryRepository struct {
	db *sql.DB
}

func NewStatusHistoryRepository(db *sql.DB) *StatusHistoryRepository {
	return &StatusHistoryRepository{db: db}
}

func (r *StatusHistoryRepository) Append(ctx context.Context, tx *sql.Tx, h *domain.StatusHistory) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO booking_status_history (id, booking_id, previous_status, new_status, reason, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.ID, h.BookingID, h.PreviousStatus, h.NewStatus, h.Reason, h.Actor, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

func (r *StatusHistoryRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.StatusHistory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, booking_id, previous_status, new_status, reason, actor, created_at
		FROM booking_status_history WHERE booking_id = $1 ORDER BY created_at, id`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByBooking: %w", err)
	}
	defer rows.Close()

	history := []domain.StatusHistory{}
	for rows.Next() {
		var h domain.StatusHistory
		if err := rows.Scan(&h.ID, &h.BookingID, &h.PreviousStatus, &h.NewStatus, &h.Reason, &h.Actor, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListByBooking: scan: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByBooking: rows: %w", err)
	}
	return history, nil
}
