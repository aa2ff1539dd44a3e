package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
)

// hotel_earnings is a generated column and is never written.
const commissionColumns = `id, booking_id, payment_id, base_amount, rate,
	commission_amount, reversed_amount, status,
	earned_at, reversed_at, paid_at, created_at, updated_at`

type CommissionRepository struct {
	db *sql.DB
}

func NewCommissionRepository(db *sql.DB) *CommissionRepository {
	return &CommissionRepository{db: db}
}

func (r *CommissionRepository) Create(ctx context.Context, tx *sql.Tx, c *domain.Commission) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO commissions (
			id, booking_id, payment_id, base_amount, rate,
			commission_amount, reversed_amount, status,
			earned_at, reversed_at, paid_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.BookingID, c.PaymentID, c.BaseAmount, c.Rate,
		c.CommissionAmount, c.ReversedAmount, c.Status,
		c.EarnedAt, c.ReversedAt, c.PaidAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *CommissionRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.Commission, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+commissionColumns+` FROM commissions WHERE payment_id = $1`, paymentID,
	)
	c, err := scanCommission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByPaymentID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByPaymentID: %w", err)
	}
	return c, nil
}

func (r *CommissionRepository) GetByPaymentIDForUpdate(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID) (*domain.Commission, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+commissionColumns+` FROM commissions WHERE payment_id = $1 FOR UPDATE`, paymentID,
	)
	c, err := scanCommission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByPaymentIDForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByPaymentIDForUpdate: %w", err)
	}
	return c, nil
}

// Update writes the mutable commission fields.
func (r *CommissionRepository) Update(ctx context.Context, tx *sql.Tx, c *domain.Commission) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE commissions SET commission_amount = $1, reversed_amount = $2, status = $3,
			earned_at = $4, reversed_at = $5, paid_at = $6, updated_at = $7
		WHERE id = $8`,
		c.CommissionAmount, c.ReversedAmount, c.Status,
		c.EarnedAt, c.ReversedAt, c.PaidAt, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Update: %w", domain.ErrNotFound)
	}
	return nil
}

// MarkPaid moves every earned commission in ids to paid with one statement
// and returns the rows it changed. Ids that are not earned are skipped.
func (r *CommissionRepository) MarkPaid(ctx context.Context, tx *sql.Tx, ids []uuid.UUID, paidAt time.Time) ([]domain.Commission, error) {
	rows, err := tx.QueryContext(ctx,
		`UPDATE commissions SET status = $1, paid_at = $2, updated_at = $2
		WHERE id = ANY($3::uuid[]) AND status = $4
		RETURNING `+commissionColumns,
		domain.CommissionStatusPaid, paidAt, uuidArray(ids), domain.CommissionStatusEarned,
	)
	if err != nil {
		return nil, fmt.Errorf("MarkPaid: %w", err)
	}
	defer rows.Close()

	var paid []domain.Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, fmt.Errorf("MarkPaid: scan: %w", err)
		}
		paid = append(paid, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("MarkPaid: rows: %w", err)
	}
	return paid, nil
}

func scanCommission(s scanner) (*domain.Commission, error) {
	var c domain.Commission
	err := s.Scan(
		&c.ID, &c.BookingID, &c.PaymentID, &c.BaseAmount, &c.Rate,
		&c.CommissionAmount, &c.ReversedAmount, &c.Status,
		&c.EarnedAt, &c.ReversedAt, &c.PaidAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func uuidArray(ids []uuid.UUID) any {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = id.String()
	}
	return pq.Array(s)
}

func stringArray(s []string) any {
	return pq.Array(s)
}
