package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
)

const refundColumns = `id, payment_id, booking_id, amount, currency, status, reason,
	provider_transaction_id, created_at, updated_at, completed_at`

type RefundRepository struct {
	db *sql.DB
}

func NewRefundRepository(db *sql.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, tx *sql.Tx, refund *domain.Refund) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO refunds (
			id, payment_id, booking_id, amount, currency, status, reason,
			provider_transaction_id, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		refund.ID, refund.PaymentID, refund.BookingID, refund.Amount, refund.Currency, refund.Status, refund.Reason,
		refund.ProviderTransactionID, refund.CreatedAt, refund.UpdatedAt, refund.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateTransaction)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *RefundRepository) GetByTransactionIDForUpdate(ctx context.Context, tx *sql.Tx, transactionID string) (*domain.Refund, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE provider_transaction_id = $1 FOR UPDATE`, transactionID,
	)
	rf, err := scanRefund(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByTransactionIDForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByTransactionIDForUpdate: %w", err)
	}
	return rf, nil
}

func (r *RefundRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.Refund, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE payment_id = $1 ORDER BY created_at, id`, paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByPayment: %w", err)
	}
	defer rows.Close()

	var refunds []domain.Refund
	for rows.Next() {
		rf, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByPayment: scan: %w", err)
		}
		refunds = append(refunds, *rf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByPayment: rows: %w", err)
	}
	return refunds, nil
}

// SumByStatus totals the payment's refunds in any of statuses, skipping
// exclude (pass uuid.Nil to include all).
func (r *RefundRepository) SumByStatus(ctx context.Context, tx *sql.Tx, paymentID, exclude uuid.UUID, statuses ...domain.RefundStatus) (decimal.Decimal, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	var total decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM refunds
		WHERE payment_id = $1 AND id <> $2 AND status = ANY($3)`,
		paymentID, exclude, stringArray(names),
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("SumByStatus: %w", err)
	}
	return total, nil
}

func (r *RefundRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, refund *domain.Refund) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE refunds SET status = $1, completed_at = $2, updated_at = now()
		WHERE id = $3`,
		refund.Status, refund.CompletedAt, refund.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func scanRefund(s scanner) (*domain.Refund, error) {
	var rf domain.Refund
	err := s.Scan(
		&rf.ID, &rf.PaymentID, &rf.BookingID, &rf.Amount, &rf.Currency, &rf.Status, &rf.Reason,
		&rf.ProviderTransactionID, &rf.CreatedAt, &rf.UpdatedAt, &rf.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rf, nil
}
