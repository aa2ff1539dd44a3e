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

const paymentColumns = `id, booking_id, amount, currency, status, provider,
	provider_transaction_id, error_code, error_message,
	created_at, updated_at, completed_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (
			id, booking_id, amount, currency, status, provider,
			provider_transaction_id, error_code, error_message,
			created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		payment.ID, payment.BookingID, payment.Amount, payment.Currency, payment.Status, payment.Provider,
		payment.ProviderTransactionID, payment.ErrorCode, payment.ErrorMessage,
		payment.CreatedAt, payment.UpdatedAt, payment.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateTransaction)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payment, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return p, nil
}

// GetByTransactionIDForUpdate locks the payment a provider event refers to.
func (r *PaymentRepository) GetByTransactionIDForUpdate(ctx context.Context, tx *sql.Tx, transactionID string) (*domain.Payment, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider_transaction_id = $1 FOR UPDATE`, transactionID,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByTransactionIDForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByTransactionIDForUpdate: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) ListByBooking(ctx context.Context, tx *sql.Tx, bookingID uuid.UUID) ([]domain.Payment, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1 ORDER BY created_at, id`, bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByBooking: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByBooking: scan: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByBooking: rows: %w", err)
	}
	return payments, nil
}

func (r *PaymentRepository) UpdateStatus(
	ctx context.Context,
	tx *sql.Tx,
	id uuid.UUID,
	status domain.PaymentStatus,
	errorCode, errorMessage *string,
	completedAt *time.Time,
) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = $1,
			error_code = COALESCE($2, error_code),
			error_message = COALESCE($3, error_message),
			completed_at = COALESCE($4, completed_at),
			updated_at = now()
		WHERE id = $5`,
		status, errorCode, errorMessage, completedAt, id,
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

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	err := s.Scan(
		&p.ID, &p.BookingID, &p.Amount, &p.Currency, &p.Status, &p.Provider,
		&p.ProviderTransactionID, &p.ErrorCode, &p.ErrorMessage,
		&p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
