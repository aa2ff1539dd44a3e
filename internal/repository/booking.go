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

const bookingColumns = `id, guest_name, guest_email, guest_phone, hotel_id, room_id,
	check_in, check_out, total_amount, currency, status, payment_status,
	cancelled_at, cancellation_reason, created_at, updated_at`

type BookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, tx *sql.Tx, b *domain.Booking) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (
			id, guest_name, guest_email, guest_phone, hotel_id, room_id,
			check_in, check_out, total_amount, currency, status, payment_status,
			cancelled_at, cancellation_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		b.ID, b.GuestName, b.GuestEmail, b.GuestPhone, b.HotelID, b.RoomID,
		b.CheckIn, b.CheckOut, b.TotalAmount, b.Currency, b.Status, b.PaymentStatus,
		b.CancelledAt, b.CancellationReason, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id,
	)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return b, nil
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Booking, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id,
	)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return b, nil
}

func (r *BookingRepository) UpdateStatus(
	ctx context.Context,
	tx *sql.Tx,
	id uuid.UUID,
	status domain.BookingStatus,
	paymentStatus domain.BookingPaymentStatus,
	cancelledAt *time.Time,
	cancellationReason *string,
) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = $1, payment_status = $2,
			cancelled_at = COALESCE($3, cancelled_at),
			cancellation_reason = COALESCE($4, cancellation_reason),
			updated_at = now()
		WHERE id = $5`,
		status, paymentStatus, cancelledAt, cancellationReason, id,
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

func scanBooking(s scanner) (*domain.Booking, error) {
	var b domain.Booking
	err := s.Scan(
		&b.ID, &b.GuestName, &b.GuestEmail, &b.GuestPhone, &b.HotelID, &b.RoomID,
		&b.CheckIn, &b.CheckOut, &b.TotalAmount, &b.Currency, &b.Status, &b.PaymentStatus,
		&b.CancelledAt, &b.CancellationReason, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
