package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/stay-reconciler/internal/commission"
	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/repository"
)

var DefaultHotelID = uuid.MustParse("00000000-0000-0000-0000-00000000a001")

func SeedBooking(t *testing.T, db *sql.DB, status domain.BookingStatus, total string) *domain.Booking {
	t.Helper()

	now := time.Now().UTC()
	b := &domain.Booking{
		ID:            uuid.New(),
		GuestName:     "Ada Guest",
		GuestEmail:    "ada@example.com",
		HotelID:       DefaultHotelID,
		RoomID:        uuid.New(),
		CheckIn:       now.AddDate(0, 0, 14).Truncate(24 * time.Hour),
		CheckOut:      now.AddDate(0, 0, 17).Truncate(24 * time.Hour),
		TotalAmount:   decimal.RequireFromString(total),
		Currency:      domain.CurrencyUSD,
		Status:        status,
		PaymentStatus: domain.BookingPaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	if err := repository.NewBookingRepository(db).Create(context.Background(), tx, b); err != nil {
		_ = tx.Rollback()
		t.Fatalf("seed booking: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return b
}

// SeedPayment inserts a payment and its pending commission at rate.
func SeedPayment(t *testing.T, db *sql.DB, booking *domain.Booking, transactionID, amount, rate string) (*domain.Payment, *domain.Commission) {
	t.Helper()

	now := time.Now().UTC()
	p := &domain.Payment{
		ID:                    uuid.New(),
		BookingID:             booking.ID,
		Amount:                decimal.RequireFromString(amount),
		Currency:              booking.Currency,
		Status:                domain.PaymentStatusPending,
		Provider:              "square",
		ProviderTransactionID: transactionID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	_, err := db.Exec(
		`INSERT INTO payments (id, booking_id, amount, currency, status, provider, provider_transaction_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.BookingID, p.Amount, p.Currency, p.Status, p.Provider, p.ProviderTransactionID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed payment %s: %v", transactionID, err)
	}

	c, err := commission.New(booking.ID, p.ID, p.Amount, decimal.RequireFromString(rate), now)
	if err != nil {
		t.Fatalf("build commission: %v", err)
	}
	_, err = db.Exec(
		`INSERT INTO commissions (id, booking_id, payment_id, base_amount, rate, commission_amount, reversed_amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.BookingID, c.PaymentID, c.BaseAmount, c.Rate, c.CommissionAmount, c.ReversedAmount, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed commission: %v", err)
	}
	return p, &c
}

func SetBookingStatus(t *testing.T, db *sql.DB, bookingID uuid.UUID, status domain.BookingStatus) {
	t.Helper()

	if _, err := db.Exec(`UPDATE bookings SET status = $1 WHERE id = $2`, status, bookingID); err != nil {
		t.Fatalf("set booking status: %v", err)
	}
}

func GetBooking(t *testing.T, db *sql.DB, id uuid.UUID) (domain.BookingStatus, domain.BookingPaymentStatus) {
	t.Helper()

	var status domain.BookingStatus
	var paymentStatus domain.BookingPaymentStatus
	err := db.QueryRow(`SELECT status, payment_status FROM bookings WHERE id = $1`, id).Scan(&status, &paymentStatus)
	if err != nil {
		t.Fatalf("get booking %s: %v", id, err)
	}
	return status, paymentStatus
}

func GetPaymentStatus(t *testing.T, db *sql.DB, id uuid.UUID) domain.PaymentStatus {
	t.Helper()

	var status domain.PaymentStatus
	if err := db.QueryRow(`SELECT status FROM payments WHERE id = $1`, id).Scan(&status); err != nil {
		t.Fatalf("get payment status %s: %v", id, err)
	}
	return status
}

// GetCommission returns status, commission_amount and the generated
// hotel_earnings column.
func GetCommission(t *testing.T, db *sql.DB, paymentID uuid.UUID) (domain.CommissionStatus, decimal.Decimal, decimal.Decimal) {
	t.Helper()

	var status domain.CommissionStatus
	var amount, earnings decimal.Decimal
	err := db.QueryRow(
		`SELECT status, commission_amount, hotel_earnings FROM commissions WHERE payment_id = $1`, paymentID,
	).Scan(&status, &amount, &earnings)
	if err != nil {
		t.Fatalf("get commission for payment %s: %v", paymentID, err)
	}
	return status, amount, earnings
}

func CountHistory(t *testing.T, db *sql.DB, bookingID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM booking_status_history WHERE booking_id = $1`, bookingID).Scan(&count)
	if err != nil {
		t.Fatalf("count history for booking %s: %v", bookingID, err)
	}
	return count
}
