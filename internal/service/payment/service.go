// Package payment is the intake side of the booking payment flow: it opens
// charges and refund requests that provider webhooks later settle.
package payment

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
)

type paymentRepo interface {
	Create(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payment, error)
}

type refundRepo interface {
	Create(ctx context.Context, tx *sql.Tx, refund *domain.Refund) error
	SumByStatus(ctx context.Context, tx *sql.Tx, paymentID, exclude uuid.UUID, statuses ...domain.RefundStatus) (decimal.Decimal, error)
}

type bookingRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Booking, error)
}

type commissionLedger interface {
	Create(ctx context.Context, tx *sql.Tx, bookingID, paymentID uuid.UUID, base, rate decimal.Decimal) (*domain.Commission, error)
}

type rateResolver interface {
	RateFor(hotelID uuid.UUID) decimal.Decimal
}

type Service struct {
	payments    paymentRepo
	refunds     refundRepo
	bookings    bookingRepo
	commissions commissionLedger
	rates       rateResolver
	db          *sql.DB
	now         func() time.Time
}

func NewService(
	payments paymentRepo,
	refunds refundRepo,
	bookings bookingRepo,
	commissions commissionLedger,
	rates rateResolver,
	db *sql.DB,
) *Service {
	return &Service{
		payments:    payments,
		refunds:     refunds,
		bookings:    bookings,
		commissions: commissions,
		rates:       rates,
		db:          db,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetPayment: %w", err)
	}
	return p, nil
}

func validateMoney(amount decimal.Decimal, currency domain.Currency) error {
	if !amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: at most two decimal places", domain.ErrInvalidAmount)
	}
	if !currency.IsValid() {
		return domain.ErrInvalidCurrency
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", domain.ErrInvalidRequest, field)
	}
	return nil
}
