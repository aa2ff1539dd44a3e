package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
)

type ChargeRequest struct {
	BookingID             uuid.UUID
	Amount                decimal.Decimal
	Currency              domain.Currency
	Provider              string
	ProviderTransactionID string
}

func (s *Service) validateCharge(req ChargeRequest) error {
	if req.BookingID == uuid.Nil {
		return fmt.Errorf("%w: booking_id is required", domain.ErrInvalidRequest)
	}
	if err := validateMoney(req.Amount, req.Currency); err != nil {
		return err
	}
	if err := required("provider", req.Provider); err != nil {
		return err
	}
	return required("provider_transaction_id", req.ProviderTransactionID)
}

// BeginCharge records a pending payment for a booking together with its
// pending commission at the hotel's current rate.
func (s *Service) BeginCharge(ctx context.Context, req ChargeRequest) (*domain.Payment, *domain.Commission, error) {
	if err := s.validateCharge(req); err != nil {
		return nil, nil, fmt.Errorf("BeginCharge: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("BeginCharge: begin tx: %w", err)
	}
	defer tx.Rollback()

	booking, err := s.bookings.GetForUpdate(ctx, tx, req.BookingID)
	if err != nil {
		return nil, nil, fmt.Errorf("BeginCharge: %w", err)
	}
	if booking.Status.IsFinal() {
		return nil, nil, fmt.Errorf("BeginCharge: %w", domain.ErrBookingFinal)
	}
	if booking.Currency != req.Currency {
		return nil, nil, fmt.Errorf("BeginCharge: %w", domain.ErrCurrencyMismatch)
	}

	now := s.now()
	p := &domain.Payment{
		ID:                    uuid.New(),
		BookingID:             booking.ID,
		Amount:                req.Amount,
		Currency:              req.Currency,
		Status:                domain.PaymentStatusPending,
		Provider:              strings.ToLower(req.Provider),
		ProviderTransactionID: req.ProviderTransactionID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.payments.Create(ctx, tx, p); err != nil {
		return nil, nil, fmt.Errorf("BeginCharge: %w", err)
	}

	c, err := s.commissions.Create(ctx, tx, booking.ID, p.ID, p.Amount, s.rates.RateFor(booking.HotelID))
	if err != nil {
		return nil, nil, fmt.Errorf("BeginCharge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("BeginCharge: commit: %w", err)
	}
	return p, c, nil
}
