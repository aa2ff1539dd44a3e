package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
)

type RefundRequest struct {
	PaymentID             uuid.UUID
	Amount                decimal.Decimal
	Reason                string
	ProviderTransactionID string
}

// RequestRefund opens a pending refund. Pending refunds count against the
// remainder so two open requests can never exceed the payment together.
func (s *Service) RequestRefund(ctx context.Context, req RefundRequest) (*domain.Refund, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("RequestRefund: %w", domain.ErrInvalidAmount)
	}
	if err := required("provider_transaction_id", req.ProviderTransactionID); err != nil {
		return nil, fmt.Errorf("RequestRefund: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("RequestRefund: begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := s.payments.GetForUpdate(ctx, tx, req.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("RequestRefund: %w", err)
	}
	if p.Status != domain.PaymentStatusSucceeded {
		return nil, fmt.Errorf("RequestRefund: %w", domain.ErrPaymentNotSucceeded)
	}

	committed, err := s.refunds.SumByStatus(ctx, tx, p.ID, uuid.Nil, domain.RefundStatusPending, domain.RefundStatusSucceeded)
	if err != nil {
		return nil, fmt.Errorf("RequestRefund: %w", err)
	}
	if committed.Add(req.Amount).GreaterThan(p.Amount) {
		return nil, fmt.Errorf("RequestRefund: %w: %s remaining", domain.ErrRefundExceedsPayment, p.Amount.Sub(committed).StringFixed(2))
	}

	now := s.now()
	r := &domain.Refund{
		ID:                    uuid.New(),
		PaymentID:             p.ID,
		BookingID:             p.BookingID,
		Amount:                req.Amount,
		Currency:              p.Currency,
		Status:                domain.RefundStatusPending,
		ProviderTransactionID: req.ProviderTransactionID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if req.Reason != "" {
		r.Reason = &req.Reason
	}
	if err := s.refunds.Create(ctx, tx, r); err != nil {
		return nil, fmt.Errorf("RequestRefund: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("RequestRefund: commit: %w", err)
	}
	return r, nil
}
