package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/provider"
)

type providerRegistry interface {
	Get(name string) (provider.Provider, error)
}

type webhookEventRepository interface {
	RecordIfNew(ctx context.Context, tx *sql.Tx, event *domain.WebhookEvent) (bool, error)
	SetOutcome(ctx context.Context, tx *sql.Tx, provider, eventID string, outcome domain.WebhookOutcome, detail string, at time.Time) error
	AppendDelivery(ctx context.Context, d *domain.WebhookDelivery) error
}

type paymentRepository interface {
	GetByTransactionIDForUpdate(ctx context.Context, tx *sql.Tx, transactionID string) (*domain.Payment, error)
	ListByBooking(ctx context.Context, tx *sql.Tx, bookingID uuid.UUID) ([]domain.Payment, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PaymentStatus, errorCode, errorMessage *string, completedAt *time.Time) error
}

type refundRepository interface {
	Create(ctx context.Context, tx *sql.Tx, refund *domain.Refund) error
	GetByTransactionIDForUpdate(ctx context.Context, tx *sql.Tx, transactionID string) (*domain.Refund, error)
	SumByStatus(ctx context.Context, tx *sql.Tx, paymentID, exclude uuid.UUID, statuses ...domain.RefundStatus) (decimal.Decimal, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, refund *domain.Refund) error
}

type bookingRepository interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.BookingStatus, paymentStatus domain.BookingPaymentStatus, cancelledAt *time.Time, cancellationReason *string) error
}

type historyRepository interface {
	Append(ctx context.Context, tx *sql.Tx, h *domain.StatusHistory) error
}

type commissionLedger interface {
	ForUpdate(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID) (*domain.Commission, error)
	Apply(ctx context.Context, tx *sql.Tx, c *domain.Commission, isNew bool) error
}

type rateResolver interface {
	RateFor(hotelID uuid.UUID) decimal.Decimal
}

type sideEffects interface {
	Dispatch(ctx context.Context, notifications []domain.Notification, audit *domain.AuditRecord)
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
