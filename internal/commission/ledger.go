package commission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
)

type Store interface {
	Create(ctx context.Context, tx *sql.Tx, c *domain.Commission) error
	Update(ctx context.Context, tx *sql.Tx, c *domain.Commission) error
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.Commission, error)
	GetByPaymentIDForUpdate(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID) (*domain.Commission, error)
	MarkPaid(ctx context.Context, tx *sql.Tx, ids []uuid.UUID, paidAt time.Time) ([]domain.Commission, error)
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Ledger persists commission changes. Create, Apply and ForUpdate take the
// caller's transaction so they commit together with the payment transition.
type Ledger struct {
	store Store
	db    txBeginner
	now   func() time.Time
}

func NewLedger(store Store, db txBeginner) *Ledger {
	return &Ledger{store: store, db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create records the pending commission for a new payment.
func (l *Ledger) Create(ctx context.Context, tx *sql.Tx, bookingID, paymentID uuid.UUID, base, rate decimal.Decimal) (*domain.Commission, error) {
	c, err := New(bookingID, paymentID, base, rate, l.now())
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	if err := l.store.Create(ctx, tx, &c); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	return &c, nil
}

// Apply persists a commission already transformed by Earn, Void or Reverse.
func (l *Ledger) Apply(ctx context.Context, tx *sql.Tx, c *domain.Commission, isNew bool) error {
	if isNew {
		if err := l.store.Create(ctx, tx, c); err != nil {
			return fmt.Errorf("Apply: %w", err)
		}
		return nil
	}
	if err := l.store.Update(ctx, tx, c); err != nil {
		return fmt.Errorf("Apply: %w", err)
	}
	return nil
}

// ForUpdate locks the commission of paymentID. It returns nil, nil when the
// payment has no commission yet.
func (l *Ledger) ForUpdate(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID) (*domain.Commission, error) {
	c, err := l.store.GetByPaymentIDForUpdate(ctx, tx, paymentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ForUpdate: %w", err)
	}
	return c, nil
}

func (l *Ledger) Get(ctx context.Context, paymentID uuid.UUID) (*domain.Commission, error) {
	c, err := l.store.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return c, nil
}

// MarkPaid settles a payout batch in one statement. Ids that are unknown or
// not earned are left out of the result.
func (l *Ledger) MarkPaid(ctx context.Context, ids []uuid.UUID) ([]domain.Commission, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("MarkPaid: %w", domain.ErrInvalidRequest)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("MarkPaid: %w", err)
	}
	defer tx.Rollback()

	paid, err := l.store.MarkPaid(ctx, tx, ids, l.now())
	if err != nil {
		return nil, fmt.Errorf("MarkPaid: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("MarkPaid: commit: %w", err)
	}
	return paid, nil
}
