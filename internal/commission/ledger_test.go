package commission_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/stay-reconciler/internal/commission"
	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/repository"
	"github.com/josh-kwaku/stay-reconciler/internal/testutil"
)

func TestLedger_ApplyAndMarkPaid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	ledger := commission.NewLedger(repository.NewCommissionRepository(db), repository.NewDB(db))

	booking := testutil.SeedBooking(t, db, domain.BookingStatusPending, "450.00")
	earnedPayment, _ := testutil.SeedPayment(t, db, booking, "sq_earned", "450.00", "0.05")
	pendingPayment, _ := testutil.SeedPayment(t, db, booking, "sq_pending", "100.00", "0.05")

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	c, err := ledger.ForUpdate(ctx, tx, earnedPayment.ID)
	require.NoError(t, err)
	require.NotNil(t, c)
	next, err := commission.Earn(*c, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, ledger.Apply(ctx, tx, &next, false))
	require.NoError(t, tx.Commit())

	got, err := ledger.Get(ctx, earnedPayment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CommissionStatusEarned, got.Status)
	assert.True(t, decimal.RequireFromString("22.50").Equal(got.CommissionAmount))

	pending, err := ledger.Get(ctx, pendingPayment.ID)
	require.NoError(t, err)

	paid, err := ledger.MarkPaid(ctx, []uuid.UUID{got.ID, pending.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, paid, 1, "only earned commissions are paid out")
	assert.Equal(t, got.ID, paid[0].ID)
	assert.Equal(t, domain.CommissionStatusPaid, paid[0].Status)
	require.NotNil(t, paid[0].PaidAt)

	again, err := ledger.MarkPaid(ctx, []uuid.UUID{got.ID})
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestLedger_ForUpdateWithoutCommission(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	ledger := commission.NewLedger(repository.NewCommissionRepository(db), repository.NewDB(db))

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	c, err := ledger.ForUpdate(ctx, tx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestLedger_MarkPaidRequiresIDs(t *testing.T) {
	ledger := commission.NewLedger(nil, nil)
	_, err := ledger.MarkPaid(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
