package payment_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/stay-reconciler/internal/commission"
	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/repository"
	"github.com/josh-kwaku/stay-reconciler/internal/service/payment"
	"github.com/josh-kwaku/stay-reconciler/internal/testutil"
)

func setupPaymentService(t *testing.T, db *sql.DB, hotelRates map[string]float64) *payment.Service {
	t.Helper()
	return payment.NewService(
		repository.NewPaymentRepository(db),
		repository.NewRefundRepository(db),
		repository.NewBookingRepository(db),
		commission.NewLedger(repository.NewCommissionRepository(db), db),
		commission.NewRateResolver(0.05, hotelRates),
		db,
	)
}

func markSucceeded(t *testing.T, db *sql.DB, paymentID uuid.UUID) {
	t.Helper()
	_, err := db.Exec(`UPDATE payments SET status = 'succeeded' WHERE id = $1`, paymentID)
	require.NoError(t, err)
}

func TestBeginCharge_CreatesPaymentAndCommission(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPaymentService(t, db, nil)
	ctx := context.Background()

	booking := testutil.SeedBooking(t, db, domain.BookingStatusPending, "450.00")

	p, c, err := svc.BeginCharge(ctx, payment.ChargeRequest{
		BookingID:             booking.ID,
		Amount:                decimal.RequireFromString("450.00"),
		Currency:              domain.CurrencyUSD,
		Provider:              "Square",
		ProviderTransactionID: "sq_txn_charge",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, p.Status)
	assert.Equal(t, "square", p.Provider)
	assert.Equal(t, domain.CommissionStatusPending, c.Status)
	assert.True(t, c.CommissionAmount.Equal(decimal.RequireFromString("22.50")), c.CommissionAmount.String())

	status, amount, earnings := testutil.GetCommission(t, db, p.ID)
	assert.Equal(t, domain.CommissionStatusPending, status)
	assert.True(t, amount.Equal(decimal.RequireFromString("22.50")))
	assert.True(t, earnings.Equal(decimal.RequireFromString("427.50")))
}

func TestBeginCharge_HotelRateOverride(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPaymentService(t, db, map[string]float64{testutil.DefaultHotelID.String(): 0.12})

	booking := testutil.SeedBooking(t, db, domain.BookingStatusPending, "200.00")
	_, c, err := svc.BeginCharge(context.Background(), payment.ChargeRequest{
		BookingID:             booking.ID,
		Amount:                decimal.RequireFromString("200.00"),
		Currency:              domain.CurrencyUSD,
		Provider:              "square",
		ProviderTransactionID: "sq_txn_override",
	})
	require.NoError(t, err)
	assert.True(t, c.Rate.Equal(decimal.RequireFromString("0.12")))
	assert.True(t, c.CommissionAmount.Equal(decimal.RequireFromString("24.00")))
}

func TestBeginCharge_Rejections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPaymentService(t, db, nil)
	ctx := context.Background()

	cancelled := testutil.SeedBooking(t, db, domain.BookingStatusCancelled, "100.00")
	_, _, err := svc.BeginCharge(ctx, payment.ChargeRequest{
		BookingID: cancelled.ID, Amount: decimal.NewFromInt(100), Currency: domain.CurrencyUSD,
		Provider: "square", ProviderTransactionID: "sq_final",
	})
	require.ErrorIs(t, err, domain.ErrBookingFinal)

	open := testutil.SeedBooking(t, db, domain.BookingStatusPending, "100.00")
	_, _, err = svc.BeginCharge(ctx, payment.ChargeRequest{
		BookingID: open.ID, Amount: decimal.NewFromInt(100), Currency: domain.CurrencyEUR,
		Provider: "square", ProviderTransactionID: "sq_eur",
	})
	require.ErrorIs(t, err, domain.ErrCurrencyMismatch)

	_, _, err = svc.BeginCharge(ctx, payment.ChargeRequest{
		BookingID: uuid.New(), Amount: decimal.NewFromInt(100), Currency: domain.CurrencyUSD,
		Provider: "square", ProviderTransactionID: "sq_missing",
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	testutil.SeedPayment(t, db, open, "sq_taken", "100.00", "0.05")
	_, _, err = svc.BeginCharge(ctx, payment.ChargeRequest{
		BookingID: open.ID, Amount: decimal.NewFromInt(100), Currency: domain.CurrencyUSD,
		Provider: "square", ProviderTransactionID: "sq_taken",
	})
	require.ErrorIs(t, err, domain.ErrDuplicateTransaction)
}

func TestRequestRefund(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPaymentService(t, db, nil)
	ctx := context.Background()

	booking := testutil.SeedBooking(t, db, domain.BookingStatusConfirmed, "450.00")
	p, _ := testutil.SeedPayment(t, db, booking, "sq_txn_refund", "450.00", "0.05")

	_, err := svc.RequestRefund(ctx, payment.RefundRequest{
		PaymentID: p.ID, Amount: decimal.NewFromInt(100), ProviderTransactionID: "sq_rf_early",
	})
	require.ErrorIs(t, err, domain.ErrPaymentNotSucceeded)

	markSucceeded(t, db, p.ID)

	r, err := svc.RequestRefund(ctx, payment.RefundRequest{
		PaymentID: p.ID, Amount: decimal.RequireFromString("300.00"), Reason: "guest request", ProviderTransactionID: "sq_rf_1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusPending, r.Status)
	assert.Equal(t, booking.ID, r.BookingID)

	// The pending 300 still counts against the remaining 150.
	_, err = svc.RequestRefund(ctx, payment.RefundRequest{
		PaymentID: p.ID, Amount: decimal.RequireFromString("150.01"), ProviderTransactionID: "sq_rf_2",
	})
	require.ErrorIs(t, err, domain.ErrRefundExceedsPayment)

	_, err = svc.RequestRefund(ctx, payment.RefundRequest{
		PaymentID: p.ID, Amount: decimal.RequireFromString("150.00"), ProviderTransactionID: "sq_rf_3",
	})
	require.NoError(t, err)
}
