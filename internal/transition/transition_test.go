package transition

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/webhook"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var allBookingStatuses = []domain.BookingStatus{
	domain.BookingStatusPending,
	domain.BookingStatusConfirmed,
	domain.BookingStatusPaymentFailed,
	domain.BookingStatusCancelled,
	domain.BookingStatusRefunded,
	domain.BookingStatusCheckedIn,
	domain.BookingStatusCheckedOut,
}

func snapshot(bookingStatus domain.BookingStatus, paymentStatus domain.PaymentStatus) Snapshot {
	bookingID := uuid.New()
	b := &domain.Booking{
		ID:            bookingID,
		GuestEmail:    "guest@example.com",
		HotelID:       uuid.New(),
		TotalAmount:   dec("450"),
		Currency:      domain.CurrencyUSD,
		Status:        bookingStatus,
		PaymentStatus: domain.BookingPaymentPending,
	}
	p := &domain.Payment{
		ID:                    uuid.New(),
		BookingID:             bookingID,
		Amount:                dec("450"),
		Currency:              domain.CurrencyUSD,
		Status:                paymentStatus,
		Provider:              "square",
		ProviderTransactionID: "txn-1",
	}
	c := &domain.Commission{
		ID:               uuid.New(),
		BookingID:        bookingID,
		PaymentID:        p.ID,
		BaseAmount:       dec("450"),
		Rate:             dec("0.05"),
		CommissionAmount: dec("22.5"),
		Status:           domain.CommissionStatusPending,
	}
	if paymentStatus == domain.PaymentStatusSucceeded {
		c.Status = domain.CommissionStatusEarned
	}
	return Snapshot{
		Payment:         p,
		Booking:         b,
		Commission:      c,
		BookingPayments: []domain.Payment{*p},
		Rate:            dec("0.05"),
	}
}

func meta() webhook.Meta {
	return webhook.Meta{Provider: "square", EventID: "evt-1", EventType: "test", OccurredAt: now}
}

func succeeded() webhook.PaymentSucceeded {
	amount := dec("450")
	return webhook.PaymentSucceeded{Meta: meta(), TransactionID: "txn-1", Amount: &amount, Currency: "USD"}
}

func failed() webhook.PaymentFailed {
	return webhook.PaymentFailed{Meta: meta(), TransactionID: "txn-1", ErrorCode: "CARD_DECLINED"}
}

func refund(amount string) webhook.RefundCompleted {
	return webhook.RefundCompleted{Meta: meta(), RefundTransactionID: "rf-1", PaymentTransactionID: "txn-1", Amount: dec(amount), Currency: "USD"}
}

func TestDecide_ScenarioA_PaymentSucceeded(t *testing.T) {
	s := snapshot(domain.BookingStatusPending, domain.PaymentStatusPending)

	plan, err := Decide(s, succeeded(), now)
	require.NoError(t, err)

	assert.Equal(t, domain.WebhookOutcomeApplied, plan.Outcome)
	require.NotNil(t, plan.Payment)
	assert.Equal(t, domain.PaymentStatusSucceeded, plan.Payment.Status)
	require.NotNil(t, plan.Booking)
	assert.Equal(t, domain.BookingStatusConfirmed, plan.Booking.Status)
	assert.Equal(t, domain.BookingPaymentPaid, plan.Booking.PaymentStatus)
	require.NotNil(t, plan.Booking.History)
	assert.Equal(t, "Payment completed successfully", plan.Booking.History.Reason)
	assert.Equal(t, domain.BookingStatusPending, plan.Booking.History.PreviousStatus)

	assert.Equal(t, CommissionUpdate, plan.Commission.Op)
	assert.Equal(t, domain.CommissionStatusEarned, plan.Commission.Commission.Status)
	assert.True(t, dec("22.5").Equal(plan.Commission.Commission.CommissionAmount))

	require.Len(t, plan.Notifications, 1)
	assert.Equal(t, domain.NotificationBookingConfirmed, plan.Notifications[0].Kind)
}

func TestDecide_PaymentSucceeded_CreatesMissingCommission(t *testing.T) {
	s := snapshot(domain.BookingStatusPending, domain.PaymentStatusPending)
	s.Commission = nil
	s.Rate = dec("0.1")

	plan, err := Decide(s, succeeded(), now)
	require.NoError(t, err)
	assert.Equal(t, CommissionCreate, plan.Commission.Op)
	assert.Equal(t, domain.CommissionStatusEarned, plan.Commission.Commission.Status)
	assert.True(t, dec("45").Equal(plan.Commission.Commission.CommissionAmount))
}

func TestDecide_PaymentSucceeded_AmountMismatch(t *testing.T) {
	s := snapshot(domain.BookingStatusPending, domain.PaymentStatusPending)
	ev := succeeded()
	wrong := dec("400")
	ev.Amount = &wrong

	_, err := Decide(s, ev, now)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	ev = succeeded()
	ev.Currency = "EUR"
	_, err = Decide(s, ev, now)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestDecide_PaymentSucceeded_Twice(t *testing.T) {
	s := snapshot(domain.BookingStatusConfirmed, domain.PaymentStatusSucceeded)

	_, err := Decide(s, succeeded(), now)
	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "payment", te.Entity)
}

func TestDecide_ScenarioC_PartialRefund(t *testing.T) {
	s := snapshot(domain.BookingStatusConfirmed, domain.PaymentStatusSucceeded)

	plan, err := Decide(s, refund("225"), now)
	require.NoError(t, err)

	assert.Nil(t, plan.Payment)
	require.NotNil(t, plan.Refund)
	assert.True(t, plan.Refund.Create)
	assert.Equal(t, domain.RefundStatusSucceeded, plan.Refund.Refund.Status)
	assert.Equal(t, "rf-1", plan.Refund.Refund.ProviderTransactionID)

	require.NotNil(t, plan.Booking)
	assert.Equal(t, domain.BookingStatusConfirmed, plan.Booking.Status)
	assert.Equal(t, domain.BookingPaymentPaid, plan.Booking.PaymentStatus)
	require.NotNil(t, plan.Booking.History)
	assert.Contains(t, plan.Booking.History.Reason, "Partial refund of 225.00 USD")
	assert.Nil(t, plan.Booking.CancelledAt)

	assert.True(t, dec("11.25").Equal(plan.Commission.Reversed))
	assert.True(t, dec("11.25").Equal(plan.Commission.Commission.CommissionAmount))
	assert.Equal(t, domain.CommissionStatusEarned, plan.Commission.Commission.Status)

	require.Len(t, plan.Notifications, 1)
	assert.Equal(t, domain.NotificationRefundPartial, plan.Notifications[0].Kind)
}

func TestDecide_ScenarioD_FullRefund(t *testing.T) {
	s := snapshot(domain.BookingStatusConfirmed, domain.PaymentStatusSucceeded)

	plan, err := Decide(s, refund("450"), now)
	require.NoError(t, err)

	require.NotNil(t, plan.Payment)
	assert.Equal(t, domain.PaymentStatusRefunded, plan.Payment.Status)
	assert.Equal(t, domain.BookingStatusRefunded, plan.Booking.Status)
	assert.Equal(t, domain.BookingPaymentRefunded, plan.Booking.PaymentStatus)
	require.NotNil(t, plan.Booking.CancelledAt)
	assert.True(t, plan.Commission.Commission.CommissionAmount.IsZero())
	assert.Equal(t, domain.CommissionStatusReversed, plan.Commission.Commission.Status)
	assert.Equal(t, domain.NotificationBookingRefunded, plan.Notifications[0].Kind)
}

func TestDecide_RefundCompletesPartialsToFull(t *testing.T) {
	s := snapshot(domain.BookingStatusConfirmed, domain.PaymentStatusSucceeded)
	s.RefundedTotal = dec("225")
	s.Commission.CommissionAmount = dec("11.25")
	s.Commission.ReversedAmount = dec("11.25")

	plan, err := Decide(s, refund("225"), now)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusRefunded, plan.Booking.Status)
	assert.True(t, dec("11.25").Equal(plan.Commission.Reversed))
	assert.True(t, plan.Commission.Commission.CommissionAmount.IsZero())
}

func TestDecide_RefundExceedsPayment(t *testing.T) {
	s := snapshot(domain.BookingStatusConfirmed, domain.PaymentStatusSucceeded)
	s.RefundedTotal = dec("300")

	_, err := Decide(s, refund("225"), now)
	assert.True(t, errors.Is(err, domain.ErrTransition))
}

func TestDecide_RefundBeforePaymentSucceeded(t *testing.T) {
	s := snapshot(domain.BookingStatusPending, domain.PaymentStatusPending)

	_, err := Decide(s, refund("100"), now)
	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "payment", te.Entity)
	assert.Equal(t, "pending", te.From)
}

func TestDecide_RefundOfExistingPendingRefund(t *testing.T) {
	s := snapshot(domain.BookingStatusConfirmed, domain.PaymentStatusSucceeded)
	s.Refund = &domain.Refund{
		ID:                    uuid.New(),
		PaymentID:             s.Payment.ID,
		BookingID:             s.Booking.ID,
		Amount:                dec("100"),
		Currency:              domain.CurrencyUSD,
		Status:                domain.RefundStatusPending,
		ProviderTransactionID: "rf-1",
	}

	plan, err := Decide(s, refund("100"), now)
	require.NoError(t, err)
	assert.False(t, plan.Refund.Create)
	assert.Equal(t, s.Refund.ID, plan.Refund.Refund.ID)
	assert.Equal(t, domain.RefundStatusSucceeded, plan.Refund.Refund.Status)

	_, err = Decide(s, refund("90"), now)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	s.Refund.Status = domain.RefundStatusSucceeded
	_, err = Decide(s, refund("100"), now)
	assert.True(t, errors.Is(err, domain.ErrTransition))
}

func TestDecide_RefundFailed(t *testing.T) {
	s := snapshot(domain.BookingStatusConfirmed, domain.PaymentStatusSucceeded)
	ev := webhook.RefundFailed{Meta: meta(), RefundTransactionID: "rf-1", PaymentTransactionID: "txn-1", Amount: dec("100")}

	plan, err := Decide(s, ev, now)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusFailed, plan.Refund.Refund.Status)
	assert.Nil(t, plan.Booking)
	assert.Nil(t, plan.Payment)
	assert.Equal(t, CommissionOp(""), plan.Commission.Op)
	assert.Equal(t, domain.NotificationRefundFailed, plan.Notifications[0].Kind)
}

func TestDecide_ScenarioE_PaymentFailedOnCancelledBooking(t *testing.T) {
	s := snapshot(domain.BookingStatusCancelled, domain.PaymentStatusPending)

	plan, err := Decide(s, failed(), now)
	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "booking", te.Entity)
	assert.Equal(t, "cancelled", te.From)
	assert.Nil(t, plan.Booking)
	assert.Nil(t, plan.Payment)
}

func TestDecide_PaymentFailed(t *testing.T) {
	s := snapshot(domain.BookingStatusPending, domain.PaymentStatusPending)

	plan, err := Decide(s, failed(), now)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, plan.Payment.Status)
	require.NotNil(t, plan.Payment.ErrorCode)
	assert.Equal(t, "CARD_DECLINED", *plan.Payment.ErrorCode)
	assert.Equal(t, domain.BookingStatusPaymentFailed, plan.Booking.Status)
	assert.Equal(t, domain.BookingPaymentFailed, plan.Booking.PaymentStatus)
	assert.Contains(t, plan.Booking.History.Reason, "CARD_DECLINED")
	assert.Equal(t, domain.CommissionStatusReversed, plan.Commission.Commission.Status)
	assert.True(t, plan.Commission.Commission.CommissionAmount.IsZero())
}

func TestDecide_PaymentFailedKeepsPaidBooking(t *testing.T) {
	// A second attempt fails after the first already succeeded.
	s := snapshot(domain.BookingStatusConfirmed, domain.PaymentStatusPending)
	earlier := domain.Payment{ID: uuid.New(), BookingID: s.Booking.ID, Status: domain.PaymentStatusSucceeded}
	s.BookingPayments = []domain.Payment{earlier, *s.Payment}

	plan, err := Decide(s, failed(), now)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, plan.Booking.Status)
	assert.Equal(t, domain.BookingPaymentPaid, plan.Booking.PaymentStatus)
	assert.Nil(t, plan.Booking.History)
	assert.Empty(t, plan.Notifications)
}

func TestDecide_UnknownPayment(t *testing.T) {
	_, err := Decide(Snapshot{}, succeeded(), now)
	assert.True(t, errors.Is(err, domain.ErrTransition))
}

func TestDecide_NonPaymentEvents(t *testing.T) {
	plan, err := Decide(Snapshot{}, webhook.Unhandled{Meta: meta()}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeIgnored, plan.Outcome)

	plan, err = Decide(Snapshot{}, webhook.CustomerUpserted{Meta: meta(), CustomerID: "cus-1"}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookOutcomeApplied, plan.Outcome)
	assert.Nil(t, plan.Booking)
}

// Every booking status crossed with every event kind either yields a plan
// whose statuses are all valid or a TransitionError with an empty plan.
func TestDecide_Completeness(t *testing.T) {
	events := []struct {
		ev            webhook.Event
		paymentStatus domain.PaymentStatus
	}{
		{succeeded(), domain.PaymentStatusPending},
		{failed(), domain.PaymentStatusPending},
		{refund("225"), domain.PaymentStatusSucceeded},
		{refund("450"), domain.PaymentStatusSucceeded},
		{webhook.RefundFailed{Meta: meta(), RefundTransactionID: "rf-1", PaymentTransactionID: "txn-1", Amount: dec("10")}, domain.PaymentStatusSucceeded},
		{webhook.CustomerUpserted{Meta: meta(), CustomerID: "c"}, domain.PaymentStatusPending},
		{webhook.Unhandled{Meta: meta()}, domain.PaymentStatusPending},
	}

	for _, bs := range allBookingStatuses {
		for _, tc := range events {
			t.Run(string(bs)+"/"+string(tc.ev.Kind()), func(t *testing.T) {
				s := snapshot(bs, tc.paymentStatus)
				plan, err := Decide(s, tc.ev, now)
				if err != nil {
					require.True(t, errors.Is(err, domain.ErrTransition), "unexpected error %v", err)
					assert.Equal(t, Plan{}, plan)
					return
				}
				if plan.Payment != nil {
					assert.True(t, plan.Payment.Status.IsValid())
				}
				if plan.Refund != nil {
					assert.True(t, plan.Refund.Refund.Status.IsValid())
				}
				if plan.Booking != nil {
					assert.True(t, plan.Booking.Status.IsValid())
					assert.True(t, plan.Booking.PaymentStatus.IsValid())
					if bs.IsFinal() {
						assert.Equal(t, bs, plan.Booking.Status, "final booking must not move")
					}
				}
				if plan.Commission.Op != "" {
					c := plan.Commission.Commission
					assert.True(t, c.CommissionAmount.Add(c.HotelEarnings()).Equal(c.BaseAmount))
				}
			})
		}
	}
}

func TestDecide_FinalBookingsRejectPaymentEvents(t *testing.T) {
	for _, bs := range []domain.BookingStatus{domain.BookingStatusCancelled, domain.BookingStatusCheckedOut} {
		_, err := Decide(snapshot(bs, domain.PaymentStatusPending), succeeded(), now)
		assert.True(t, errors.Is(err, domain.ErrTransition), bs)
		_, err = Decide(snapshot(bs, domain.PaymentStatusPending), failed(), now)
		assert.True(t, errors.Is(err, domain.ErrTransition), bs)
	}
}

func TestDerivePaymentStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []domain.PaymentStatus
		want     domain.BookingPaymentStatus
	}{
		{name: "none", statuses: nil, want: domain.BookingPaymentPending},
		{name: "pending", statuses: []domain.PaymentStatus{domain.PaymentStatusPending}, want: domain.BookingPaymentPending},
		{name: "failed", statuses: []domain.PaymentStatus{domain.PaymentStatusFailed}, want: domain.BookingPaymentFailed},
		{name: "retry pending after failure", statuses: []domain.PaymentStatus{domain.PaymentStatusFailed, domain.PaymentStatusPending}, want: domain.BookingPaymentPending},
		{name: "succeeded wins", statuses: []domain.PaymentStatus{domain.PaymentStatusFailed, domain.PaymentStatusSucceeded, domain.PaymentStatusFailed}, want: domain.BookingPaymentPaid},
		{name: "refunded", statuses: []domain.PaymentStatus{domain.PaymentStatusRefunded}, want: domain.BookingPaymentRefunded},
		{name: "refunded then failed retry", statuses: []domain.PaymentStatus{domain.PaymentStatusRefunded, domain.PaymentStatusFailed}, want: domain.BookingPaymentRefunded},
		{name: "succeeded beats refunded", statuses: []domain.PaymentStatus{domain.PaymentStatusRefunded, domain.PaymentStatusSucceeded}, want: domain.BookingPaymentPaid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DerivePaymentStatus(tc.statuses))
		})
	}
}
