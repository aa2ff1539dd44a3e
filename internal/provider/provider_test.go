package provider

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/signature"
	pipeline "github.com/josh-kwaku/stay-reconciler/internal/webhook"
)

const squarePaymentBody = `{
	"event_id": "evt-sq-1",
	"type": "payment.updated",
	"created_at": "2026-03-01T12:00:00Z",
	"data": {
		"type": "payment",
		"id": "pay-1",
		"object": {
			"payment": {
				"id": "pay-1",
				"status": "COMPLETED",
				"amount_money": {"amount": 45000, "currency": "USD"}
			}
		}
	}
}`

const squareFailedBody = `{
	"event_id": "evt-sq-2",
	"type": "payment.updated",
	"data": {"type": "payment", "id": "pay-2", "object": {"payment": {
		"id": "pay-2",
		"status": "FAILED",
		"errors": [{"code": "CARD_DECLINED", "detail": "insufficient funds"}]
	}}}
}`

const squareRefundBody = `{
	"event_id": "evt-sq-3",
	"type": "refund.updated",
	"data": {"type": "refund", "id": "rf-1", "object": {"refund": {
		"id": "rf-1",
		"status": "COMPLETED",
		"payment_id": "pay-1",
		"amount_money": {"amount": 22500, "currency": "USD"},
		"reason": "guest request"
	}}}
}`

func TestRegistry(t *testing.T) {
	reg := NewRegistry(NewSquare("s", "", false), NewStripe("whsec", 0))

	p, err := reg.Get("Square")
	require.NoError(t, err)
	assert.Equal(t, "square", p.Name())
	assert.Equal(t, "X-Square-Signature", p.SignatureHeader())

	_, err = reg.Get("paypal")
	assert.True(t, errors.Is(err, domain.ErrUnknownProvider))

	assert.Equal(t, []string{"square", "stripe"}, reg.Names())
}

func TestSquare_Verify(t *testing.T) {
	const secret = "sq-secret"
	const url = "https://hooks.example.com/payments/webhook/square"
	body := []byte(squarePaymentBody)

	sq := NewSquare(secret, url, false)
	h := http.Header{}
	h.Set("X-Square-Signature", signature.SignWithURL(url, body, secret))
	res := sq.Verify(body, h)
	assert.True(t, res.Valid)
	assert.Equal(t, signature.MethodURLAndBody, res.Method)

	h.Set("X-Square-Signature", signature.Sign(body, secret))
	res = sq.Verify(body, h)
	assert.True(t, res.Valid)
	assert.Equal(t, signature.MethodBody, res.Method)

	strict := NewSquare(secret, url, true)
	res = strict.Verify(body, h)
	assert.False(t, res.Valid)

	res = sq.Verify(body, http.Header{})
	assert.False(t, res.Valid)
	assert.Equal(t, "missing signature header", res.Reason)

	assert.False(t, NewSquare("", url, false).Configured())
}

func TestSquare_Decode(t *testing.T) {
	sq := NewSquare("s", "", false)

	n, err := sq.Decode([]byte(squarePaymentBody))
	require.NoError(t, err)
	assert.Equal(t, "square", n.Provider)
	assert.Equal(t, "evt-sq-1", n.EventID)
	assert.Equal(t, "payment.updated", n.EventType)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), n.OccurredAt)
	require.NotNil(t, n.Payment)
	assert.Equal(t, "pay-1", n.Payment.TransactionID)
	assert.Equal(t, pipeline.StatusCompleted, n.Payment.Status)
	require.NotNil(t, n.Payment.Amount)
	assert.Equal(t, "450", n.Payment.Amount.String())
	assert.Equal(t, "USD", n.Payment.Currency)

	n, err = sq.Decode([]byte(squareFailedBody))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusFailed, n.Payment.Status)
	assert.Equal(t, "CARD_DECLINED", n.Payment.ErrorCode)
	assert.Equal(t, "insufficient funds", n.Payment.ErrorMessage)
	assert.Nil(t, n.Payment.Amount)

	n, err = sq.Decode([]byte(squareRefundBody))
	require.NoError(t, err)
	require.NotNil(t, n.Refund)
	assert.Equal(t, "rf-1", n.Refund.TransactionID)
	assert.Equal(t, "pay-1", n.Refund.PaymentTransactionID)
	assert.Equal(t, "225", n.Refund.Amount.String())
	assert.Equal(t, "guest request", n.Refund.Reason)

	ev, err := pipeline.Route(n)
	require.NoError(t, err)
	assert.Equal(t, pipeline.KindRefundCompleted, ev.Kind())
}

func TestSquare_DecodeErrors(t *testing.T) {
	sq := NewSquare("s", "", false)
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{"event_id":`},
		{name: "missing event id", body: `{"type":"payment.updated"}`},
		{name: "missing type", body: `{"event_id":"e1"}`},
		{name: "bad timestamp", body: `{"event_id":"e1","type":"payment.updated","created_at":"yesterday"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sq.Decode([]byte(tc.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
		})
	}
}

func stripeHeader(payload []byte, secret string, ts time.Time) http.Header {
	sig := hex.EncodeToString(webhook.ComputeSignature(ts, payload, secret))
	h := http.Header{}
	h.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts.Unix(), sig))
	return h
}

func TestStripe_VerifyAndDecode(t *testing.T) {
	const secret = "whsec_test"
	body := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.payment_failed",
		"created": 1772366400,
		"data": {"object": {
			"id": "pi_1",
			"object": "payment_intent",
			"amount": 45000,
			"currency": "usd",
			"status": "requires_payment_method",
			"last_payment_error": {"code": "card_declined", "message": "Your card was declined."}
		}}
	}`)

	st := NewStripe(secret, 0)
	res := st.Verify(body, stripeHeader(body, secret, time.Now()))
	require.True(t, res.Valid, res.Reason)
	assert.Equal(t, signature.MethodProvider, res.Method)

	res = st.Verify(body, stripeHeader(body, "other", time.Now()))
	assert.False(t, res.Valid)
	assert.Equal(t, "signature mismatch", res.Reason)

	res = st.Verify(body, stripeHeader(body, secret, time.Now().Add(-time.Hour)))
	assert.False(t, res.Valid)

	n, err := st.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", n.EventID)
	assert.Equal(t, time.Unix(1772366400, 0).UTC(), n.OccurredAt)
	require.NotNil(t, n.Payment)
	assert.Equal(t, "pi_1", n.Payment.TransactionID)
	assert.Equal(t, pipeline.StatusFailed, n.Payment.Status)
	assert.Equal(t, "USD", n.Payment.Currency)
	assert.Equal(t, "card_declined", n.Payment.ErrorCode)

	ev, err := pipeline.Route(n)
	require.NoError(t, err)
	assert.Equal(t, pipeline.KindPaymentFailed, ev.Kind())
}

func TestStripe_DecodeRefund(t *testing.T) {
	body := []byte(`{
		"id": "evt_2",
		"object": "event",
		"type": "charge.refund.updated",
		"data": {"object": {
			"id": "re_1",
			"object": "refund",
			"amount": 10000,
			"currency": "usd",
			"status": "succeeded",
			"payment_intent": "pi_1"
		}}
	}`)

	n, err := NewStripe("whsec", 0).Decode(body)
	require.NoError(t, err)
	require.NotNil(t, n.Refund)
	assert.Equal(t, "re_1", n.Refund.TransactionID)
	assert.Equal(t, "pi_1", n.Refund.PaymentTransactionID)
	assert.Equal(t, pipeline.StatusCompleted, n.Refund.Status)
	assert.Equal(t, "100", n.Refund.Amount.String())
}

func TestStripe_DecodeCustomer(t *testing.T) {
	for _, eventType := range []string{"customer.created", "customer.updated"} {
		t.Run(eventType, func(t *testing.T) {
			body := []byte(fmt.Sprintf(`{
				"id": "evt_3",
				"object": "event",
				"type": %q,
				"data": {"object": {
					"id": "cus_1",
					"object": "customer",
					"email": "ada@example.com"
				}}
			}`, eventType))

			n, err := NewStripe("whsec", 0).Decode(body)
			require.NoError(t, err)
			require.NotNil(t, n.Customer)
			assert.Equal(t, "cus_1", n.Customer.CustomerID)
			assert.Equal(t, "ada@example.com", n.Customer.Email)

			ev, err := pipeline.Route(n)
			require.NoError(t, err)
			assert.Equal(t, pipeline.KindCustomerUpserted, ev.Kind())
		})
	}
}
