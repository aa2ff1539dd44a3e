package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/resilience"
)

type memorySink struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (s *memorySink) Publish(_ context.Context, key string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.keys = append(s.keys, key)
	return nil
}

func (s *memorySink) published() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

func newTestDispatcher(notify, notifyFallback, audit, auditFallback *memorySink) *Dispatcher {
	policy := resilience.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Factor: 1}
	exec := resilience.NewExecutor(policy, resilience.NewRegistry(5, time.Minute, resilience.SystemClock()))
	return NewDispatcher(exec,
		Route{Primary: notify, Fallback: notifyFallback},
		Route{Primary: audit, Fallback: auditFallback},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func sampleEffects() ([]domain.Notification, *domain.AuditRecord) {
	bookingID := uuid.New()
	return []domain.Notification{{Kind: domain.NotificationBookingConfirmed, BookingID: bookingID, GuestEmail: "g@example.com"}},
		&domain.AuditRecord{Provider: "square", EventID: "evt-1", EventType: "payment.updated", Outcome: domain.WebhookOutcomeApplied, BookingID: &bookingID}
}

func TestDispatcher_PrimarySinks(t *testing.T) {
	notify, notifyFb, audit, auditFb := &memorySink{}, &memorySink{}, &memorySink{}, &memorySink{}
	d := newTestDispatcher(notify, notifyFb, audit, auditFb)

	ctx, cancel := context.WithCancel(context.Background())
	n, a := sampleEffects()
	d.Dispatch(ctx, n, a)
	// Cancelling the request context must not stop delivery.
	cancel()
	d.Wait()

	assert.Equal(t, []string{"booking.confirmed"}, notify.published())
	assert.Equal(t, []string{"square:evt-1"}, audit.published())
	assert.Empty(t, notifyFb.published())
	assert.Empty(t, auditFb.published())
}

func TestDispatcher_FallsBackWhenPrimaryDown(t *testing.T) {
	notify := &memorySink{err: errors.New("connection refused")}
	notifyFb, audit, auditFb := &memorySink{}, &memorySink{}, &memorySink{}
	d := newTestDispatcher(notify, notifyFb, audit, auditFb)

	n, a := sampleEffects()
	d.Dispatch(context.Background(), n, a)
	d.Wait()

	assert.Equal(t, []string{"booking.confirmed"}, notifyFb.published())
	assert.Equal(t, []string{"square:evt-1"}, audit.published())
}

func TestDispatcher_BothSinksDown(t *testing.T) {
	down := &memorySink{err: errors.New("down")}
	audit := &memorySink{}
	d := newTestDispatcher(down, down, audit, &memorySink{})

	n, a := sampleEffects()
	require.NotPanics(t, func() {
		d.Dispatch(context.Background(), n, a)
		d.Wait()
	})
	assert.Equal(t, []string{"square:evt-1"}, audit.published())
}

func TestDispatcher_NothingToSend(t *testing.T) {
	d := newTestDispatcher(&memorySink{}, &memorySink{}, &memorySink{}, &memorySink{})
	d.Dispatch(context.Background(), nil, nil)
	d.Wait()
}
