package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
)

type outboxStore interface {
	Enqueue(ctx context.Context, msg *domain.OutboxMessage) error
}

// OutboxSink parks a message in notification_outbox for the relay to
// deliver once the primary sink recovers.
type OutboxSink struct {
	store   outboxStore
	channel domain.OutboxChannel
	now     func() time.Time
}

func NewOutboxSink(store outboxStore, channel domain.OutboxChannel) *OutboxSink {
	return &OutboxSink{store: store, channel: channel, now: func() time.Time { return time.Now().UTC() }}
}

func (s *OutboxSink) Publish(ctx context.Context, key string, body []byte) error {
	msg := &domain.OutboxMessage{
		ID:         uuid.New(),
		Channel:    s.channel,
		RoutingKey: key,
		Payload:    body,
		Status:     domain.OutboxStatusPending,
		CreatedAt:  s.now(),
	}
	if err := s.store.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("OutboxSink.Publish: %w", err)
	}
	return nil
}
