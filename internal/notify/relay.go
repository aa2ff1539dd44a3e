package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/logging"
)

type relayStore interface {
	ClaimPending(ctx context.Context, tx *sql.Tx, limit int, lease time.Duration) ([]domain.OutboxMessage, error)
	MarkDispatched(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
	MarkAttemptFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, reason string, maxAttempts int) error
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// caller is satisfied by resilience.Executor.
type caller interface {
	Call(ctx context.Context, operation string, op func(ctx context.Context) error) error
}

type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	// ClaimLease is how long a claimed row may stay in_flight before another
	// relay takes it over.
	ClaimLease time.Duration
}

// Relay drains the outbox into the primary sinks. Rows are claimed in a
// short transaction, published with no transaction open, then settled one by
// one. SKIP LOCKED lets several API instances run a relay at once.
type Relay struct {
	store  relayStore
	db     txBeginner
	exec   caller
	sinks  map[domain.OutboxChannel]Sink
	cfg    RelayConfig
	logger *slog.Logger
}

func NewRelay(store relayStore, db txBeginner, exec caller, sinks map[domain.OutboxChannel]Sink, cfg RelayConfig, logger *slog.Logger) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	return &Relay{store: store, db: db, exec: exec, sinks: sinks, cfg: cfg, logger: logger}
}

func (r *Relay) Start(ctx context.Context) {
	r.logger.Info("outbox relay started", "interval", r.cfg.Interval)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil {
				r.logger.Error("outbox relay pass failed", "error", err)
			}
		}
	}
}

// Drain runs one relay pass and returns how many messages were delivered.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	ctx = logging.WithLogger(ctx, r.logger)

	msgs, err := r.claim(ctx)
	if err != nil {
		return 0, fmt.Errorf("Drain: %w", err)
	}

	delivered := 0
	for _, msg := range msgs {
		derr := r.deliver(ctx, msg)
		if derr != nil {
			r.logger.Warn("outbox delivery failed",
				"outbox_id", msg.ID,
				"channel", msg.Channel,
				"attempt", msg.Attempts+1,
				"error", derr,
			)
		}
		if err := r.settle(ctx, msg.ID, derr); err != nil {
			return delivered, fmt.Errorf("Drain: %w", err)
		}
		if derr == nil {
			delivered++
		}
	}

	if len(msgs) > 0 {
		r.logger.Info("outbox relay pass", "claimed", len(msgs), "delivered", delivered)
	}
	return delivered, nil
}

func (r *Relay) claim(ctx context.Context) ([]domain.OutboxMessage, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim: begin tx: %w", err)
	}
	defer tx.Rollback()

	msgs, err := r.store.ClaimPending(ctx, tx, r.cfg.BatchSize, r.cfg.ClaimLease)
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim: commit: %w", err)
	}
	return msgs, nil
}

func (r *Relay) settle(ctx context.Context, id uuid.UUID, deliverErr error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settle: begin tx: %w", err)
	}
	defer tx.Rollback()

	if deliverErr != nil {
		err = r.store.MarkAttemptFailed(ctx, tx, id, deliverErr.Error(), r.cfg.MaxAttempts)
	} else {
		err = r.store.MarkDispatched(ctx, tx, id)
	}
	if err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("settle: commit: %w", err)
	}
	return nil
}

func (r *Relay) deliver(ctx context.Context, msg domain.OutboxMessage) error {
	sink, ok := r.sinks[msg.Channel]
	if !ok {
		return fmt.Errorf("no sink for channel %q", msg.Channel)
	}
	return r.exec.Call(ctx, "relay."+string(msg.Channel), func(ctx context.Context) error {
		return sink.Publish(ctx, msg.RoutingKey, msg.Payload)
	})
}
