package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/logging"
	"github.com/josh-kwaku/stay-reconciler/internal/notify"
	"github.com/josh-kwaku/stay-reconciler/internal/resilience"
)

// Operation names double as breaker names.
const (
	OpNotify = "notify.rabbitmq"
	OpAudit  = "audit.kafka"
)

type downstreamCaller interface {
	Call(ctx context.Context, operation string, op func(ctx context.Context) error) error
}

// Route pairs a primary sink with the sink that takes its messages when the
// primary is unavailable.
type Route struct {
	Primary  notify.Sink
	Fallback notify.Sink
}

// Dispatcher delivers committed side effects in the background. Failures are
// logged and parked in the fallback sink; they never reach the caller.
type Dispatcher struct {
	exec          downstreamCaller
	notifications Route
	audit         Route
	logger        *slog.Logger
	wg            sync.WaitGroup
}

func NewDispatcher(exec downstreamCaller, notifications, audit Route, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{exec: exec, notifications: notifications, audit: audit, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, notifications []domain.Notification, audit *domain.AuditRecord) {
	if len(notifications) == 0 && audit == nil {
		return
	}
	// The request context ends with the HTTP response.
	ctx = logging.WithLogger(context.WithoutCancel(ctx), d.logger)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for _, n := range notifications {
			d.send(ctx, OpNotify, d.notifications, string(n.Kind), n)
		}
		if audit != nil {
			d.send(ctx, OpAudit, d.audit, audit.Provider+":"+audit.EventID, audit)
		}
	}()
}

func (d *Dispatcher) send(ctx context.Context, operation string, route Route, key string, msg any) {
	body, err := json.Marshal(msg)
	if err != nil {
		d.logger.Error("failed to encode side effect", "operation", operation, "error", err)
		return
	}

	err = resilience.WithFallback(ctx, operation,
		func(ctx context.Context) error {
			return d.exec.Call(ctx, operation, func(ctx context.Context) error {
				return route.Primary.Publish(ctx, key, body)
			})
		},
		func(ctx context.Context) error {
			if route.Fallback == nil {
				return domain.ErrDownstream
			}
			return route.Fallback.Publish(ctx, key, body)
		},
	)
	if err != nil {
		d.logger.Error("side effect lost", "operation", operation, "key", key, "alert", true, "error", err)
	}
}

// Wait blocks until every dispatched side effect has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
