package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/logging"
)

// Executor combines retry and the named breakers for one downstream call.
type Executor struct {
	policy   RetryPolicy
	breakers *Registry
}

func NewExecutor(policy RetryPolicy, breakers *Registry) *Executor {
	return &Executor{policy: policy, breakers: breakers}
}

func (e *Executor) Breakers() *Registry { return e.breakers }

// Call retries op under the breaker named operation. Each attempt passes
// through the breaker, so an opening breaker stops the remaining attempts.
func (e *Executor) Call(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	b := e.breakers.Get(operation)
	err := Retry(ctx, e.policy, operation, func(ctx context.Context) error {
		return b.Execute(func() error { return op(ctx) })
	})
	if err != nil {
		return &domain.DownstreamError{Operation: operation, Err: err}
	}
	return nil
}

// WithFallback runs primary and, if it fails, fallback. When both fail the
// joined error is returned; the caller's committed state is never touched.
func WithFallback(ctx context.Context, operation string, primary, fallback func(ctx context.Context) error) error {
	perr := primary(ctx)
	if perr == nil {
		return nil
	}
	logging.FromContext(ctx).Warn("primary failed, using fallback", "operation", operation, "error", perr)

	ferr := fallback(ctx)
	if ferr == nil {
		return nil
	}
	return &domain.DownstreamError{
		Operation: operation,
		Err:       errors.Join(fmt.Errorf("primary: %w", perr), fmt.Errorf("fallback: %w", ferr)),
	}
}
