package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/logging"
)

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
	// AttemptTimeout bounds each attempt; a timed-out attempt is transient.
	AttemptTimeout time.Duration
}

// IsTransient reports whether err is worth another attempt. Validation
// failures and an open breaker are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, ErrBreakerOpen) {
		return false
	}
	var perm *backoff.PermanentError
	return !errors.As(err, &perm)
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.Multiplier = p.Factor
	eb.MaxInterval = p.MaxDelay
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()

	// WithMaxRetries treats zero as unlimited.
	if p.MaxAttempts <= 1 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)
}

// Retry runs op until it succeeds, fails non-transiently or runs out of
// attempts. Delays grow as BaseDelay × Factor^n, capped at MaxDelay.
func Retry(ctx context.Context, p RetryPolicy, operation string, op func(ctx context.Context) error) error {
	attempt := 0
	run := func() error {
		attempt++
		actx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}
		err := op(actx)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logging.FromContext(ctx).Warn("retrying downstream call",
			"operation", operation,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(run, p.backOff(ctx), notify); err != nil {
		return fmt.Errorf("%s: after %d attempt(s): %w", operation, attempt, err)
	}
	return nil
}
