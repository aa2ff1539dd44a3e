// Package resilience shields post-commit side effects from flaky downstream
// sinks with retry, a per-operation circuit breaker and primary/fallback
// execution.
package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrBreakerOpen = errors.New("circuit breaker open")

// Clock is injected so breaker cooldowns can be driven by tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Breaker counts consecutive failures of one named operation. At threshold
// it opens and fails fast until cooldown has elapsed, then admits exactly
// one probe: success closes it, failure reopens it.
//
// Every state change starts a new generation. Results recorded against an
// older generation are dropped, so a slow call admitted before the breaker
// tripped cannot close it during the cooldown.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	clock     Clock

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	gen      uint64
}

func NewBreaker(name string, threshold int, cooldown time.Duration, clock Clock) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown, clock: clock, state: StateClosed}
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && !b.clock.Now().Before(b.openedAt.Add(b.cooldown)) {
		return StateHalfOpen
	}
	return b.state
}

// Allow reserves a call slot and returns the generation it belongs to.
// Every successful Allow must be followed by exactly one Record with that
// generation.
func (b *Breaker) Allow() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return b.gen, nil
	case StateOpen:
		if b.clock.Now().Before(b.openedAt.Add(b.cooldown)) {
			return b.gen, fmt.Errorf("%s: %w", b.name, ErrBreakerOpen)
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return b.gen, nil
	default:
		if b.probing {
			return b.gen, fmt.Errorf("%s: probe in flight: %w", b.name, ErrBreakerOpen)
		}
		b.probing = true
		return b.gen, nil
	}
}

func (b *Breaker) Record(gen uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.gen {
		return
	}

	if err == nil {
		if b.state == StateHalfOpen {
			b.setState(StateClosed)
		}
		b.failures = 0
		return
	}

	if b.state == StateHalfOpen {
		b.setState(StateOpen)
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(next State) {
	b.state = next
	b.gen++
	b.failures = 0
	b.probing = false
	if next == StateOpen {
		b.openedAt = b.clock.Now()
	}
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(fn func() error) error {
	gen, err := b.Allow()
	if err != nil {
		return err
	}
	err = fn()
	b.Record(gen, err)
	return err
}

// Registry hands out one breaker per operation name. Each Registry is
// independent, so tests can run many side by side.
type Registry struct {
	threshold int
	cooldown  time.Duration
	clock     Clock

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewRegistry(threshold int, cooldown time.Duration, clock Clock) *Registry {
	return &Registry{threshold: threshold, cooldown: cooldown, clock: clock, breakers: make(map[string]*Breaker)}
}

func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = NewBreaker(name, r.threshold, r.cooldown, r.clock)
		r.breakers[name] = b
	}
	return b
}

// States snapshots every breaker, keyed by operation name.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make(map[string]State, len(breakers))
	for _, b := range breakers {
		out[b.Name()] = b.State()
	}
	return out
}
