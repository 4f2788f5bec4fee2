// Package resilience protects the pipeline's external calls. [Breaker] is a
// three-state circuit breaker; [Group] fails over across several instances
// of one provider type, each guarded by its own breaker.
//
// Failover is not retry: a call tries each healthy entry at most once.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero values select the defaults.
type BreakerConfig struct {
	// Name labels log lines and state change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before letting probe
	// calls through. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close the
	// breaker again. Default: 3.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition while the
	// breaker's lock is not held.
	OnStateChange func(name string, from, to State)
}

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	successes int
}

// NewBreaker creates a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Name returns the configured name.
func (b *Breaker) Name() string { return b.cfg.Name }

// Execute runs fn unless the breaker is open. Errors caused by ctx being
// cancelled or expiring are returned without counting as failures.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)
	if err != nil && ctx.Err() != nil {
		b.release(probe)
		return err
	}
	b.record(probe, err == nil)
	return err
}

// admit decides whether a call may proceed and whether it is a probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	var changed bool
	var from State
	defer func() {
		b.mu.Unlock()
		if changed {
			b.notify(from, StateHalfOpen)
		}
	}()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		from, changed = b.state, true
		b.state = StateHalfOpen
		b.probes, b.successes = 0, 0
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
	}
	if b.state == StateHalfOpen {
		b.probes++
		return true, nil
	}
	return false, nil
}

// release returns an unused probe slot.
func (b *Breaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}
	b.mu.Unlock()
}

func (b *Breaker) record(probe, ok bool) {
	b.mu.Lock()
	from := b.state
	switch {
	case ok && probe && b.state == StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenMax {
			b.state = StateClosed
			b.failures = 0
		}
	case ok:
		b.failures = 0
	case probe && b.state == StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
	default:
		b.failures++
		if b.state == StateClosed && b.failures >= b.cfg.MaxFailures {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

func (b *Breaker) notify(from, to State) {
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state changed",
		"name", b.cfg.Name, "from", from.String(), "to", to.String())
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State reports the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures, b.probes, b.successes = 0, 0, 0
	b.mu.Unlock()
	if from != StateClosed {
		b.notify(from, StateClosed)
	}
}
