package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no entry of a [Group] produced a result.
var ErrAllFailed = errors.New("all providers failed")

type entry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group holds a primary and zero or more fallbacks of one provider type.
// Entries are tried in registration order. Build the group fully before
// sharing it between goroutines.
type Group[T any] struct {
	cfg     BreakerConfig
	entries []entry[T]
}

// NewGroup creates a Group whose first entry is primary. cfg is the template
// for every entry's breaker; its Name is replaced by the entry name.
func NewGroup[T any](primaryName string, primary T, cfg BreakerConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(primaryName, primary)
	return g
}

// Add appends a fallback.
func (g *Group[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.entries = append(g.entries, entry[T]{name: name, value: value, breaker: NewBreaker(cfg)})
}

// Names lists entry names in failover order.
func (g *Group[T]) Names() []string {
	names := make([]string, len(g.entries))
	for i, e := range g.entries {
		names[i] = e.name
	}
	return names
}

// Primary returns the first entry's value.
func (g *Group[T]) Primary() T {
	return g.entries[0].value
}

// State is [StateOpen] only when every entry's breaker is open; otherwise
// the group can still serve calls and reports [StateClosed].
func (g *Group[T]) State() State {
	for _, e := range g.entries {
		if e.breaker.State() != StateOpen {
			return StateClosed
		}
	}
	return StateOpen
}

// Call runs fn against each entry in order until one succeeds. Entries with
// an open breaker are skipped. When every entry fails the returned error
// wraps [ErrAllFailed] and every individual error.
func Call[T, R any](ctx context.Context, g *Group[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for _, e := range g.entries {
		var out R
		err := e.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, e.value)
			return err
		})
		if err == nil {
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, err
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider with open circuit", "provider", e.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", e.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
	}
	if len(g.entries) == 1 {
		return zero, errs[0]
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
