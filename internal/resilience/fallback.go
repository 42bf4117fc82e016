package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed wraps the error of a [FallbackGroup] walk in which no entry
// succeeded.
var ErrAllFailed = errors.New("all endpoints failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is copied for every entry, with Name set to the
	// entry's name.
	CircuitBreaker CircuitBreakerConfig

	// Stop ends the walk on an error that a later entry cannot cure, such
	// as a deadline shared by every attempt. Optional.
	Stop func(error) bool
}

// EntryState is one entry's breaker state, as served on /stats.
type EntryState struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type member[T any] struct {
	name string
	v    T
	cb   *CircuitBreaker
}

// FallbackGroup holds ordered alternatives of one type, each behind its own
// circuit breaker. Calls go to the first member whose breaker admits them
// and move down the list on failure.
//
// Members are added during setup only. Once shared the group is safe for
// concurrent use.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
	log     *slog.Logger
}

// NewFallbackGroup returns a group whose first member is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg, log: cfg.CircuitBreaker.Logger}
	if fg.log == nil {
		fg.log = slog.Default()
	}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends v as the last alternative.
func (fg *FallbackGroup[T]) AddFallback(name string, v T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.members = append(fg.members, member[T]{name: name, v: v, cb: NewCircuitBreaker(bc)})
}

// Len counts the members, primary included.
func (fg *FallbackGroup[T]) Len() int { return len(fg.members) }

// States lists the members' breaker states in call order.
func (fg *FallbackGroup[T]) States() []EntryState {
	states := make([]EntryState, 0, len(fg.members))
	for _, m := range fg.members {
		states = append(states, EntryState{Name: m.name, State: m.cb.State().String()})
	}
	return states
}

// Execute is [ExecuteWithResult] for calls without a result.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult calls fn with each member in turn and returns the first
// success. Members with an open breaker are skipped. On total failure the
// error wraps [ErrAllFailed] and the last member's error.
func ExecuteWithResult[T, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var zero R
	var err error
	for i, m := range fg.members {
		var out R
		err = m.cb.Execute(func() error {
			var callErr error
			out, callErr = fn(m.v)
			return callErr
		})
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, ErrCircuitOpen):
			fg.log.Debug("endpoint skipped, circuit open", "endpoint", m.name)
		case fg.cfg.Stop != nil && fg.cfg.Stop(err):
			return zero, fmt.Errorf("%w: %s: %w", ErrAllFailed, m.name, err)
		case i+1 < len(fg.members):
			fg.log.Warn("endpoint failed, falling back", "endpoint", m.name, "next", fg.members[i+1].name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, err)
}
