package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

var errWebhook = errors.New("webhook returned 502")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// breakerUnderTest builds a breaker with 2 failures to open, a one minute
// cool-down and 2 probes, plus a log of its transitions.
func breakerUnderTest(clock *fakeClock) (*CircuitBreaker, *[]string) {
	var mu sync.Mutex
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "https://hooks.example.com/book",
		MaxFailures:  2,
		ResetTimeout: time.Minute,
		HalfOpenMax:  2,
		Logger:       quiet,
		Now:          clock.Now,
		OnStateChange: func(_ string, from, to State) {
			mu.Lock()
			transitions = append(transitions, from.String()+">"+to.String())
			mu.Unlock()
		},
	})
	return cb, &transitions
}

// step is one call against the breaker, encoded as a short token:
//
//	ok    fn succeeds
//	fail  fn fails
//	wait  advance the clock past the cool-down (no call)
type step string

func run(t *testing.T, cb *CircuitBreaker, clock *fakeClock, steps []step) (calls int, refused int) {
	t.Helper()
	for _, s := range steps {
		var fnErr error
		switch s {
		case "wait":
			clock.Advance(time.Minute)
			continue
		case "ok":
		case "fail":
			fnErr = errWebhook
		default:
			t.Fatalf("unknown step %q", s)
		}
		err := cb.Execute(func() error {
			calls++
			return fnErr
		})
		if errors.Is(err, ErrCircuitOpen) {
			refused++
		}
	}
	return calls, refused
}

func TestCircuitBreaker_Scenarios(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		steps       []step
		wantState   State
		wantCalls   int
		wantRefused int
		wantTrans   string
	}{
		{
			name:      "fresh breaker passes calls",
			steps:     []step{"ok", "ok", "fail"},
			wantState: StateClosed,
			wantCalls: 3,
		},
		{
			name:        "consecutive failures open it",
			steps:       []step{"fail", "fail", "ok"},
			wantState:   StateOpen,
			wantCalls:   2,
			wantRefused: 1,
			wantTrans:   "closed>open",
		},
		{
			name:      "a success resets the streak",
			steps:     []step{"fail", "ok", "fail", "ok"},
			wantState: StateClosed,
			wantCalls: 4,
		},
		{
			name:      "cool-down then clean probes close it",
			steps:     []step{"fail", "fail", "wait", "ok", "ok"},
			wantState: StateClosed,
			wantCalls: 4,
			wantTrans: "closed>open open>half-open half-open>closed",
		},
		{
			name:      "a failed probe reopens it",
			steps:     []step{"fail", "fail", "wait", "ok", "fail"},
			wantState: StateOpen,
			wantCalls: 4,
			wantTrans: "closed>open open>half-open half-open>open",
		},
		{
			name:      "reopened breaker can recover after another cool-down",
			steps:     []step{"fail", "fail", "wait", "fail", "wait", "ok", "ok", "fail"},
			wantState: StateClosed,
			wantCalls: 6,
			wantTrans: "closed>open open>half-open half-open>open open>half-open half-open>closed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clock := newFakeClock()
			cb, trans := breakerUnderTest(clock)

			calls, refused := run(t, cb, clock, tt.steps)

			if got := cb.State(); got != tt.wantState {
				t.Errorf("state = %v, want %v", got, tt.wantState)
			}
			if calls != tt.wantCalls {
				t.Errorf("fn calls = %d, want %d", calls, tt.wantCalls)
			}
			if refused != tt.wantRefused {
				t.Errorf("refused = %d, want %d", refused, tt.wantRefused)
			}
			if got := strings.Join(*trans, " "); got != tt.wantTrans {
				t.Errorf("transitions = %q, want %q", got, tt.wantTrans)
			}
		})
	}
}

func TestCircuitBreaker_StateReportsElapsedCoolDown(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	cb, trans := breakerUnderTest(clock)
	run(t, cb, clock, []step{"fail", "fail"})

	clock.Advance(59 * time.Second)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state before cool-down = %v", got)
	}
	clock.Advance(time.Second)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("state after cool-down = %v, want half-open", got)
	}
	// Reading the state does not transition.
	if got := strings.Join(*trans, " "); got != "closed>open" {
		t.Errorf("transitions = %q", got)
	}
}

func TestCircuitBreaker_ProbeBudget(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	cb, _ := breakerUnderTest(clock)
	run(t, cb, clock, []step{"fail", "fail", "wait"})

	// Hold both probes in flight; a third caller is refused.
	release := make(chan struct{})
	var wg sync.WaitGroup
	started := make(chan struct{}, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(func() error {
				started <- struct{}{}
				<-release
				return nil
			})
		}()
	}
	<-started
	<-started

	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("third probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	wg.Wait()

	if got := cb.State(); got != StateClosed {
		t.Errorf("state after probes = %v, want closed", got)
	}
}

func TestCircuitBreaker_IgnoredErrors(t *testing.T) {
	t.Parallel()
	benign := errors.New("caller error")
	tests := []struct {
		name      string
		isFailure func(error) bool
		err       error
	}{
		{"cancelled context by default", nil, fmt.Errorf("post: %w", context.Canceled)},
		{"custom classifier", func(err error) bool { return !errors.Is(err, benign) }, benign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, IsFailure: tt.isFailure, Logger: quiet})
			for range 3 {
				if err := cb.Execute(func() error { return tt.err }); !errors.Is(err, tt.err) {
					t.Fatalf("Execute err = %v, want the fn error", err)
				}
			}
			if got := cb.State(); got != StateClosed {
				t.Errorf("state = %v, want closed", got)
			}
		})
	}

	if !DefaultIsFailure(context.DeadlineExceeded) {
		t.Error("a deadline is the endpoint's failure")
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	cb, trans := breakerUnderTest(clock)
	run(t, cb, clock, []step{"fail", "fail"})

	cb.Reset()
	cb.Reset()

	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v", got)
	}
	if got := strings.Join(*trans, " "); got != "closed>open open>closed" {
		t.Errorf("transitions = %q", got)
	}
	// The failure streak starts over.
	if calls, _ := run(t, cb, clock, []step{"fail", "ok"}); calls != 2 {
		t.Errorf("calls after reset = %d", calls)
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "x"})
	if cb.cfg.MaxFailures != DefaultMaxFailures || cb.cfg.ResetTimeout != DefaultResetTimeout || cb.cfg.HalfOpenMax != DefaultHalfOpenMax {
		t.Errorf("defaults = %+v", cb.cfg)
	}
	if cb.Name() != "x" || cb.State() != StateClosed {
		t.Errorf("name=%q state=%v", cb.Name(), cb.State())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(7):      "unknown",
		State(-1):     "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", int(s), got, want)
		}
	}
}
