// Package health runs named dependency checks and serves them over HTTP.
//
// The same [Checker] values back two consumers: the debug listener's
// /readyz probe and the interactive diagnostics run, which prints each
// check's outcome and latency.
//
//   - /healthz: liveness; always 200 OK.
//   - /readyz: readiness; 200 only when every checker passes.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map holding each checker's result and latency.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DefaultCheckTimeout bounds a single check when [Checker.Timeout] is zero.
const DefaultCheckTimeout = 5 * time.Second

// Checker is a named check. Check returns nil when the dependency is usable.
type Checker struct {
	// Name labels the check in results, e.g. "auth" or "webhook".
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error

	// Timeout overrides DefaultCheckTimeout.
	Timeout time.Duration
}

// Result is the outcome of one check.
type Result struct {
	Name    string
	Err     error
	Latency time.Duration

	// Skipped is set by [RunUntilFailure] for checks after a failure.
	Skipped bool
}

// OK reports whether the check ran and passed.
func (r Result) OK() bool { return !r.Skipped && r.Err == nil }

// Status renders r as "ok", "skipped" or "fail: <err>".
func (r Result) Status() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Err != nil:
		return "fail: " + r.Err.Error()
	default:
		return "ok"
	}
}

// Run evaluates every checker in order.
func Run(ctx context.Context, checkers ...Checker) []Result {
	out := make([]Result, 0, len(checkers))
	for _, c := range checkers {
		out = append(out, runOne(ctx, c))
	}
	return out
}

// RunUntilFailure evaluates checkers in order and marks the ones after the
// first failure as skipped.
func RunUntilFailure(ctx context.Context, checkers ...Checker) []Result {
	out := make([]Result, 0, len(checkers))
	failed := false
	for _, c := range checkers {
		if failed {
			out = append(out, Result{Name: c.Name, Skipped: true})
			continue
		}
		r := runOne(ctx, c)
		failed = r.Err != nil
		out = append(out, r)
	}
	return out
}

func runOne(ctx context.Context, c Checker) Result {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := c.Check(cctx)
	return Result{Name: c.Name, Err: err, Latency: time.Since(start)}
}

type checkJSON struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type response struct {
	Status string               `json:"status"`
	Checks map[string]checkJSON `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New returns a [Handler] that evaluates checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always answers 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz answers 200 when every checker passes and 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := response{Status: "ok", Checks: make(map[string]checkJSON, len(h.checkers))}
	status := http.StatusOK
	for _, cr := range Run(r.Context(), h.checkers...) {
		res.Checks[cr.Name] = checkJSON{Status: cr.Status(), LatencyMS: cr.Latency.Milliseconds()}
		if !cr.OK() {
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
