// Package tools implements the functions the voice agent may call during a
// session and the [Registry] that dispatches them.
//
// Two tools are provided: "scheduleAppointment" ([ScheduleAppointment])
// forwards a booking request to the scheduling webhook, and "logCallback"
// ([LogCallback]) records a request for staff to call the customer back.
// Parameter schemas are reflected from the Go argument structs.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/pkg/provider/s2s"
)

// Executor runs a named tool. Unknown names yield an empty result and no
// error. Implementations must be safe for concurrent use and must honour
// ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// Handler executes one tool call with the model-supplied arguments.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Tool pairs a model-facing declaration with its handler.
type Tool struct {
	Definition s2s.ToolDefinition
	Handler    Handler
}

// ErrDuplicateTool is returned by [Registry.Register] for a name that is
// already registered.
var ErrDuplicateTool = errors.New("tools: duplicate tool name")

// Compile-time interface assertion.
var _ Executor = (*Registry)(nil)

// RegistryOption configures a [Registry].
type RegistryOption func(*Registry)

// WithLogger sets the registry logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// Registry is an [Executor] over a fixed set of [Tool]s. Register all tools
// before sharing the registry; Execute is safe for concurrent use.
type Registry struct {
	logger  *slog.Logger
	metrics *observe.Metrics

	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Register adds tools in order. It fails on an empty or duplicate name or a
// nil handler, registering none of the given tools.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		name := t.Definition.Name
		switch {
		case name == "":
			return errors.New("tools: tool name must not be empty")
		case t.Handler == nil:
			return fmt.Errorf("tools: %s: nil handler", name)
		case seen[name]:
			return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		if _, ok := r.tools[name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		seen[name] = true
	}
	for _, t := range tools {
		r.tools[t.Definition.Name] = t
		r.order = append(r.order, t.Definition.Name)
	}
	return nil
}

// Definitions returns the declarations of all registered tools in
// registration order.
func (r *Registry) Definitions() []s2s.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]s2s.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Execute runs the named tool. An unknown name is logged and answered with
// an empty map.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		r.metrics.RecordToolCall(ctx, name, "unknown")
		return map[string]any{}, nil
	}

	ctx, span := observe.StartSpan(ctx, "tools.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	start := time.Now()
	result, err := t.Handler(ctx, args)
	elapsed := time.Since(start)

	r.metrics.ToolExecutionDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("tool", name)))

	log := observe.LoggerFrom(ctx, r.logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.RecordToolCall(ctx, name, "error")
		log.Warn("tool failed", "tool", name, "duration", elapsed, "err", err)
		return nil, err
	}
	if result == nil {
		result = map[string]any{}
	}
	r.metrics.RecordToolCall(ctx, name, "ok")
	log.Debug("tool finished", "tool", name, "duration", elapsed)
	return result, nil
}

// ── Progress notes ──────────────────────────────────────────────────────────

// Note is a progress message a handler reports while it runs, such as the
// outgoing webhook request and its answer.
type Note struct {
	Message string
	Data    any
}

type notifierKey struct{}

// WithNotifier returns a context whose handlers report [Note]s to fn.
func WithNotifier(ctx context.Context, fn func(Note)) context.Context {
	return context.WithValue(ctx, notifierKey{}, fn)
}

// notify reports n to the notifier in ctx, if any.
func notify(ctx context.Context, n Note) {
	if fn, ok := ctx.Value(notifierKey{}).(func(Note)); ok && fn != nil {
		fn(n)
	}
}
