// Package observe wires frontdesk into OpenTelemetry. It covers call
// metrics, spans tagged with the call ID, trace-aware loggers and the debug
// listener's HTTP middleware.
//
// Instruments go through the OTel metrics API; [InitProvider] bridges them
// to Prometheus for the debug listener's /metrics route. Production code
// shares [DefaultMetrics]. Tests build their own with [NewMetrics] over a
// manual reader.
package observe

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/frontdesk"

// Metrics is the set of frontdesk instruments. The zero value is not usable;
// build one with [NewMetrics] or take [DefaultMetrics].
type Metrics struct {
	// Latency, in seconds.
	ToolExecutionDuration metric.Float64Histogram // attr: tool
	WebhookDuration       metric.Float64Histogram
	ConnectDuration       metric.Float64Histogram
	HTTPRequestDuration   metric.Float64Histogram // attrs: method, route, status

	ToolCalls          metric.Int64Counter // attrs: tool, status
	WebhookRequests    metric.Int64Counter // attr: status
	SessionTransitions metric.Int64Counter // attr: state
	AudioChunks        metric.Int64Counter // attr: direction ("in" or "out")
	TransportErrors    metric.Int64Counter // attr: transport

	ActiveSessions metric.Int64UpDownCounter
}

// callBuckets covers sub-second tool work up to the 15s webhook deadline.
var callBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 20}

// connectBuckets is tuned for the websocket handshake plus setup.
var connectBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13}

// instruments creates instruments on one meter and remembers every failure.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (b *instruments) histogram(name, desc string, buckets []float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	b.errs = append(b.errs, err)
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return c
}

func (b *instruments) upDown(name, desc string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return c
}

// NewMetrics creates every instrument on mp's frontdesk meter.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		ToolExecutionDuration: b.histogram("frontdesk.tool_execution.duration", "Tool handler latency.", callBuckets),
		WebhookDuration:       b.histogram("frontdesk.webhook.duration", "Scheduling webhook round trip, failover included.", callBuckets),
		ConnectDuration:       b.histogram("frontdesk.session.connect.duration", "Time from Connect to an active session.", connectBuckets),
		HTTPRequestDuration:   b.histogram("frontdesk.http.request.duration", "Debug listener request latency.", nil),

		ToolCalls:          b.counter("frontdesk.tool.calls", "Tool invocations by tool and outcome."),
		WebhookRequests:    b.counter("frontdesk.webhook.requests", "Scheduling webhook requests by outcome."),
		SessionTransitions: b.counter("frontdesk.session.transitions", "Session state changes by target state."),
		AudioChunks:        b.counter("frontdesk.audio.chunks", "Realtime audio chunks by direction."),
		TransportErrors:    b.counter("frontdesk.transport.errors", "Sessions ended by a transport failure."),

		ActiveSessions: b.upDown("frontdesk.active_sessions", "Voice sessions currently active."),
	}
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide instruments built on
// [otel.GetMeterProvider] at first use. Call [InitProvider] before the first
// call or the instruments stay bound to the no-op provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

func add(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordToolCall counts one tool invocation. status is "ok", "error" or
// "unknown".
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	add(ctx, m.ToolCalls, attribute.String("tool", tool), attribute.String("status", status))
}

func (m *Metrics) RecordWebhookRequest(ctx context.Context, status string) {
	add(ctx, m.WebhookRequests, attribute.String("status", status))
}

func (m *Metrics) RecordStateTransition(ctx context.Context, state string) {
	add(ctx, m.SessionTransitions, attribute.String("state", state))
}

func (m *Metrics) RecordAudioChunk(ctx context.Context, direction string) {
	add(ctx, m.AudioChunks, attribute.String("direction", direction))
}

func (m *Metrics) RecordTransportError(ctx context.Context, transport string) {
	add(ctx, m.TransportErrors, attribute.String("transport", transport))
}
