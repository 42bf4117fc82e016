// Package scheduling is the HTTP client for the external scheduling webhook
// that confirms appointment requests.
//
// The webhook receives a JSON body with the caller's details and answers
// with a JSON object whose "status" field is a human-readable outcome such
// as "Confirmed for 10:00". A [Client] walks its endpoints in order (the
// persona's webhook first, then any configured fallbacks), each guarded by
// its own circuit breaker, under a single overall deadline.
package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/resilience"
)

const (
	// DefaultTimeout bounds a whole scheduling attempt, failover included.
	DefaultTimeout = 15 * time.Second

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 1 << 20

	// errBodyPreview is how much of a non-2xx body is kept in a StatusError.
	errBodyPreview = 100
)

var (
	// ErrTimeout is returned when the webhook did not answer within the
	// client's timeout.
	ErrTimeout = errors.New("scheduling: request timed out")

	// ErrEmptyBody is returned for a 2xx response without a body.
	ErrEmptyBody = errors.New("scheduling: empty response body")

	// ErrNoStatus is returned when the response JSON has no usable "status".
	ErrNoStatus = errors.New("scheduling: response has no status")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scheduling: server returned %d: %s", e.Code, e.Body)
}

// Request is the JSON body posted to the webhook.
type Request struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	Request string `json:"request"`
}

// Response is a decoded webhook answer.
type Response struct {
	// Status is the "status" field rendered as text.
	Status string

	// Endpoint is the URL that answered.
	Endpoint string

	// Fields holds the whole decoded object.
	Fields map[string]any
}

// Confirmed reports whether Status announces a confirmed booking, in
// English or Polish.
func (r Response) Confirmed() bool {
	s := strings.ToLower(r.Status)
	return strings.Contains(s, "confirmed") || strings.Contains(s, "potwierdzona")
}

// Option configures a [Client].
type Option func(*Client)

// WithFallbackURLs appends endpoints tried after the primary, in order.
func WithFallbackURLs(urls ...string) Option {
	return func(c *Client) { c.fallbacks = append(c.fallbacks, urls...) }
}

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCircuitBreaker sets the per-endpoint breaker template.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Client) { c.breaker = cfg }
}

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client posts scheduling requests. It is safe for concurrent use.
type Client struct {
	endpoint  string
	fallbacks []string
	timeout   time.Duration
	breaker   resilience.CircuitBreakerConfig
	http      *http.Client
	logger    *slog.Logger
	metrics   *observe.Metrics

	group *resilience.FallbackGroup[string]
}

// New returns a Client for the webhook at endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("scheduling: endpoint must not be empty")
	}
	c := &Client{
		endpoint: endpoint,
		timeout:  DefaultTimeout,
		http:     &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}

	if c.breaker.Logger == nil {
		c.breaker.Logger = c.logger
	}
	c.group = resilience.NewFallbackGroup(endpoint, endpoint, resilience.FallbackConfig{
		CircuitBreaker: c.breaker,
		Stop:           isContextErr,
	})
	for _, u := range c.fallbacks {
		if u != "" && u != endpoint {
			c.group.AddFallback(u, u)
		}
	}
	return c, nil
}

// Endpoint returns the primary webhook URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Timeout returns the overall per-request deadline.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Endpoints reports the breaker state of every endpoint.
func (c *Client) Endpoints() []resilience.EntryState { return c.group.States() }

// Schedule posts req to the first endpoint that answers. All attempts share
// one deadline of [Client.Timeout]; when it expires the error wraps
// [ErrTimeout]. Otherwise the last endpoint's error is returned wrapped in
// [resilience.ErrAllFailed].
func (c *Client) Schedule(ctx context.Context, req Request) (Response, error) {
	ctx, span := observe.StartSpan(ctx, "scheduling.Schedule")
	defer span.End()

	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := resilience.ExecuteWithResult(c.group, func(url string) (Response, error) {
		return c.post(tctx, url, req)
	})
	err = c.classify(tctx, err)
	c.observe(ctx, start, err)
	if err != nil {
		span.RecordError(err)
		return Response{}, err
	}

	observe.LoggerFrom(ctx, c.logger).Info("scheduling request answered",
		"endpoint", resp.Endpoint,
		"status", resp.Status,
		"duration", time.Since(start))
	return resp, nil
}

// Ping posts req to url directly, bypassing failover and circuit breakers.
// Diagnostics use it to probe a single webhook.
func (c *Client) Ping(ctx context.Context, url string, req Request) (Response, error) {
	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(tctx, url, req)
	return resp, c.classify(tctx, err)
}

func (c *Client) post(ctx context.Context, url string, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("scheduling: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("scheduling: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	observe.LoggerFrom(ctx, c.logger).Debug("posting scheduling request", "endpoint", url)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("scheduling: post: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("scheduling: read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return Response{}, &StatusError{Code: httpResp.StatusCode, Body: preview(raw, errBodyPreview)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Response{}, ErrEmptyBody
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Response{}, fmt.Errorf("scheduling: decode response %q: %w", preview(raw, 50), err)
	}
	status, ok := fields["status"]
	if !ok || status == nil {
		return Response{}, ErrNoStatus
	}
	text, ok := status.(string)
	if !ok {
		text = fmt.Sprint(status)
	}
	if text == "" {
		return Response{}, ErrNoStatus
	}
	return Response{Status: text, Endpoint: url, Fields: fields}, nil
}

// classify maps an expired client deadline to ErrTimeout.
func (c *Client) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrTimeout, c.timeout, err)
	}
	return err
}

func (c *Client) observe(ctx context.Context, start time.Time, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrTimeout):
		status = "timeout"
	case errors.Is(err, context.Canceled):
		status = "canceled"
	default:
		status = "error"
	}
	c.metrics.WebhookDuration.Record(ctx, time.Since(start).Seconds())
	c.metrics.RecordWebhookRequest(ctx, status)
	if err != nil && status != "canceled" {
		observe.LoggerFrom(ctx, c.logger).Warn("scheduling request failed", "status", status, "err", err)
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func preview(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		s = s[:n]
	}
	return s
}
