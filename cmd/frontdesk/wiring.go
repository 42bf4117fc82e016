package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/frontdesk/internal/config"
	"github.com/MrWong99/frontdesk/internal/diagnostics"
	"github.com/MrWong99/frontdesk/internal/health"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/resilience"
	"github.com/MrWong99/frontdesk/internal/scheduling"
	"github.com/MrWong99/frontdesk/internal/tools"
	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/audio/miniaudio"
	"github.com/MrWong99/frontdesk/pkg/provider/s2s"
	"github.com/MrWong99/frontdesk/pkg/provider/s2s/gemini"
	"github.com/MrWong99/frontdesk/pkg/provider/s2s/genailive"
)

// ── Registry wiring ───────────────────────────────────────────────────────────

// registerBuiltins registers the transports and audio devices that ship
// with frontdesk.
func registerBuiltins(reg *config.Registry, logger *slog.Logger) {
	reg.RegisterTransport(config.TransportGeminiLive, func(cfg config.TransportConfig, apiKey string) (s2s.Transport, error) {
		opts := []gemini.Option{gemini.WithLogger(logger)}
		if cfg.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
		}
		return gemini.New(apiKey, opts...), nil
	})

	reg.RegisterTransport(config.TransportGenAI, func(cfg config.TransportConfig, apiKey string) (s2s.Transport, error) {
		opts := []genailive.Option{genailive.WithLogger(logger)}
		if cfg.Model != "" {
			opts = append(opts, genailive.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, genailive.WithBaseURL(cfg.BaseURL))
		}
		return genailive.New(apiKey, opts...), nil
	})

	reg.RegisterDevice(config.DeviceMiniaudio, func(config.AudioConfig) (audio.Device, error) {
		return miniaudio.New()
	})
}

// ── Scheduling ────────────────────────────────────────────────────────────────

func newScheduler(cfg config.SchedulingConfig, endpoint string, logger *slog.Logger, m *observe.Metrics) (*scheduling.Client, error) {
	return scheduling.New(endpoint,
		scheduling.WithFallbackURLs(cfg.FallbackURLs...),
		scheduling.WithTimeout(cfg.Timeout),
		scheduling.WithCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "scheduling",
			MaxFailures:  cfg.CircuitBreaker.MaxFailures,
			ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("scheduling endpoint breaker", "endpoint", name, "from", from, "to", to)
			},
		}),
		scheduling.WithLogger(logger),
		scheduling.WithMetrics(m),
	)
}

// swapScheduler forwards to the current client. A config reload replaces
// the client without touching the tool registry.
type swapScheduler struct {
	cur atomic.Pointer[scheduling.Client]
}

var _ tools.Scheduler = (*swapScheduler)(nil)

func newSwapScheduler(c *scheduling.Client) *swapScheduler {
	s := &swapScheduler{}
	s.cur.Store(c)
	return s
}

func (s *swapScheduler) Schedule(ctx context.Context, req scheduling.Request) (scheduling.Response, error) {
	return s.cur.Load().Schedule(ctx, req)
}

func (s *swapScheduler) Client() *scheduling.Client { return s.cur.Load() }

func (s *swapScheduler) Swap(c *scheduling.Client) { s.cur.Store(c) }

// webhookCheck probes the primary endpoint of whichever client is current
// when the check runs, with a booking dated that day.
func (s *swapScheduler) webhookCheck() health.Checker {
	probe := func() health.Checker {
		c := s.Client()
		return diagnostics.WebhookCheck(c, c.Endpoint(), diagnostics.TestRequest(time.Now()), nil)
	}
	chk := probe()
	chk.Check = func(ctx context.Context) error { return probe().Check(ctx) }
	return chk
}

// ── Logging ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
