// Command frontdesk runs a voice front-desk agent in the terminal: it opens
// the microphone and speaker, connects a realtime Gemini Live session with
// the selected persona and books appointments through the business's
// scheduling webhook.
//
// Usage:
//
//	frontdesk [flags] [call|diagnose]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/frontdesk/internal/backend"
	"github.com/MrWong99/frontdesk/internal/config"
	"github.com/MrWong99/frontdesk/internal/console"
	"github.com/MrWong99/frontdesk/internal/diagnostics"
	"github.com/MrWong99/frontdesk/internal/health"
	"github.com/MrWong99/frontdesk/internal/live"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/persona"
	"github.com/MrWong99/frontdesk/internal/resilience"
	"github.com/MrWong99/frontdesk/internal/tools"
	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/s2s"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "frontdesk.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "KEY=VALUE file loaded into the environment when present")
	demo := flag.String("demo", "", "persona demo key (overrides persona.demo)")
	agent := flag.String("agent", "", "persona agent: booking or overflow (overrides persona.agent)")
	lang := flag.String("lang", "", "persona language: en or pl (overrides persona.language)")
	debug := flag.Bool("debug", false, "print the session's system log")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: frontdesk [flags] [call|diagnose]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	mode := "call"
	if flag.NArg() > 0 {
		mode = flag.Arg(0)
	}
	if mode != "call" && mode != "diagnose" {
		flag.Usage()
		return 2
	}

	// ── Configuration ─────────────────────────────────────────────────────────
	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "frontdesk: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "frontdesk: %v\n", err)
		return 1
	}
	applyOverrides(cfg, *demo, *agent, *lang)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "frontdesk: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Attributes: map[string]string{
			"frontdesk.demo":     cfg.Persona.Demo,
			"frontdesk.agent":    cfg.Persona.Agent,
			"frontdesk.language": cfg.Persona.Language,
		},
	})
	if err != nil {
		logger.Error("failed to init telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Persona ───────────────────────────────────────────────────────────────
	p, err := resolvePersona(cfg.Persona)
	if err != nil {
		logger.Error("failed to resolve persona", "err", err)
		return 1
	}
	webhookURL := cfg.WebhookURL(p)
	credential := cfg.Credential(os.LookupEnv)

	logger.Info("frontdesk starting",
		"version", version,
		"mode", mode,
		"config", *configPath,
		"business", p.Business,
		"agent", p.Name,
		"language", p.Language,
		"transport", cfg.Transport.Name,
		"webhook", webhookURL,
	)

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltins(reg, logger)

	transport, err := reg.CreateTransport(cfg.Transport, credential)
	if err != nil {
		logger.Error("failed to build transport", "err", err)
		return 1
	}
	device, err := reg.CreateDevice(cfg.Audio)
	if err != nil {
		logger.Error("failed to open audio device", "err", err)
		return 1
	}
	defer closeDevice(device, logger)

	sched, err := newScheduler(cfg.Scheduling, webhookURL, logger, metrics)
	if err != nil {
		logger.Error("failed to build scheduling client", "err", err)
		return 1
	}
	scheduler := newSwapScheduler(sched)
	store := backend.NewStore()

	// ── Debug listener (optional) ─────────────────────────────────────────────
	if cfg.Server.DebugAddr != "" {
		checks := health.New(
			diagnostics.AuthCheck(credential),
			scheduler.webhookCheck(),
		)
		endpoints := func() []resilience.EntryState { return scheduler.Client().Endpoints() }
		handler := debugHandler(checks, store, endpoints, metrics)
		if err := serveDebug(ctx, cfg.Server.DebugAddr, handler, logger); err != nil {
			logger.Error("failed to start debug listener", "addr", cfg.Server.DebugAddr, "err", err)
			return 1
		}
	}

	session := s2s.SessionConfig{
		APIKey: credential,
		Model:  cfg.Transport.Model,
		Voice:  p.Voice,
	}

	if mode == "diagnose" {
		runner := &diagnostics.Runner{
			Credential: credential,
			Device:     device,
			SampleRate: cfg.Audio.InputSampleRate,
			Transport:  transport,
			Session:    session,
			Webhook:    sched,
			WebhookURL: webhookURL,
			Logger:     logger,
		}
		rep := runner.Run(ctx)
		if err := console.RenderReport(os.Stdout, rep, webhookURL); err != nil {
			logger.Error("failed to render report", "err", err)
		}
		if !rep.OK() {
			return 1
		}
		return 0
	}

	// ── Call ──────────────────────────────────────────────────────────────────
	registry := tools.NewRegistry(tools.WithLogger(logger), tools.WithMetrics(metrics))
	if err := registry.Register(
		tools.ScheduleAppointment(scheduler, store),
		tools.LogCallback(store),
	); err != nil {
		logger.Error("failed to register tools", "err", err)
		return 1
	}

	if w := watchConfig(*configPath, level, scheduler, p.WebhookURL, logger, metrics); w != nil {
		defer w.Stop()
		reloadOnHangup(ctx, w)
	}

	presenter := console.NewPresenter(os.Stdout, p, console.WithDebug(*debug))
	cb := presenter.Callbacks()
	onState := cb.OnStateChange
	cb.OnStateChange = func(s live.State) {
		if s == live.StateActive {
			store.LogCallStart()
		}
		onState(s)
	}

	call := live.New(live.Config{
		Credential:          credential,
		Model:               cfg.Transport.Model,
		Voice:               p.Voice,
		Instructions:        p.Instructions,
		Tools:               registry.Definitions(),
		InputSampleRate:     cfg.Audio.InputSampleRate,
		OutputSampleRate:    cfg.Audio.OutputSampleRate,
		TransportSampleRate: cfg.Audio.TransportSampleRate,
		TimeZone:            cfg.Persona.TimeZone,
		TransportName:       cfg.Transport.Name,
	}, live.Deps{
		Transport: transport,
		Device:    device,
		Executor:  registry,
		Logger:    logger,
		Metrics:   metrics,
	}, cb)

	logger.Info("call starting", observe.CallIDKey, call.ID())
	fmt.Fprintf(os.Stdout, "%s · %s. Press Ctrl+C to hang up.\n", p.Business, p.Name)
	if err := call.Connect(ctx); err != nil {
		// The presenter has already printed the failure.
		logger.Debug("connect failed", "err", err)
		return 1
	}

	select {
	case <-ctx.Done():
	case <-call.Done():
	}
	call.Disconnect()
	presenter.Flush()

	if err := console.RenderDashboard(os.Stdout, store.Stats(), p.Labels); err != nil {
		logger.Error("failed to render dashboard", "err", err)
	}
	if call.State() == live.StateErrored {
		return 1
	}
	return 0
}

// applyOverrides copies non-empty persona flags into cfg.
func applyOverrides(cfg *config.Config, demo, agent, lang string) {
	if demo != "" {
		cfg.Persona.Demo = demo
	}
	if agent != "" {
		cfg.Persona.Agent = agent
	}
	if lang != "" {
		cfg.Persona.Language = lang
	}
}

func resolvePersona(pc config.PersonaConfig) (persona.Persona, error) {
	catalog := persona.DefaultCatalog()
	if pc.Catalog != "" {
		c, err := persona.LoadCatalogFile(pc.Catalog)
		if err != nil {
			return persona.Persona{}, err
		}
		catalog = c
	}
	return catalog.Resolve(pc.Demo, pc.Agent, pc.Language)
}

// watchConfig reloads the log level and the scheduling client while a call
// runs. It returns nil when there is no config file to watch.
func watchConfig(path string, level *slog.LevelVar, sched *swapScheduler, personaURL string, logger *slog.Logger, m *observe.Metrics) *config.Watcher {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			logger.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.WebhookChanged {
			url := new.Scheduling.WebhookURL
			if url == "" {
				url = personaURL
			}
			c, err := newScheduler(new.Scheduling, url, logger, m)
			if err != nil {
				logger.Warn("scheduling reload rejected", "err", err)
			} else {
				sched.Swap(c)
				logger.Info("scheduling client reloaded", "webhook", url)
			}
		}
		if len(d.RestartRequired) > 0 {
			logger.Warn("config changes need a restart", "keys", d.RestartRequired)
		}
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("config watcher disabled", "err", err)
		return nil
	}
	return w
}

// reloadOnHangup forces a config reload on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				w.Reload()
			}
		}
	}()
}

func closeDevice(dev audio.Device, logger *slog.Logger) {
	if c, ok := dev.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("audio device close", "err", err)
		}
	}
}
