package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/frontdesk/internal/persona"
)

// KnownTransports lists the transport names with a built-in factory.
// Used by [Validate] to warn about unrecognised names.
var KnownTransports = []string{TransportGeminiLive, TransportGenAI}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. A missing file yields [Default].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config file not found, using defaults", "path", path)
		cfg := Default()
		return cfg, Validate(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Default] and validates
// the result. An empty document is valid.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
// With no paths it reads ".env".
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load env %q: %w", p, err)
		}
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Transport
	if cfg.Transport.Name == "" {
		errs = append(errs, errors.New("transport.name is required"))
	} else if !slices.Contains(KnownTransports, cfg.Transport.Name) {
		slog.Warn("unknown transport name; it must be registered before use",
			"name", cfg.Transport.Name,
			"known", KnownTransports,
		)
	}
	if cfg.Transport.BaseURL != "" {
		if err := checkURL(cfg.Transport.BaseURL, "ws", "wss", "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("transport.base_url: %w", err))
		}
	}

	// Audio
	if cfg.Audio.Device == "" {
		errs = append(errs, errors.New("audio.device is required"))
	}
	for _, r := range []struct {
		name string
		v    int
	}{
		{"audio.input_sample_rate", cfg.Audio.InputSampleRate},
		{"audio.output_sample_rate", cfg.Audio.OutputSampleRate},
		{"audio.transport_sample_rate", cfg.Audio.TransportSampleRate},
	} {
		if r.v < 8000 || r.v > 192000 {
			errs = append(errs, fmt.Errorf("%s %d is out of range [8000, 192000]", r.name, r.v))
		}
	}

	// Persona
	p := cfg.Persona
	if p.Agent != persona.AgentBooking && p.Agent != persona.AgentOverflow {
		errs = append(errs, fmt.Errorf("persona.agent %q is invalid; valid values: booking, overflow", p.Agent))
	}
	if p.Language != persona.LanguageEnglish && p.Language != persona.LanguagePolish {
		errs = append(errs, fmt.Errorf("persona.language %q is invalid; valid values: en, pl", p.Language))
	}
	if p.Catalog == "" {
		if _, ok := persona.DefaultCatalog().Demos[p.Demo]; !ok {
			errs = append(errs, fmt.Errorf("persona.demo %q is not in the catalog; valid values: %v", p.Demo, persona.DefaultCatalog().DemoKeys()))
		}
	} else if p.Demo == "" {
		errs = append(errs, errors.New("persona.demo is required"))
	}
	if p.TimeZone != "" {
		if _, err := time.LoadLocation(p.TimeZone); err != nil {
			errs = append(errs, fmt.Errorf("persona.time_zone %q: %w", p.TimeZone, err))
		}
	}

	// Scheduling
	s := cfg.Scheduling
	if s.WebhookURL != "" {
		if err := checkURL(s.WebhookURL, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("scheduling.webhook_url: %w", err))
		}
	}
	for i, u := range s.FallbackURLs {
		if err := checkURL(u, "http", "https"); err != nil {
			errs = append(errs, fmt.Errorf("scheduling.fallback_urls[%d]: %w", i, err))
		}
	}
	if s.Timeout < 0 {
		errs = append(errs, fmt.Errorf("scheduling.timeout %s must not be negative", s.Timeout))
	}
	if s.CircuitBreaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("scheduling.circuit_breaker.max_failures %d must not be negative", s.CircuitBreaker.MaxFailures))
	}
	if s.CircuitBreaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("scheduling.circuit_breaker.reset_timeout %s must not be negative", s.CircuitBreaker.ResetTimeout))
	}

	return errors.Join(errs...)
}

// checkURL reports whether raw is an absolute URL with one of schemes.
func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" || !slices.Contains(schemes, u.Scheme) {
		return fmt.Errorf("%q must be an absolute %v URL", raw, schemes)
	}
	return nil
}
