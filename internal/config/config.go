// Package config provides the configuration schema, loader, and transport
// registry for the frontdesk voice agent.
package config

import (
	"time"

	"github.com/MrWong99/frontdesk/internal/persona"
	"github.com/MrWong99/frontdesk/internal/scheduling"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Transport names with a built-in factory.
const (
	TransportGeminiLive = "gemini-live"
	TransportGenAI      = "genai"
)

// Audio device names with a built-in factory.
const DeviceMiniaudio = "miniaudio"

// Environment variables consulted for the API credential, in order.
const (
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvAPIKey       = "API_KEY"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Transport  TransportConfig  `yaml:"transport"`
	Audio      AudioConfig      `yaml:"audio"`
	Persona    PersonaConfig    `yaml:"persona"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
}

// ServerConfig holds logging and the optional debug listener.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// DebugAddr is the TCP address of the debug listener serving /metrics,
	// /healthz, /readyz and /stats (e.g., "127.0.0.1:9090"). Empty disables it.
	DebugAddr string `yaml:"debug_addr"`
}

// TransportConfig selects the realtime backend. Name is looked up in the
// [Registry].
type TransportConfig struct {
	// Name selects the registered transport ("gemini-live" or "genai").
	Name string `yaml:"name"`

	// APIKey is the backend credential. When empty, [Config.Credential]
	// falls back to the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model overrides the backend's default model.
	Model string `yaml:"model"`
}

// AudioConfig holds the device and the three sample rates of a call.
type AudioConfig struct {
	// Device selects the registered audio device.
	Device string `yaml:"device"`

	// InputSampleRate is the microphone capture rate.
	InputSampleRate int `yaml:"input_sample_rate"`

	// OutputSampleRate is the playback rate of model audio.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// TransportSampleRate is the rate outbound audio is resampled to and
	// tagged with.
	TransportSampleRate int `yaml:"transport_sample_rate"`
}

// PersonaConfig picks one agent out of the persona catalog.
type PersonaConfig struct {
	Demo     string `yaml:"demo"`
	Agent    string `yaml:"agent"`
	Language string `yaml:"language"`

	// TimeZone is the IANA zone named in the session's system context.
	TimeZone string `yaml:"time_zone"`

	// Catalog is an optional path to a catalog YAML replacing the embedded one.
	Catalog string `yaml:"catalog"`
}

// SchedulingConfig configures the scheduling webhook client.
type SchedulingConfig struct {
	// WebhookURL overrides the persona's webhook endpoint.
	WebhookURL string `yaml:"webhook_url"`

	// FallbackURLs are tried in order when the primary fails.
	FallbackURLs []string `yaml:"fallback_urls"`

	// Timeout bounds one scheduling attempt, failover included.
	Timeout time.Duration `yaml:"timeout"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the per-endpoint breaker.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Transport: TransportConfig{
			Name: TransportGeminiLive,
		},
		Audio: AudioConfig{
			Device:              DeviceMiniaudio,
			InputSampleRate:     16000,
			OutputSampleRate:    24000,
			TransportSampleRate: 24000,
		},
		Persona: PersonaConfig{
			Demo:     "rapidtire",
			Agent:    persona.AgentBooking,
			Language: persona.LanguageEnglish,
			TimeZone: "Europe/Warsaw",
		},
		Scheduling: SchedulingConfig{
			Timeout: scheduling.DefaultTimeout,
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures:  5,
				ResetTimeout: 30 * time.Second,
			},
		},
	}
}

// Credential resolves the API key: transport.api_key first, then the
// GEMINI_API_KEY and API_KEY environment variables. lookup is typically
// [os.LookupEnv].
func (c *Config) Credential(lookup func(string) (string, bool)) string {
	if c.Transport.APIKey != "" {
		return c.Transport.APIKey
	}
	if lookup == nil {
		return ""
	}
	for _, name := range []string{EnvGeminiAPIKey, EnvAPIKey} {
		if v, ok := lookup(name); ok && v != "" {
			return v
		}
	}
	return ""
}

// WebhookURL returns the scheduling endpoint: the configured override or,
// when empty, the persona's own endpoint.
func (c *Config) WebhookURL(p persona.Persona) string {
	if c.Scheduling.WebhookURL != "" {
		return c.Scheduling.WebhookURL
	}
	return p.WebhookURL
}
