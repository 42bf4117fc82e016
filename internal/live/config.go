package live

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/tools"
	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/s2s"
)

// Default audio rates and reference time zone.
const (
	DefaultInputSampleRate     = 16000
	DefaultOutputSampleRate    = 24000
	DefaultTransportSampleRate = 24000
	DefaultTimeZone            = "Europe/Warsaw"
)

// Config is the per-session configuration.
type Config struct {
	// Credential is the API key handed to the transport. Required.
	Credential string

	// Model overrides the transport's default model.
	Model string

	// Voice is the prebuilt voice name.
	Voice string

	// Instructions is the persona's system instruction. The session appends
	// the current date and time before connecting.
	Instructions string

	Tools []s2s.ToolDefinition

	// InputSampleRate is the rate requested from the microphone.
	InputSampleRate int

	// OutputSampleRate is the rate of the model's audio and of the player.
	OutputSampleRate int

	// TransportSampleRate is the rate captured audio is converted to before
	// sending, and the rate named in its MIME type.
	TransportSampleRate int

	// TimeZone names the reference zone for the date/time context.
	TimeZone string

	// TransportName labels transport error metrics. Defaults to "s2s".
	TransportName string

	// Now returns the wall clock. Defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = DefaultInputSampleRate
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = DefaultOutputSampleRate
	}
	if c.TransportSampleRate <= 0 {
		c.TransportSampleRate = DefaultTransportSampleRate
	}
	if c.TimeZone == "" {
		c.TimeZone = DefaultTimeZone
	}
	if c.TransportName == "" {
		c.TransportName = "s2s"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Deps are the collaborators a [Session] drives.
type Deps struct {
	Transport s2s.Transport
	Device    audio.Device

	// Executor runs tool calls. Nil answers every call with an empty result.
	Executor tools.Executor

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Metrics defaults to observe.DefaultMetrics.
	Metrics *observe.Metrics
}

// noopExecutor answers every call with an empty object.
type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, string, map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}
