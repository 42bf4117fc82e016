package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WebhookChanged is set when the scheduling endpoints or their tuning
	// changed. The caller rebuilds its scheduling client.
	WebhookChanged bool

	// RestartRequired lists the changed keys that need a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.WebhookChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	a, b := old.Scheduling, new.Scheduling
	if a.WebhookURL != b.WebhookURL ||
		!slices.Equal(a.FallbackURLs, b.FallbackURLs) ||
		a.Timeout != b.Timeout ||
		a.CircuitBreaker != b.CircuitBreaker {
		d.WebhookChanged = true
	}

	if old.Server.DebugAddr != new.Server.DebugAddr {
		d.RestartRequired = append(d.RestartRequired, "server.debug_addr")
	}
	if old.Transport != new.Transport {
		d.RestartRequired = append(d.RestartRequired, "transport")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Persona != new.Persona {
		d.RestartRequired = append(d.RestartRequired, "persona")
	}
	return d
}
