package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/frontdesk/internal/config"
)

const (
	hookA = "https://hooks.example.com/a"
	hookB = "https://hooks.example.com/b-longer"
)

func watchedYAML(level, hook string) string {
	return "server:\n  log_level: " + level + "\nscheduling:\n  webhook_url: " + hook + "\n"
}

type change struct{ old, new *config.Config }

// startWatcher writes an initial config and watches it. Polling is slow
// unless interval says otherwise, so tests drive reloads with Reload.
func startWatcher(t *testing.T, interval time.Duration) (string, *config.Watcher, <-chan change) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frontdesk.yaml")
	rewrite(t, path, watchedYAML("info", hookA))

	changes := make(chan change, 4)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		changes <- change{old, new}
	}, config.WithInterval(interval))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return path, w, changes
}

func rewrite(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func waitChange(t *testing.T, ch <-chan change) change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
		return change{}
	}
}

func expectQuiet(t *testing.T, ch <-chan change) {
	t.Helper()
	select {
	case c := <-ch:
		t.Fatalf("unexpected reload to %+v", c.new.Server)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestNewWatcher_RejectsUnusableFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	rewrite(t, bad, watchedYAML("loud", hookA))

	for name, path := range map[string]string{
		"missing": filepath.Join(dir, "missing.yaml"),
		"invalid": bad,
	} {
		if _, err := config.NewWatcher(path, nil); err == nil {
			t.Errorf("%s: NewWatcher succeeded", name)
		}
	}
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()
	path, w, changes := startWatcher(t, time.Hour)

	if got := w.Current().Scheduling.WebhookURL; got != hookA {
		t.Fatalf("initial webhook = %q", got)
	}

	rewrite(t, path, watchedYAML("debug", hookB))
	w.Reload()

	c := waitChange(t, changes)
	d := config.Diff(c.old, c.new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug || !d.WebhookChanged {
		t.Errorf("diff = %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
	if w.Current() != c.new {
		t.Error("Current does not return the config handed to the callback")
	}
}

func TestWatcher_PollPicksUpEdit(t *testing.T) {
	t.Parallel()
	path, w, changes := startWatcher(t, 20*time.Millisecond)

	// hookB is longer, so the size changes even on coarse mtime filesystems.
	rewrite(t, path, watchedYAML("info", hookB))

	c := waitChange(t, changes)
	if c.old.Scheduling.WebhookURL != hookA || c.new.Scheduling.WebhookURL != hookB {
		t.Errorf("webhook %q -> %q", c.old.Scheduling.WebhookURL, c.new.Scheduling.WebhookURL)
	}
	if got := w.Current().Scheduling.WebhookURL; got != hookB {
		t.Errorf("Current webhook = %q", got)
	}
}

func TestWatcher_InvalidEditKeepsLastGood(t *testing.T) {
	t.Parallel()
	path, w, changes := startWatcher(t, time.Hour)
	initial := w.Current()

	rewrite(t, path, watchedYAML("loud", hookB))
	w.Reload()
	expectQuiet(t, changes)
	if w.Current() != initial {
		t.Fatal("invalid file replaced the current config")
	}

	rewrite(t, path, watchedYAML("warn", hookA))
	w.Reload()
	c := waitChange(t, changes)
	if c.old != initial {
		t.Error("callback old config is not the last good one")
	}
	if c.new.Server.LogLevel != config.LogWarn {
		t.Errorf("new log level = %q", c.new.Server.LogLevel)
	}
}

func TestWatcher_SameContentIsQuiet(t *testing.T) {
	t.Parallel()
	path, w, changes := startWatcher(t, 20*time.Millisecond)
	initial := w.Current()

	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	w.Reload()

	expectQuiet(t, changes)
	if w.Current() != initial {
		t.Error("touch replaced the current config")
	}
}

func TestWatcher_StopWaitsForCallback(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "frontdesk.yaml")
	rewrite(t, path, watchedYAML("info", hookA))

	entered := make(chan struct{})
	release := make(chan struct{})
	w, err := config.NewWatcher(path, func(_, _ *config.Config) {
		close(entered)
		<-release
	}, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	rewrite(t, path, watchedYAML("error", hookA))
	w.Reload()
	<-entered

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while the callback was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	w.Stop()
	w.Reload()
}
