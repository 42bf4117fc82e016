package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats its file.
const DefaultWatchInterval = 5 * time.Second

// snapshot is one successfully loaded version of the file.
type snapshot struct {
	cfg     *Config
	sum     [sha256.Size]byte
	modTime time.Time
	size    int64
}

// sameStat reports whether the file still looks like s without reading it.
func (s *snapshot) sameStat(fi os.FileInfo) bool {
	return fi.ModTime().Equal(s.modTime) && fi.Size() == s.size
}

// Watcher reloads a config file while the process runs and hands each new
// valid version to a callback. A file that fails to parse or validate is
// logged and skipped; [Watcher.Current] keeps returning the last good one.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	log      *slog.Logger

	// reloadMu serialises reloads between the poller and Reload.
	reloadMu sync.Mutex
	last     atomic.Pointer[snapshot]

	force    chan struct{}
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger. Defaults to slog.Default.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher loads path and starts polling it. Unlike [Load], the file must
// exist. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		force:    make(chan struct{}, 1),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	w.log = w.log.With("path", path)

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.last.Store(snap)

	go w.loop()
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	return w.last.Load().cfg
}

// Reload asks the watcher to re-read the file now, even when its stat
// looks unchanged. It does not block.
func (w *Watcher) Reload() {
	select {
	case w.force <- struct{}{}:
	default:
	}
}

// Stop ends polling and waits for an in-flight callback to return. Safe to
// call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.stopped
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	tick := time.NewTicker(w.interval)
	defer tick.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-tick.C:
			w.reload(false)
		case <-w.force:
			w.reload(true)
		}
	}
}

// reload re-reads the file and fires the callback when its content changed.
// Unless forced, a file whose stat matches the last snapshot is not read.
func (w *Watcher) reload(forced bool) {
	w.reloadMu.Lock()
	prev := w.last.Load()

	if !forced {
		fi, err := os.Stat(w.path)
		if err != nil {
			w.reloadMu.Unlock()
			w.log.Warn("config watcher: stat failed", "err", err)
			return
		}
		if prev.sameStat(fi) {
			w.reloadMu.Unlock()
			return
		}
	}

	next, err := w.read()
	if err != nil {
		w.reloadMu.Unlock()
		w.log.Warn("config watcher: keeping previous config", "err", err)
		return
	}
	if next.sum == prev.sum {
		// Only the stat moved.
		next.cfg = prev.cfg
		w.last.Store(next)
		w.reloadMu.Unlock()
		return
	}
	w.last.Store(next)
	w.reloadMu.Unlock()

	w.log.Info("config watcher: configuration reloaded", "forced", forced)
	if w.onChange != nil {
		w.onChange(prev.cfg, next.cfg)
	}
}

func (w *Watcher) read() (*snapshot, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, err
	}
	data := buf.Bytes()

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &snapshot{
		cfg:     cfg,
		sum:     sha256.Sum256(data),
		modTime: fi.ModTime(),
		size:    fi.Size(),
	}, nil
}
