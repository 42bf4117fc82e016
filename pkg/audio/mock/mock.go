// Package mock provides in-memory implementations of [audio.Device],
// [audio.Microphone] and [audio.Player] for unit tests.
//
// All mocks are safe for concurrent use. They record what was done to them
// so tests can assert on call counts and scheduled audio, and they expose
// fields that control return values.
//
// Typical usage:
//
//	dev := &mock.Device{}
//	sess := live.New(cfg, live.Deps{Device: dev, ...}, cb)
//	...
//	dev.Mic().Push([]float32{0.1, 0.2})
//	dev.Player().Advance(50 * time.Millisecond)
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/frontdesk/pkg/audio"
)

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock [audio.Device]. It hands out a single [Microphone] and a
// single [Player], created lazily on first open.
type Device struct {
	mu sync.Mutex

	// MicErr, if non-nil, is returned by OpenMicrophone.
	MicErr error

	// PlayerErr, if non-nil, is returned by OpenPlayer.
	PlayerErr error

	// MicDelay delays OpenMicrophone, simulating a permission prompt.
	MicDelay time.Duration

	mic    *Microphone
	player *Player

	// OpenMicCalls and OpenPlayerCalls count invocations.
	OpenMicCalls    int
	OpenPlayerCalls int
}

var _ audio.Device = (*Device)(nil)

// OpenMicrophone returns the device's Microphone or MicErr.
func (d *Device) OpenMicrophone(ctx context.Context, sampleRate int) (audio.Microphone, error) {
	d.mu.Lock()
	d.OpenMicCalls++
	delay, err := d.MicDelay, d.MicErr
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mic == nil {
		d.mic = NewMicrophone(sampleRate)
	}
	return d.mic, nil
}

// OpenPlayer returns the device's Player or PlayerErr.
func (d *Device) OpenPlayer(sampleRate int) (audio.Player, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenPlayerCalls++
	if d.PlayerErr != nil {
		return nil, d.PlayerErr
	}
	if d.player == nil {
		d.player = NewPlayer(sampleRate)
	}
	return d.player, nil
}

// Mic returns the microphone handed out so far, or nil.
func (d *Device) Mic() *Microphone {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mic
}

// Player returns the player handed out so far, or nil.
func (d *Device) Player() *Player {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.player
}

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock [audio.Microphone] fed by [Microphone.Push].
type Microphone struct {
	rec  *audio.Recorder
	rate int

	mu         sync.Mutex
	closeCalls int
}

var _ audio.Microphone = (*Microphone)(nil)

// NewMicrophone returns an open Microphone at rate.
func NewMicrophone(rate int) *Microphone {
	return &Microphone{rec: audio.NewRecorder(64), rate: rate}
}

// Push simulates the capture callback delivering frame.
func (m *Microphone) Push(frame []float32) { m.rec.Process(frame) }

// Revoke simulates the user withdrawing microphone access.
func (m *Microphone) Revoke() { m.rec.Close() }

// Frames implements [audio.Microphone].
func (m *Microphone) Frames() <-chan []float32 { return m.rec.Frames() }

// SampleRate implements [audio.Microphone].
func (m *Microphone) SampleRate() int { return m.rate }

// Close implements [audio.Microphone].
func (m *Microphone) Close() error {
	m.mu.Lock()
	m.closeCalls++
	m.mu.Unlock()
	m.rec.Close()
	return nil
}

// CloseCalls reports how many times Close was called.
func (m *Microphone) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// ─── Player ───────────────────────────────────────────────────────────────────

// ErrPlayerClosed is returned by [Player.Schedule] after Close.
var ErrPlayerClosed = errors.New("mock: player closed")

// Scheduled records one [Player.Schedule] call.
type Scheduled struct {
	At      time.Duration
	Samples []float32
}

// Player is a mock [audio.Player] whose clock only moves when the test calls
// [Player.Advance] or [Player.SetNow].
type Player struct {
	rate int

	mu         sync.Mutex
	now        time.Duration
	scheduled  []Scheduled
	closed     bool
	closeCalls int
}

var _ audio.Player = (*Player)(nil)

// NewPlayer returns an open Player at rate with its clock at zero.
func NewPlayer(rate int) *Player { return &Player{rate: rate} }

// Now implements [audio.Player].
func (p *Player) Now() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

// Schedule implements [audio.Player].
func (p *Player) Schedule(samples []float32, at time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	p.scheduled = append(p.scheduled, Scheduled{At: at, Samples: samples})
	return nil
}

// Closed implements [audio.Player].
func (p *Player) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close implements [audio.Player].
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCalls++
	p.closed = true
	return nil
}

// Advance moves the clock forward by d.
func (p *Player) Advance(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now += d
}

// SetNow sets the clock to t.
func (p *Player) SetNow(t time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = t
}

// Scheduled returns a copy of all Schedule calls in order.
func (p *Player) Scheduled() []Scheduled {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Scheduled, len(p.scheduled))
	copy(out, p.scheduled)
	return out
}

// CloseCalls reports how many times Close was called.
func (p *Player) CloseCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCalls
}
