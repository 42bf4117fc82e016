// Package miniaudio implements [audio.Device] on top of miniaudio through the
// gen2brain/malgo bindings.
//
// Capture and playback both run in 32-bit float mono. The capture callback
// hands frames to an [audio.Recorder]; the playback callback mixes scheduled
// segments onto a timeline whose clock is the number of frames the device has
// consumed.
package miniaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/frontdesk/pkg/audio"
)

var _ audio.Device = (*Device)(nil)

const (
	capturePeriodFrames = 480
	capturePeriods      = 3
	playbackPeriods     = 4
)

// Device owns a miniaudio context. Microphones and players opened from it
// must be closed before the Device itself.
type Device struct {
	mu     sync.Mutex
	actx   *malgo.AllocatedContext
	closed bool
}

// New initialises a miniaudio context using the platform's default backend.
func New() (*Device, error) {
	actx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init context: %w", err)
	}
	return &Device{actx: actx}, nil
}

// OpenMicrophone starts a mono float capture device at sampleRate. Failure to
// initialise or start the device is reported as [audio.ErrPermissionDenied].
func (d *Device) OpenMicrophone(_ context.Context, sampleRate int) (audio.Microphone, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("miniaudio: device closed")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = uint32(sampleRate)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency
	cfg.PeriodSizeInFrames = capturePeriodFrames
	cfg.Periods = capturePeriods

	m := &microphone{rec: audio.NewRecorder(0), rate: sampleRate}
	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatF32)
	var scratch []float32

	dev, err := malgo.InitDevice(d.actx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount)
			if n == 0 || len(pInput) < n*bytesPerFrame {
				return
			}
			if cap(scratch) < n {
				scratch = make([]float32, n)
			}
			scratch = scratch[:n]
			decodeFloat32(scratch, pInput)
			m.rec.Process(scratch)
		},
		Stop: func() {
			// The device went away underneath us (unplugged, revoked).
			m.rec.Close()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init capture device: %w: %w", audio.ErrPermissionDenied, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("miniaudio: start capture device: %w: %w", audio.ErrPermissionDenied, err)
	}
	m.dev = dev
	return m, nil
}

// OpenPlayer starts a mono float playback device at sampleRate.
func (d *Device) OpenPlayer(sampleRate int) (audio.Player, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("miniaudio: device closed")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.SampleRate = uint32(sampleRate)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = 1
	cfg.Alsa.NoMMap = 1
	cfg.PeriodSizeInFrames = uint32(sampleRate / 50) // 20ms
	cfg.Periods = playbackPeriods

	p := newTimeline(sampleRate)
	dev, err := malgo.InitDevice(d.actx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			p.render(pOutput, int(frameCount))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init playback device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("miniaudio: start playback device: %w", err)
	}
	return &player{timeline: p, dev: dev}, nil
}

// Close releases the miniaudio context. Idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.actx.Uninit()
	d.actx.Free()
	if err != nil {
		return fmt.Errorf("miniaudio: uninit context: %w", err)
	}
	return nil
}

// ── microphone ────────────────────────────────────────────────────────────────

type microphone struct {
	dev  *malgo.Device
	rec  *audio.Recorder
	rate int

	closeOnce sync.Once
}

func (m *microphone) Frames() <-chan []float32 { return m.rec.Frames() }

func (m *microphone) SampleRate() int { return m.rate }

func (m *microphone) Close() error {
	m.closeOnce.Do(func() {
		m.dev.Uninit()
		m.rec.Close()
		if n := m.rec.Dropped(); n > 0 {
			slog.Warn("miniaudio: capture frames dropped", "frames", n, "rate", m.rate)
		}
	})
	return nil
}

// ── player ────────────────────────────────────────────────────────────────────

type player struct {
	*timeline
	dev *malgo.Device

	closeOnce sync.Once
}

func (p *player) Close() error {
	p.closeOnce.Do(func() {
		p.dev.Uninit()
		p.markClosed()
	})
	return nil
}

// decodeFloat32 reads len(dst) little-endian float32 samples from src.
func decodeFloat32(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}

// encodeFloat32 writes samples to dst as little-endian float32.
func encodeFloat32(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}
