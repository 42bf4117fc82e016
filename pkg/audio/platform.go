// Package audio defines the audio primitives used by the frontdesk voice
// session: PCM codecs, the capture hand-off ([Recorder]) and the device
// interfaces that hide the sound hardware.
//
// The three hardware abstractions are:
//
//   - [Device] opens a [Microphone] and a [Player].
//   - [Microphone] is a stream of mono float frames captured from the input.
//   - [Player] is a mono output with its own clock onto which sample buffers
//     are scheduled at absolute positions.
//
// Implementations live in sub-packages (audio/miniaudio for real hardware,
// audio/mock for tests). The interfaces are kept narrow so the session
// manager never depends on a particular backend.
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned (wrapped) by [Device.OpenMicrophone] when the
// input device cannot be acquired.
var ErrPermissionDenied = errors.New("audio: microphone access denied")

// Device is the factory for input and output streams.
type Device interface {
	// OpenMicrophone starts capturing mono audio at sampleRate. The returned
	// Microphone delivers frames until it is closed or the device goes away.
	OpenMicrophone(ctx context.Context, sampleRate int) (Microphone, error)

	// OpenPlayer opens a mono output at sampleRate. The player's clock starts
	// at zero.
	OpenPlayer(sampleRate int) (Player, error)
}

// Microphone is an open capture stream.
type Microphone interface {
	// Frames returns the captured frames. The channel is closed when the
	// microphone is closed or access is revoked.
	Frames() <-chan []float32

	// SampleRate is the rate the frames were captured at.
	SampleRate() int

	// Close stops capture and releases the device. Idempotent.
	Close() error
}

// Player is an open playback stream with a monotonic clock.
type Player interface {
	// Now returns the current position of the playback clock.
	Now() time.Duration

	// Schedule queues samples to start playing at the given clock position.
	// Positions in the past start immediately.
	Schedule(samples []float32, at time.Duration) error

	// Closed reports whether Close has been called.
	Closed() bool

	// Close stops playback and releases the device. Idempotent.
	Close() error
}
