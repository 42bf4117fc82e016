package miniaudio

import (
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/frontdesk/pkg/audio"
)

// errPlayerClosed is returned by Schedule after the player was closed.
var errPlayerClosed = errors.New("miniaudio: player closed")

// segment is a block of samples pinned to an absolute frame position.
type segment struct {
	start   uint64
	samples []float32
}

func (s segment) end() uint64 { return s.start + uint64(len(s.samples)) }

// timeline is the playback clock plus the queue of scheduled segments. The
// device callback drives it through render; everything else only schedules.
// It is hardware independent so it can be tested directly.
type timeline struct {
	rate int

	mu       sync.Mutex
	played   uint64
	segments []segment
	closed   bool
}

func newTimeline(rate int) *timeline { return &timeline{rate: rate} }

// Now returns the number of frames rendered so far as a duration.
func (t *timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.framesToDuration(t.played)
}

// Schedule pins samples at position at. A position already rendered starts
// at the next frame instead.
func (t *timeline) Schedule(samples []float32, at time.Duration) error {
	if len(samples) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errPlayerClosed
	}
	start := max(t.durationToFrames(at), t.played)
	t.segments = append(t.segments, segment{start: start, samples: samples})
	return nil
}

// Closed reports whether the player has been closed.
func (t *timeline) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *timeline) markClosed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.segments = nil
}

// render fills n float32 frames of out with the mix of every segment that
// overlaps [played, played+n) and advances the clock. Frames nothing covers
// are silent.
func (t *timeline) render(out []byte, n int) {
	if len(out) < n*4 {
		n = len(out) / 4
	}
	mix := make([]float32, n)

	t.mu.Lock()
	from, to := t.played, t.played+uint64(n)
	kept := t.segments[:0]
	for _, seg := range t.segments {
		if seg.start < to && seg.end() > from {
			lo := max(seg.start, from)
			hi := min(seg.end(), to)
			for f := lo; f < hi; f++ {
				mix[f-from] += seg.samples[f-seg.start]
			}
		}
		if seg.end() > to {
			kept = append(kept, seg)
		}
	}
	t.segments = kept
	t.played = to
	t.mu.Unlock()

	for i, s := range mix {
		mix[i] = max(-1, min(1, s))
	}
	encodeFloat32(out, mix)
}

func (t *timeline) durationToFrames(d time.Duration) uint64 {
	return uint64(audio.DurationToFrames(d, t.rate))
}

func (t *timeline) framesToDuration(frames uint64) time.Duration {
	return audio.FramesToDuration(int64(frames), t.rate)
}
