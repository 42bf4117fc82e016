package audio

import "sync"

// defaultRecorderBuffer is the number of frames a [Recorder] queues before it
// starts dropping. At 10ms device periods this is roughly a second of audio.
const defaultRecorderBuffer = 128

// Recorder is the hand-off point between a realtime audio callback and the
// rest of the program. The callback calls [Recorder.Process] with each raw
// input frame; consumers read copies from [Recorder.Frames].
//
// Process never blocks: when the consumer falls behind, frames are dropped
// rather than stalling the audio thread. No resampling or filtering happens
// here.
type Recorder struct {
	frames chan []float32

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewRecorder returns a Recorder that buffers up to size frames. A size of
// zero or less selects the default.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = defaultRecorderBuffer
	}
	return &Recorder{frames: make(chan []float32, size)}
}

// Process forwards a copy of frame to the consumer. Safe to call from the
// audio callback; a call after Close is ignored.
func (r *Recorder) Process(frame []float32) {
	if len(frame) == 0 {
		return
	}
	buf := make([]float32, len(frame))
	copy(buf, frame)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.frames <- buf:
	default:
		r.dropped++
	}
}

// Frames returns the channel of captured frames. It is closed by Close.
func (r *Recorder) Frames() <-chan []float32 { return r.frames }

// Dropped reports how many frames were discarded because the consumer was
// too slow.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops accepting frames and closes the Frames channel. Idempotent.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.frames)
}
