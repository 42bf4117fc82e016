package miniaudio

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/frontdesk/pkg/audio"
)

func renderFrames(t *timeline, n int) []float32 {
	out := make([]byte, n*4)
	t.render(out, n)
	samples := make([]float32, n)
	decodeFloat32(samples, out)
	return samples
}

func TestTimeline_ClockAdvancesWithRender(t *testing.T) {
	t.Parallel()
	tl := newTimeline(1000)
	if tl.Now() != 0 {
		t.Fatalf("Now = %v, want 0", tl.Now())
	}
	renderFrames(tl, 250)
	if got := tl.Now(); got != 250*time.Millisecond {
		t.Errorf("Now = %v, want 250ms", got)
	}
}

func TestTimeline_BackToBackSegmentsAreGapless(t *testing.T) {
	t.Parallel()
	tl := newTimeline(1000)
	_ = tl.Schedule([]float32{0.1, 0.1, 0.1}, 0)
	_ = tl.Schedule([]float32{0.2, 0.2}, 3*time.Millisecond)

	got := renderFrames(tl, 6)
	want := []float32{0.1, 0.1, 0.1, 0.2, 0.2, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d = %v, want %v (all: %v)", i, got[i], want[i], got)
		}
	}
}

func TestTimeline_ShortChunksAtOutputRateTileExactly(t *testing.T) {
	t.Parallel()
	const (
		rate   = 24000
		chunk  = 100 // 4.1666...ms, not a whole number of nanoseconds
		chunks = 10
	)
	tl := newTimeline(rate)
	samples := make([]float32, chunk)
	for i := range samples {
		samples[i] = 0.25
	}

	var next int64
	var rendered []float32
	for i := range chunks {
		at := max(audio.DurationToFrames(tl.Now(), rate), next)
		next = at + chunk
		if err := tl.Schedule(samples, audio.FramesToDuration(at, rate)); err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		if i == 3 {
			rendered = append(rendered, renderFrames(tl, 150)...)
		}
	}
	rendered = append(rendered, renderFrames(tl, chunk*chunks+10-len(rendered))...)

	for f, v := range rendered[:chunk*chunks] {
		if v != 0.25 {
			t.Fatalf("frame %d = %v, want 0.25 (overlap or gap)", f, v)
		}
	}
	for f, v := range rendered[chunk*chunks:] {
		if v != 0 {
			t.Fatalf("frame %d after the last chunk = %v, want silence", chunk*chunks+f, v)
		}
	}
}

func TestTimeline_SegmentSpansRenders(t *testing.T) {
	t.Parallel()
	tl := newTimeline(1000)
	_ = tl.Schedule([]float32{0.5, 0.5, 0.5, 0.5}, 2*time.Millisecond)

	first := renderFrames(tl, 3)
	if first[0] != 0 || first[1] != 0 || first[2] != 0.5 {
		t.Fatalf("first render = %v", first)
	}
	second := renderFrames(tl, 4)
	if second[0] != 0.5 || second[2] != 0.5 || second[3] != 0 {
		t.Fatalf("second render = %v", second)
	}
	if len(tl.segments) != 0 {
		t.Errorf("finished segments should be dropped, %d left", len(tl.segments))
	}
}

func TestTimeline_PastPositionStartsNow(t *testing.T) {
	t.Parallel()
	tl := newTimeline(1000)
	renderFrames(tl, 10)
	_ = tl.Schedule([]float32{0.3}, 0)
	got := renderFrames(tl, 1)
	if got[0] != 0.3 {
		t.Errorf("late segment = %v, want it played immediately", got[0])
	}
}

func TestTimeline_MixIsClamped(t *testing.T) {
	t.Parallel()
	tl := newTimeline(1000)
	_ = tl.Schedule([]float32{0.8}, 0)
	_ = tl.Schedule([]float32{0.8}, 0)
	if got := renderFrames(tl, 1); got[0] != 1 {
		t.Errorf("mixed sample = %v, want clamp to 1", got[0])
	}
}

func TestTimeline_ScheduleAfterClose(t *testing.T) {
	t.Parallel()
	tl := newTimeline(1000)
	tl.markClosed()
	if !tl.Closed() {
		t.Fatal("Closed = false after markClosed")
	}
	if err := tl.Schedule([]float32{1}, 0); !errors.Is(err, errPlayerClosed) {
		t.Errorf("Schedule after close = %v, want errPlayerClosed", err)
	}
}
