package audio_test

import (
	"testing"

	"github.com/MrWong99/frontdesk/pkg/audio"
)

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	stereo := audio.Int16sToBytes([]int16{100, 200, -100, -200})
	got := audio.BytesToInt16s(audio.StereoToMono(stereo))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_NoOverflow(t *testing.T) {
	t.Parallel()
	got := audio.BytesToInt16s(audio.StereoToMono(audio.Int16sToBytes([]int16{32767, 32767})))
	if len(got) != 1 || got[0] != 32767 {
		t.Errorf("got %v, want [32767]", got)
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []int16
		src, dst int
		wantLen  int
	}{
		{"same rate", []int16{100, 200, 300}, 24000, 24000, 3},
		{"upsample 16k to 24k", []int16{0, 300, 600, 900}, 16000, 24000, 6},
		{"downsample 24k to 16k", []int16{100, 200, 300, 400, 500, 600}, 24000, 16000, 4},
		{"zero src rate", []int16{100, 200}, 0, 24000, 2},
		{"zero dst rate", []int16{100, 200}, 24000, 0, 2},
		{"negative rate", []int16{100, 200}, -1, 24000, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out := audio.ResampleMono16(audio.Int16sToBytes(tc.in), tc.src, tc.dst)
			if got := len(out) / 2; got != tc.wantLen {
				t.Errorf("samples = %d, want %d", got, tc.wantLen)
			}
		})
	}
}

func TestResampleMono16_Interpolates(t *testing.T) {
	t.Parallel()
	// 2 samples at 16kHz → 6 samples at 48kHz (3x)
	got := audio.BytesToInt16s(audio.ResampleMono16(audio.Int16sToBytes([]int16{1000, 2000}), 16000, 48000))
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	if got[1] <= 1000 || got[1] >= 2000 {
		t.Errorf("second sample %d should lie between its neighbours", got[1])
	}
	if last := got[len(got)-1]; last != 2000 {
		t.Errorf("last sample: got %d, want 2000", last)
	}
}

func TestFormatConverter_NoOp(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	frame := audio.AudioFrame{
		Data:       audio.Int16sToBytes([]int16{100, 200}),
		SampleRate: 16000,
		Channels:   1,
	}
	result := conv.Convert(frame)
	if &result.Data[0] != &frame.Data[0] {
		t.Error("expected same slice for matching format")
	}
}

func TestFormatConverter_Resamples(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 24000, Channels: 1}}
	frame := audio.AudioFrame{
		Data:       audio.Int16sToBytes(make([]int16, 160)),
		SampleRate: 16000,
		Channels:   1,
	}

	// The last output of a frame waits for the next frame's first sample.
	for i, want := range []int{239, 240, 240} {
		result := conv.Convert(frame)
		if result.SampleRate != 24000 {
			t.Errorf("frame %d: SampleRate = %d, want 24000", i, result.SampleRate)
		}
		if got := result.Samples(); got != want {
			t.Errorf("frame %d: Samples = %d, want %d", i, got, want)
		}
	}
}

func TestFormatConverter_FrameBoundariesAreSeamless(t *testing.T) {
	t.Parallel()
	const frameLen = 441 // does not divide evenly at 16k -> 24k

	signal := make([]int16, frameLen*8)
	for i := range signal {
		signal[i] = int16(i%2000*16 - 16000)
	}
	whole := audio.BytesToInt16s(audio.ResampleMono16(audio.Int16sToBytes(signal), 16000, 24000))

	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 24000, Channels: 1}}
	var streamed []int16
	for off := 0; off < len(signal); off += frameLen {
		out := conv.Convert(audio.AudioFrame{
			Data:       audio.Int16sToBytes(signal[off : off+frameLen]),
			SampleRate: 16000,
			Channels:   1,
		})
		streamed = append(streamed, audio.BytesToInt16s(out.Data)...)
	}

	// Only the trailing output that needs a future sample may be missing.
	if len(whole)-len(streamed) > 1 || len(streamed) > len(whole) {
		t.Fatalf("streamed %d samples, one-shot %d", len(streamed), len(whole))
	}
	for i, v := range streamed {
		if v != whole[i] {
			t.Fatalf("sample %d = %d, want %d", i, v, whole[i])
		}
	}
}

func TestFormatConverter_StereoToMono(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	frame := audio.AudioFrame{
		Data:       audio.Int16sToBytes([]int16{100, 300, 500, 700}),
		SampleRate: 16000,
		Channels:   2,
	}
	got := audio.BytesToInt16s(conv.Convert(frame).Data)
	want := []int16{200, 600}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFormatConverter_OddByteCount(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	for _, rate := range []int{16000, 22050} {
		result := conv.Convert(audio.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: rate, Channels: 1})
		if len(result.Data) != 0 {
			t.Errorf("rate %d: expected empty data for odd byte count, got %d bytes", rate, len(result.Data))
		}
		if result.SampleRate != 16000 {
			t.Errorf("rate %d: dropped frame should carry the target rate, got %d", rate, result.SampleRate)
		}
	}
}
