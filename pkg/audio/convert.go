package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a PCM16 stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatConverter brings PCM16 frames to a target format before they are sent
// upstream. It logs once on the first format mismatch and once on the first
// misaligned frame. Create one per stream; it is not meant to be shared
// across goroutines.
//
// Resampling is continuous across frames: the interpolation phase and the
// last input sample carry over, so frame boundaries neither drop nor repeat
// samples. An output sample that needs the next frame's first input is
// emitted with that frame.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once

	rs resampler
}

// Convert returns frame in the target format. A frame already in the target
// format is returned unchanged. Stereo input is folded to mono before
// resampling so only one channel is interpolated.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio: odd byte count in PCM16 frame, dropping",
				"bytes", len(frame.Data),
				"format", formatString(frame.SampleRate, frame.Channels),
			)
		})
		return AudioFrame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}
	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Debug("audio: converting capture format",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := frame.Data
	if frame.Channels == 2 && c.Target.Channels == 1 {
		pcm = StereoToMono(pcm)
	}
	pcm = c.rs.process(pcm, frame.SampleRate, c.Target.SampleRate)

	return AudioFrame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// StereoToMono averages each interleaved L/R pair of little-endian PCM16.
func StereoToMono(pcm []byte) []byte {
	in := BytesToInt16s(pcm)
	out := make([]int16, len(in)/2)
	for i := range out {
		out[i] = int16((int32(in[i*2]) + int32(in[i*2+1])) / 2)
	}
	return Int16sToBytes(out)
}

// ResampleMono16 resamples little-endian mono PCM16 from srcRate to dstRate
// with linear interpolation. Equal or invalid rates return pcm unchanged.
// Output positions past the last input sample repeat it; use a
// [FormatConverter] for streams.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	src := BytesToInt16s(pcm)
	n := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}

	dst := make([]int16, n)
	for i := range dst {
		// Position i*srcRate/dstRate, kept as a fraction of dstRate.
		pos := int64(i) * int64(srcRate)
		idx := int(pos / int64(dstRate))
		next := min(idx+1, len(src)-1)
		dst[i] = lerp(src[idx], src[next], pos%int64(dstRate), int64(dstRate))
	}
	return Int16sToBytes(dst)
}

// resampler is a streaming linear resampler. pos is the next output
// position, in units of 1/dst input samples, relative to the carried last
// sample once primed.
type resampler struct {
	src, dst int
	last     int16
	primed   bool
	pos      int64
}

func (r *resampler) process(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	if r.src != srcRate || r.dst != dstRate {
		*r = resampler{src: srcRate, dst: dstRate}
	}
	in := BytesToInt16s(pcm)
	if len(in) == 0 {
		return nil
	}
	buf := in
	if r.primed {
		buf = append([]int16{r.last}, in...)
	}

	step, den := int64(srcRate), int64(dstRate)
	limit := int64(len(buf)-1) * den
	out := make([]int16, 0, int(int64(len(in))*den/step)+1)
	for ; r.pos < limit; r.pos += step {
		idx := r.pos / den
		out = append(out, lerp(buf[idx], buf[idx+1], r.pos%den, den))
	}
	r.pos -= limit
	r.last = buf[len(buf)-1]
	r.primed = true
	return Int16sToBytes(out)
}

// lerp interpolates from a to b by num/den.
func lerp(a, b int16, num, den int64) int16 {
	return int16(int64(a) + (int64(b)-int64(a))*num/den)
}

// formatString renders a format for log output, e.g. "16000Hz mono".
func formatString(rate, channels int) string {
	switch channels {
	case 1:
		return fmt.Sprintf("%dHz mono", rate)
	case 2:
		return fmt.Sprintf("%dHz stereo", rate)
	default:
		return fmt.Sprintf("%dHz %dch", rate, channels)
	}
}
