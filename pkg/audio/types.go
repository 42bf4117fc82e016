package audio

import "time"

// AudioFrame is a chunk of interleaved little-endian PCM16 on its way to the
// transport. Frames are transient: they live from capture conversion until
// they are encoded for sending.
type AudioFrame struct {
	// Data holds the PCM16 bytes.
	Data []byte

	// SampleRate in Hz (16000 for capture, 24000 for model output).
	SampleRate int

	// Channels is 1 for everything the voice session produces.
	Channels int

	// Timestamp is the capture position relative to the start of the stream.
	Timestamp time.Duration
}

// Samples returns the number of samples per channel in the frame.
func (f AudioFrame) Samples() int {
	if f.Channels <= 0 {
		return len(f.Data) / 2
	}
	return len(f.Data) / 2 / f.Channels
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	return SamplesDuration(f.Samples(), f.SampleRate)
}
