package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// FloatTo16BitPCM converts normalised float samples to signed 16-bit PCM.
// Inputs outside [-1, 1] are clamped first. Negative samples scale by 0x8000
// and non-negative samples by 0x7FFF, so -1 maps to -32768 and 1 to 32767.
func FloatTo16BitPCM(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		s = max(-1, min(1, s))
		if s < 0 {
			out[i] = int16(s * 0x8000)
		} else {
			out[i] = int16(s * 0x7FFF)
		}
	}
	return out
}

// PCM16ToFloat32 converts signed 16-bit PCM to float samples in [-1, 1).
func PCM16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// Int16sToBytes packs samples as little-endian 16-bit PCM.
func Int16sToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToInt16s unpacks little-endian 16-bit PCM. A trailing odd byte is
// ignored.
func BytesToInt16s(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// BinaryToBase64 encodes data with the standard base64 alphabet.
func BinaryToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64ToBinary decodes a standard base64 string. Malformed input is an
// error; the live session logs it and skips the chunk.
func Base64ToBinary(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64: %w", err)
	}
	return data, nil
}

// SamplesDuration returns the playback duration of n mono samples at rate.
func SamplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// FramesToDuration converts a frame position at rate to a clock position,
// rounded to the nearest nanosecond. [DurationToFrames] maps it back to the
// same frame.
func FramesToDuration(frames int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration((frames*int64(time.Second) + int64(rate)/2) / int64(rate))
}

// DurationToFrames converts a clock position to the nearest frame at rate.
// Negative positions map to frame zero.
func DurationToFrames(d time.Duration, rate int) int64 {
	if rate <= 0 || d <= 0 {
		return 0
	}
	return (int64(d)*int64(rate) + int64(time.Second)/2) / int64(time.Second)
}

// PCMMIMEType returns the MIME tag for raw 16-bit PCM at rate, e.g.
// "audio/pcm;rate=16000".
func PCMMIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}
