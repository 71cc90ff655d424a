// Package audio holds the mono 16 kHz buffer type and the signal conditioning
// applied between capture and speech detection.
package audio

import (
	"math"
	"time"
)

// SampleRate is the only rate buffers may have once they leave capture.
const SampleRate = 16000

const (
	// NormalizeTarget is the peak amplitude after normalization.
	NormalizeTarget = 0.95
	// NormalizeFloor is the peak at or below which a buffer is left alone.
	NormalizeFloor = 0.001
)

// Buffer is mono float32 audio at SampleRate.
type Buffer []float32

// Duration of the buffer at SampleRate.
func (b Buffer) Duration() time.Duration {
	return time.Duration(len(b)) * time.Second / SampleRate
}

// SamplesFor converts d to a sample count at SampleRate.
func SamplesFor(d time.Duration) int {
	return int(d * SampleRate / time.Second)
}

// RemoveDCOffset subtracts the arithmetic mean from every sample.
func RemoveDCOffset(buf []float32) {
	if len(buf) == 0 {
		return
	}
	var sum float64
	for _, v := range buf {
		sum += float64(v)
	}
	mean := float32(sum / float64(len(buf)))
	for i := range buf {
		buf[i] -= mean
	}
}

// Peak returns the maximum absolute sample value.
func Peak(buf []float32) float32 {
	var peak float32
	for _, v := range buf {
		if a := float32(math.Abs(float64(v))); a > peak {
			peak = a
		}
	}
	return peak
}

// NormalizePeak scales buf so its peak equals NormalizeTarget. Buffers whose
// peak is at or below NormalizeFloor are left unchanged. It reports whether
// scaling was applied.
func NormalizePeak(buf []float32) bool {
	peak := Peak(buf)
	if peak <= NormalizeFloor {
		return false
	}
	gain := NormalizeTarget / peak
	for i := range buf {
		buf[i] *= gain
	}
	return true
}

// Condition removes DC offset then normalizes the peak, in place.
func Condition(buf []float32) {
	RemoveDCOffset(buf)
	NormalizePeak(buf)
}

// Downmix averages every channel of each interleaved frame into one sample.
// A trailing incomplete frame is dropped.
func Downmix(interleaved []float32, channels int) []float32 {
	return AppendDownmix(nil, interleaved, channels)
}

// AppendDownmix is Downmix appending into dst.
func AppendDownmix(dst, interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return append(dst, interleaved...)
	}
	frames := len(interleaved) / channels
	inv := 1 / float32(channels)
	for f := 0; f < frames; f++ {
		var sum float32
		for _, v := range interleaved[f*channels : (f+1)*channels] {
			sum += v
		}
		dst = append(dst, sum*inv)
	}
	return dst
}

// PadSilence returns a new buffer with d of zeros in front of buf.
func PadSilence(buf Buffer, d time.Duration) Buffer {
	n := SamplesFor(d)
	out := make(Buffer, n+len(buf))
	copy(out[n:], buf)
	return out
}
