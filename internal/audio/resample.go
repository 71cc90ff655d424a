package audio

import (
	"fmt"

	"github.com/gopxl/beep"
)

// resampleQuality is beep's interpolation window; 4 is its recommended default.
const resampleQuality = 4

// Resampler converts a mono buffer between two fixed rates.
type Resampler interface {
	Resample(in []float32) []float32
}

// NewResampler returns a band-limited resampler from one rate to another. The
// error is non-nil when the converter cannot be built for these rates; callers
// fall back to Decimate.
func NewResampler(from, to int) (Resampler, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("audio: invalid resample rates %d -> %d", from, to)
	}
	if from == to {
		return passthrough{}, nil
	}
	if _, err := newBeepResampler(from, to, &sliceStreamer{}); err != nil {
		return nil, err
	}
	return &beepResampler{from: from, to: to}, nil
}

type passthrough struct{}

func (passthrough) Resample(in []float32) []float32 {
	return append([]float32(nil), in...)
}

type beepResampler struct {
	from, to int
}

func newBeepResampler(from, to int, src beep.Streamer) (r *beep.Resampler, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("audio: build resampler %d -> %d: %v", from, to, p)
		}
	}()
	return beep.Resample(resampleQuality, beep.SampleRate(from), beep.SampleRate(to), src), nil
}

func (r *beepResampler) Resample(in []float32) []float32 {
	rs, err := newBeepResampler(r.from, r.to, &sliceStreamer{samples: in})
	if err != nil {
		return Decimate(in, r.from, r.to)
	}
	want := int(int64(len(in)) * int64(r.to) / int64(r.from))
	out := make([]float32, 0, want+1)
	chunk := make([][2]float64, 512)
	for {
		n, ok := rs.Stream(chunk)
		for i := 0; i < n; i++ {
			out = append(out, float32(chunk[i][0]))
		}
		if !ok || n == 0 {
			break
		}
	}
	if len(out) > want {
		out = out[:want]
	}
	return out
}

// Decimate converts rates by nearest-sample picking. It is the fallback when
// no band-limited converter can be built.
func Decimate(in []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to {
		return append([]float32(nil), in...)
	}
	n := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	for i := range out {
		j := int(float64(i) * ratio)
		if j >= len(in) {
			j = len(in) - 1
		}
		out[i] = in[j]
	}
	return out
}

// sliceStreamer feeds a mono slice to beep as duplicated stereo frames.
type sliceStreamer struct {
	samples []float32
	pos     int
}

func (s *sliceStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := 0
	for n < len(samples) && s.pos < len(s.samples) {
		v := float64(s.samples[s.pos])
		samples[n] = [2]float64{v, v}
		n++
		s.pos++
	}
	return n, true
}

func (s *sliceStreamer) Err() error { return nil }
