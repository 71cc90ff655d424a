package vad

import "math"

// EnergyClassifier scores windows by RMS level above a tracked noise floor.
// It needs no model file and is the default classifier.
//
// State layout: [0][0][0] smoothed probability, [0][0][1] noise floor in dB,
// [0][0][2] set to 1 once the floor has been seeded.
type EnergyClassifier struct {
	// MarginDB is how far above the floor a window starts to count as speech.
	MarginDB float64
	// SpanDB is the range over which probability rises from 0 to 1.
	SpanDB float64
	// Smoothing weights the current window against the previous probability.
	Smoothing float64
}

const (
	floorMinDB = -60
	minLevelDB = -100
	floorRise  = 0.01
)

// NewEnergyClassifier returns a classifier with defaults tuned for
// peak-normalized microphone audio.
func NewEnergyClassifier() *EnergyClassifier {
	return &EnergyClassifier{MarginDB: 10, SpanDB: 20, Smoothing: 0.6}
}

// Predict implements Classifier.
func (c *EnergyClassifier) Predict(window []float32, state *State) (float32, error) {
	if len(window) == 0 {
		return 0, nil
	}
	var sum float64
	for _, v := range window {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(window)))
	h := &state[0][0]
	if rms == 0 {
		// Digital silence (padding, muted input) leaves the floor untouched.
		p := (1 - c.Smoothing) * float64(h[0])
		h[0] = float32(p)
		return float32(p), nil
	}
	db := math.Max(20*math.Log10(rms), minLevelDB)

	if h[2] == 0 {
		h[1] = float32(db)
		h[2] = 1
	}
	floor := float64(h[1])
	if db < floor {
		floor = db
	} else {
		floor += (db - floor) * floorRise
	}
	h[1] = float32(floor)

	ref := math.Max(floor, floorMinDB) + c.MarginDB
	raw := (db - ref) / c.SpanDB
	raw = math.Max(0, math.Min(1, raw))

	p := c.Smoothing*raw + (1-c.Smoothing)*float64(h[0])
	h[0] = float32(p)
	return float32(p), nil
}
