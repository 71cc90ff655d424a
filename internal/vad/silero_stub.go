//go:build !silero

package vad

import "errors"

// ErrSileroUnavailable is returned when the binary was built without the
// silero tag.
var ErrSileroUnavailable = errors.New("vad: silero classifier not compiled in (build with -tags silero)")

// SileroAvailable reports whether the Silero classifier is compiled in.
func SileroAvailable() bool { return false }

// SileroClassifier is unavailable in this build.
type SileroClassifier struct{}

// NewSileroClassifier always fails in this build.
func NewSileroClassifier(modelPath, libPath string) (*SileroClassifier, error) {
	return nil, ErrSileroUnavailable
}

// Predict implements Classifier.
func (c *SileroClassifier) Predict(window []float32, state *State) (float32, error) {
	return 0, ErrSileroUnavailable
}

// Close is a no-op.
func (c *SileroClassifier) Close() error { return nil }
