// Package vad classifies fixed-size audio windows as speech or silence and
// uses that to strip silence from 16 kHz buffers.
package vad

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"flemme/internal/audio"
	"flemme/internal/logging"
)

// ErrInvalidWindowSize is returned for windows outside WindowSizes.
var ErrInvalidWindowSize = errors.New("vad: invalid window size")

// WindowSizes are the window lengths, in samples, the classifier accepts.
var WindowSizes = [...]int{512, 1024, 1536}

// DefaultWindowSize is used by the dictation pipeline.
const DefaultWindowSize = 512

// DefaultThreshold is the speech probability above which a window is speech.
const DefaultThreshold = 0.3

// ValidWindowSize reports whether n is an accepted window length.
func ValidWindowSize(n int) bool {
	for _, w := range WindowSizes {
		if n == w {
			return true
		}
	}
	return false
}

const (
	stateLayers = 2
	stateBatch  = 1
	stateHidden = 128
)

// State is the recurrent classifier state carried between windows of one
// recording. Its shape never changes.
type State [stateLayers][stateBatch][stateHidden]float32

// Reset zeroes the state.
func (s *State) Reset() { *s = State{} }

// Classifier returns a speech probability in [0, 1] for one window and
// updates state in place.
type Classifier interface {
	Predict(window []float32, state *State) (float32, error)
}

// Segment is a half-open sample range [Start, End).
type Segment struct {
	Start int
	End   int
}

// Len returns the number of samples in the segment.
func (s Segment) Len() int { return s.End - s.Start }

// Duration at audio.SampleRate.
func (s Segment) Duration() time.Duration {
	return time.Duration(s.Len()) * time.Second / audio.SampleRate
}

// Clamp restricts the segment to a buffer of length n.
func (s Segment) Clamp(n int) Segment {
	if s.Start < 0 {
		s.Start = 0
	}
	if s.End > n {
		s.End = n
	}
	if s.Start > s.End {
		s.Start = s.End
	}
	return s
}

// Extract returns the samples covered by the segment, clamped to buf.
func (s Segment) Extract(buf []float32) []float32 {
	c := s.Clamp(len(buf))
	return buf[c.Start:c.End]
}

// Detector pairs a classifier with a decision threshold.
type Detector struct {
	classifier Classifier
	threshold  float32
	log        zerolog.Logger
}

// NewDetector validates threshold and returns a detector.
func NewDetector(c Classifier, threshold float32) (*Detector, error) {
	if c == nil {
		return nil, errors.New("vad: nil classifier")
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("vad: threshold %v outside [0, 1]", threshold)
	}
	return &Detector{
		classifier: c,
		threshold:  threshold,
		log:        logging.WithComponent("vad"),
	}, nil
}

// Threshold returns the decision threshold.
func (d *Detector) Threshold() float32 { return d.threshold }

// NewSession returns a session with zeroed state.
func (d *Detector) NewSession() *Session {
	return &Session{d: d}
}

// Session carries classifier state across the windows of one recording. A
// session is not safe for concurrent use.
type Session struct {
	d     *Detector
	state State
}

// Detect returns the speech probability of window.
func (s *Session) Detect(window []float32) (float32, error) {
	if !ValidWindowSize(len(window)) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidWindowSize, len(window))
	}
	p, err := s.d.classifier.Predict(window, &s.state)
	if err != nil {
		return 0, fmt.Errorf("vad: predict: %w", err)
	}
	return p, nil
}

// IsSpeech reports whether window's probability exceeds the threshold.
// Classification errors are logged and count as silence.
func (s *Session) IsSpeech(window []float32) bool {
	p, err := s.Detect(window)
	if err != nil {
		s.d.log.Warn().Err(err).Msg("window classification failed; treating as silence")
		return false
	}
	return p > s.d.threshold
}

// Reset zeroes the session state.
func (s *Session) Reset() { s.state.Reset() }

// FilterSilence keeps only the windows classified as speech, in order. A
// trailing partial window is zero-padded for classification and, when it is
// speech, only its real samples are kept.
func (d *Detector) FilterSilence(buf []float32, windowSize int) ([]float32, error) {
	if !ValidWindowSize(windowSize) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindowSize, windowSize)
	}
	s := d.NewSession()
	out := make([]float32, 0, len(buf))
	padded := make([]float32, windowSize)
	for start := 0; start < len(buf); start += windowSize {
		end := start + windowSize
		if end <= len(buf) {
			if s.IsSpeech(buf[start:end]) {
				out = append(out, buf[start:end]...)
			}
			continue
		}
		n := copy(padded, buf[start:])
		clear(padded[n:])
		if s.IsSpeech(padded) {
			out = append(out, buf[start:]...)
		}
	}
	return out, nil
}

// SpeechSegments returns maximal runs of consecutive speech windows. Unlike
// FilterSilence, a trailing partial window is never classified, so segment
// ends never exceed the last complete window.
func (d *Detector) SpeechSegments(buf []float32, windowSize int) ([]Segment, error) {
	if !ValidWindowSize(windowSize) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindowSize, windowSize)
	}
	s := d.NewSession()
	var (
		segments []Segment
		open     bool
		cur      Segment
	)
	for start := 0; start+windowSize <= len(buf); start += windowSize {
		end := start + windowSize
		if s.IsSpeech(buf[start:end]) {
			if !open {
				cur = Segment{Start: start}
				open = true
			}
			cur.End = end
			continue
		}
		if open {
			segments = append(segments, cur)
			open = false
		}
	}
	if open {
		segments = append(segments, cur)
	}
	return segments, nil
}
