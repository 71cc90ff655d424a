//go:build silero

package vad

import (
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"flemme/internal/audio"
)

var ortInit sync.Once
var ortInitErr error

// SileroAvailable reports whether the Silero classifier is compiled in.
func SileroAvailable() bool { return true }

// SileroClassifier runs the Silero VAD ONNX model through onnxruntime.
type SileroClassifier struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// NewSileroClassifier loads the model at modelPath. libPath points at the
// onnxruntime shared library; empty uses the loader's default search.
func NewSileroClassifier(modelPath, libPath string) (*SileroClassifier, error) {
	if modelPath == "" {
		return nil, errors.New("vad: silero model path is empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("vad: silero model: %w", err)
	}
	ortInit.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("vad: onnxruntime init: %w", ortInitErr)
	}
	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		nil)
	if err != nil {
		return nil, fmt.Errorf("vad: load silero model: %w", err)
	}
	return &SileroClassifier{session: session}, nil
}

// Predict implements Classifier.
func (c *SileroClassifier) Predict(window []float32, state *State) (float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	input, err := ort.NewTensor(ort.NewShape(1, int64(len(window))), append([]float32(nil), window...))
	if err != nil {
		return 0, err
	}
	defer input.Destroy()

	flat := make([]float32, 0, stateLayers*stateBatch*stateHidden)
	for l := range state {
		for b := range state[l] {
			flat = append(flat, state[l][b][:]...)
		}
	}
	stateIn, err := ort.NewTensor(ort.NewShape(stateLayers, stateBatch, stateHidden), flat)
	if err != nil {
		return 0, err
	}
	defer stateIn.Destroy()

	sr, err := ort.NewScalar(int64(audio.SampleRate))
	if err != nil {
		return 0, err
	}
	defer sr.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, err
	}
	defer output.Destroy()
	stateOut, err := ort.NewEmptyTensor[float32](ort.NewShape(stateLayers, stateBatch, stateHidden))
	if err != nil {
		return 0, err
	}
	defer stateOut.Destroy()

	if err := c.session.Run([]ort.Value{input, stateIn, sr}, []ort.Value{output, stateOut}); err != nil {
		return 0, err
	}

	next := stateOut.GetData()
	i := 0
	for l := range state {
		for b := range state[l] {
			i += copy(state[l][b][:], next[i:])
		}
	}
	return output.GetData()[0], nil
}

// Close releases the onnxruntime session.
func (c *SileroClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.session = nil
	return err
}
