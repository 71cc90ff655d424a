// Package whisper loads whisper.cpp GGML models for local transcription.
package whisper

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"flemme/internal/transcribe"
)

// ErrNativeUnavailable indicates the binary was built without whisper.cpp.
var ErrNativeUnavailable = errors.New("whisper: native backend unavailable (build with -tags whispercpp)")

// Loader implements transcribe.Loader for GGML model files.
type Loader struct{}

// Load checks that path is a readable file and initializes a context for it.
func (Loader) Load(path string, threads int) (transcribe.Model, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("whisper: model path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: model file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("whisper: model path %s is a directory", path)
	}
	return newNative(path)
}

// cleanTranscript joins segment texts and drops whisper's blank marker.
func cleanTranscript(segments []string) string {
	var b strings.Builder
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "[BLANK_AUDIO]") {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	return b.String()
}

func language(lang string) string {
	if l := strings.TrimSpace(lang); l != "" {
		return strings.ToLower(l)
	}
	return "auto"
}
