package asr

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"flemme/internal/audio"
	"flemme/internal/audio/ffmpeg"
	"flemme/internal/config"
	"flemme/internal/transcribe"
)

// Loader implements transcribe.Loader for the remote engine. The model path
// is sent as the "model" form field.
type Loader struct {
	Config     config.Config
	HTTPClient *http.Client
}

// Load builds a remote Model. threads is ignored.
func (l Loader) Load(path string, threads int) (transcribe.Model, error) {
	cfg := l.Config
	cfg.ModelPath = path
	if cfg.APIEndpoint == "" {
		return nil, ErrNoEndpoint
	}
	client, err := New(cfg, l.HTTPClient)
	if err != nil {
		return nil, err
	}
	return &Model{client: client, cfg: cfg}, nil
}

// Model writes each request to a temporary file, transcodes it when the
// configured container is not WAV, and uploads it.
type Model struct {
	client *Client
	cfg    config.Config
}

// Transcribe implements transcribe.Model.
func (m *Model) Transcribe(ctx context.Context, samples []float32, p transcribe.Params) (string, error) {
	dir := config.TempDir(&m.cfg)
	base := filepath.Join(dir, "RecordTemp_"+uuid.NewString())
	wavPath := base + ".wav"
	if err := audio.WriteWAV(wavPath, samples, audio.SampleRate); err != nil {
		return "", fmt.Errorf("asr: write recording: %w", err)
	}
	defer m.cleanup(wavPath)

	uploadPath := wavPath
	ext := config.ContainerExt(m.cfg.CONTAINER)
	if ext != "wav" || !strings.EqualFold(m.cfg.CODECS, "pcm") {
		uploadPath = base + "." + ext
		opts := ffmpeg.Options{
			Codec:      m.cfg.CODECS,
			Channels:   1,
			SampleRate: audio.SampleRate,
			BitRate:    m.cfg.BIT_RATE,
			Depth:      m.cfg.SAMPLING_RATE_DEPTH,
		}
		if err := ffmpeg.Convert(ctx, opts, wavPath, uploadPath); err != nil {
			return "", fmt.Errorf("asr: transcode: %w", err)
		}
		defer m.cleanup(uploadPath)
	}

	text, _, err := m.client.Transcribe(ctx, uploadPath, p)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (m *Model) cleanup(path string) {
	if m.cfg.KeepCache && m.cfg.CacheDir != "" {
		return
	}
	_ = os.Remove(path)
}

// Close implements transcribe.Model.
func (m *Model) Close() error { return nil }
