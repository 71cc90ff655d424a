// Package transcribe runs speech-to-text on a single worker loop that owns
// the loaded model.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"flemme/internal/audio"
	"flemme/internal/logging"
	"flemme/internal/metrics"
	"flemme/internal/worker"
)

var (
	ErrEmptyAudio      = errors.New("transcribe: empty audio")
	ErrModelLoadFailed = errors.New("transcribe: model load failed")
	ErrReloadFailed    = errors.New("transcribe: model reload failed")
)

// Params are passed to a model for one transcription.
type Params struct {
	Language string
	Prompt   string
	Threads  int
}

// Model converts 16 kHz mono samples to text.
type Model interface {
	Transcribe(ctx context.Context, samples []float32, p Params) (string, error)
	Close() error
}

// Loader builds a Model from a path or model identifier.
type Loader interface {
	Load(path string, threads int) (Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(path string, threads int) (Model, error)

// Load implements Loader.
func (f LoaderFunc) Load(path string, threads int) (Model, error) { return f(path, threads) }

// Request is one transcription job.
type Request struct {
	Audio      audio.Buffer
	Language   string
	Vocabulary []string
}

type workerState struct {
	loader  Loader
	path    string
	threads int
	model   Model
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Worker.
type Option func(*workerState)

// WithThreads overrides the thread count derived from the CPU count.
func WithThreads(n int) Option {
	return func(s *workerState) {
		if n > 0 {
			s.threads = n
		}
	}
}

// WithMetrics records model loads.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *workerState) { s.metrics = m }
}

// Worker serializes transcriptions against one lazily loaded model.
type Worker struct {
	loop *worker.Loop[workerState]
	log  zerolog.Logger
}

// NewWorker starts a worker. The model at modelPath is loaded on first use.
func NewWorker(loader Loader, modelPath string, opts ...Option) *Worker {
	st := workerState{
		loader:  loader,
		path:    modelPath,
		threads: ThreadCount(runtime.NumCPU()),
		log:     logging.WithComponent("transcribe"),
	}
	for _, o := range opts {
		o(&st)
	}
	return &Worker{loop: worker.Start(st, 8), log: st.log}
}

func (s *workerState) ensureLoaded() error {
	if s.model != nil {
		return nil
	}
	start := time.Now()
	m, err := s.loader.Load(s.path, s.threads)
	s.metrics.ModelLoad(err == nil)
	if err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("model load failed")
		return fmt.Errorf("%w: %s: %v", ErrModelLoadFailed, s.path, err)
	}
	s.model = m
	s.log.Info().
		Str("path", s.path).
		Int("threads", s.threads).
		Dur("elapsed", time.Since(start)).
		Msg("model loaded")
	return nil
}

func (s *workerState) unload() {
	if s.model == nil {
		return
	}
	if err := s.model.Close(); err != nil {
		s.log.Warn().Err(err).Msg("closing model")
	}
	s.model = nil
}

type reply struct {
	text string
	err  error
}

// Transcribe converts req.Audio to text. Empty audio fails with ErrEmptyAudio
// without touching the model. Once queued, a request runs to completion even
// if ctx is cancelled.
func (w *Worker) Transcribe(ctx context.Context, req Request) (string, error) {
	if len(req.Audio) == 0 {
		return "", ErrEmptyAudio
	}
	params := Params{
		Language: req.Language,
		Prompt:   BiasPrompt(req.Vocabulary),
	}
	modelCtx := context.WithoutCancel(ctx)
	r, err := worker.Call(ctx, w.loop, func(s *workerState) reply {
		if err := s.ensureLoaded(); err != nil {
			return reply{err: err}
		}
		p := params
		p.Threads = s.threads
		start := time.Now()
		text, err := s.model.Transcribe(modelCtx, req.Audio, p)
		if err != nil {
			return reply{err: fmt.Errorf("transcribe: %w", err)}
		}
		text = strings.TrimSpace(text)
		s.log.Debug().
			Dur("audio", req.Audio.Duration()).
			Dur("elapsed", time.Since(start)).
			Int("chars", len(text)).
			Msg("transcription done")
		return reply{text: text}
	})
	if err != nil {
		return "", err
	}
	return r.text, r.err
}

// ReloadModel drops the current model and loads path. On failure the worker
// has no model; path stays configured so the next Transcribe retries it.
func (w *Worker) ReloadModel(ctx context.Context, path string) error {
	r, err := worker.Call(ctx, w.loop, func(s *workerState) error {
		s.unload()
		s.path = path
		if err := s.ensureLoaded(); err != nil {
			return fmt.Errorf("%w: %v", ErrReloadFailed, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return r
}

// IsLoaded reports whether a model is currently loaded.
func (w *Worker) IsLoaded(ctx context.Context) bool {
	loaded, err := worker.Call(ctx, w.loop, func(s *workerState) bool { return s.model != nil })
	return err == nil && loaded
}

// Close unloads the model and stops the worker.
func (w *Worker) Close() {
	w.loop.Close(func(s *workerState) { s.unload() })
}

// BiasPrompt joins non-blank vocabulary words into the model's initial prompt.
func BiasPrompt(words []string) string {
	var kept []string
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, ", ")
}

// ThreadCount picks inference threads from the number of cores: all of them
// up to 4, three quarters up to 8, then half but at least 8.
func ThreadCount(cores int) int {
	switch {
	case cores <= 0:
		return 1
	case cores <= 4:
		return cores
	case cores <= 8:
		n := cores * 3 / 4
		if n < 1 {
			n = 1
		}
		return n
	default:
		n := cores / 2
		if n < 8 {
			n = 8
		}
		if n > cores {
			n = cores
		}
		return n
	}
}
