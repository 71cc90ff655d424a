// Package pipeline turns hotkey edges into delivered text: capture, voice
// activity filtering, transcription, optional rewrite, then paste.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"flemme/internal/audio"
	"flemme/internal/config"
	"flemme/internal/credentials"
	"flemme/internal/hotkey"
	"flemme/internal/logging"
	"flemme/internal/metrics"
	"flemme/internal/rewrite"
	"flemme/internal/transcribe"
)

// Processing constants.
const (
	LeadingPad       = 150 * time.Millisecond
	VADWindow        = 512
	MinSpeechRatio   = 0.05
	notifyStarted    = "Recording started"
	notifyCancelled  = "Recording stopped"
	notifyNoSpeech   = "No speech detected"
	notifyNoAudio    = "No audio captured"
	notifyMicFailed  = "Microphone unavailable"
	notifyTranscribe = "Transcription failed"
	notifyDeliver    = "Could not paste the text"
)

var (
	ErrNoSpeech        = errors.New("pipeline: no speech detected")
	ErrEmptyTranscript = errors.New("pipeline: empty transcript")
)

// State is the orchestrator state.
type State int

const (
	Idle State = iota
	Recording
	Processing
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	default:
		return "idle"
	}
}

// Capturer records from an input device.
type Capturer interface {
	Start(ctx context.Context, deviceName string) error
	Stop(ctx context.Context) (audio.Buffer, error)
	Cancel(ctx context.Context) error
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (string, error)
}

// ModelReloader is implemented by transcribers that can switch models.
type ModelReloader interface {
	ReloadModel(ctx context.Context, path string) error
}

// Rewriter rewrites a transcript with a chat model.
type Rewriter interface {
	Call(ctx context.Context, model config.LLMModel, apiKey, systemPrompt, text string) (string, error)
}

// Deliverer hands text to the user.
type Deliverer interface {
	Copy(ctx context.Context, text string) error
	Paste(ctx context.Context, text string) error
}

// Notifier shows short user-facing messages.
type Notifier interface {
	Notify(message string)
}

// SettingsSource returns a settings snapshot.
type SettingsSource interface {
	Snapshot() config.Config
}

// SpeechFilter drops non-speech windows.
type SpeechFilter interface {
	FilterSilence(buf []float32, windowSize int) ([]float32, error)
}

// Observer receives every delivered result.
type Observer interface {
	Observe(r Result)
}

// Result is one processed recording.
type Result struct {
	SessionID string
	Started   time.Time
	Mode      string
	Audio     audio.Buffer
	Speech    int
	Raw       string
	Text      string
	Rewritten bool
}

// Deps are the orchestrator's collaborators. Observer, Notifier, Rewriter,
// Credentials and Metrics are optional.
type Deps struct {
	Capture     Capturer
	Transcriber Transcriber
	Rewriter    Rewriter
	Credentials credentials.Store
	Deliverer   Deliverer
	Notifier    Notifier
	Settings    SettingsSource
	Filter      SpeechFilter
	Observer    Observer
	Metrics     *metrics.Metrics
}

type session struct {
	id      string
	cfg     config.Config
	started time.Time
	log     zerolog.Logger
}

// Orchestrator owns the dictation state machine.
type Orchestrator struct {
	deps Deps
	log  zerolog.Logger

	mu        sync.Mutex
	state     State
	cur       *session
	modelPath string

	wg sync.WaitGroup
}

// New returns an idle orchestrator.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		deps:      deps,
		log:       logging.WithComponent("pipeline"),
		modelPath: deps.Settings.Snapshot().ModelPath,
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Wait blocks until in-flight processing finishes.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// Run handles edges until ctx is done or edges is closed, then waits for
// in-flight processing.
func (o *Orchestrator) Run(ctx context.Context, edges <-chan hotkey.Edge) {
	defer o.Wait()
	for {
		select {
		case <-ctx.Done():
			o.discard(context.WithoutCancel(ctx))
			return
		case e, ok := <-edges:
			if !ok {
				return
			}
			o.HandleEdge(ctx, e)
		}
	}
}

// HandleEdge applies one key transition.
func (o *Orchestrator) HandleEdge(ctx context.Context, e hotkey.Edge) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case Idle:
		if e.Key == hotkey.Trigger && e.Kind == hotkey.Press {
			o.start(ctx)
		}
	case Recording:
		cfg := o.cur.cfg
		switch {
		case e.Key == hotkey.Cancel && e.Kind == hotkey.Press && !cfg.PushToTalk:
			o.cancel(ctx)
		case e.Key == hotkey.Trigger && e.Kind == hotkey.Press && !cfg.PushToTalk,
			e.Key == hotkey.Trigger && e.Kind == hotkey.Release && cfg.PushToTalk:
			o.stop(ctx)
		}
	case Processing:
		if e.Kind == hotkey.Press {
			o.log.Debug().Stringer("key", e.Key).Msg("edge ignored while processing")
		}
	}
}

func (o *Orchestrator) start(ctx context.Context) {
	cfg := o.deps.Settings.Snapshot()
	s := &session{id: uuid.NewString(), cfg: cfg, started: time.Now()}
	s.log = logging.WithSession("pipeline", s.id)
	if err := o.deps.Capture.Start(ctx, cfg.DeviceName); err != nil {
		s.log.Error().Err(err).Str("device", cfg.DeviceName).Msg("capture start failed")
		o.notify(cfg, notifyMicFailed)
		o.deps.Metrics.Session(metrics.OutcomeCaptureError)
		return
	}
	o.cur = s
	o.state = Recording
	s.log.Info().Bool("push_to_talk", cfg.PushToTalk).Str("mode", cfg.ActiveMode).Msg("recording")
	o.notify(cfg, notifyStarted)
}

func (o *Orchestrator) cancel(ctx context.Context) {
	s := o.cur
	if err := o.deps.Capture.Cancel(ctx); err != nil {
		s.log.Warn().Err(err).Msg("capture cancel failed")
	}
	o.cur = nil
	o.state = Idle
	s.log.Info().Msg("recording cancelled")
	o.notify(s.cfg, notifyCancelled)
	o.deps.Metrics.Session(metrics.OutcomeCancelled)
}

// discard drops an active recording on shutdown.
func (o *Orchestrator) discard(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == Recording {
		_ = o.deps.Capture.Cancel(ctx)
		o.cur = nil
		o.state = Idle
	}
}

func (o *Orchestrator) stop(ctx context.Context) {
	s := o.cur
	o.state = Processing
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		outcome := o.finish(ctx, s)
		o.deps.Metrics.Session(outcome)
		s.log.Info().Str("outcome", outcome).Dur("total", time.Since(s.started)).Msg("session finished")

		o.mu.Lock()
		o.cur = nil
		o.state = Idle
		o.mu.Unlock()
	}()
}

func (o *Orchestrator) finish(ctx context.Context, s *session) string {
	start := time.Now()
	buf, err := o.deps.Capture.Stop(ctx)
	o.deps.Metrics.Stage("capture_stop", start)
	if err != nil {
		s.log.Error().Err(err).Msg("capture stop failed")
		return metrics.OutcomeCaptureError
	}
	if len(buf) == 0 {
		s.log.Warn().Msg("empty recording")
		o.notify(s.cfg, notifyNoAudio)
		return metrics.OutcomeEmptyRecording
	}
	s.log.Debug().Dur("audio", buf.Duration()).Msg("capture stopped")

	o.syncModel(ctx, s)

	res, err := o.process(ctx, s, buf)
	switch {
	case errors.Is(err, ErrNoSpeech):
		o.notify(s.cfg, notifyNoSpeech)
		return metrics.OutcomeNoSpeech
	case errors.Is(err, ErrEmptyTranscript):
		o.notify(s.cfg, notifyNoSpeech)
		return metrics.OutcomeEmptyText
	case errors.Is(err, errVAD):
		s.log.Error().Err(err).Msg("voice activity filter failed")
		return metrics.OutcomeVADError
	case err != nil:
		s.log.Error().Err(err).Msg("transcription failed")
		o.notify(s.cfg, notifyTranscribe)
		return metrics.OutcomeTranscribeErr
	}

	start = time.Now()
	if s.cfg.AutoPaste {
		err = o.deps.Deliverer.Paste(ctx, res.Text)
	} else {
		err = o.deps.Deliverer.Copy(ctx, res.Text)
	}
	o.deps.Metrics.Stage("deliver", start)
	if err != nil {
		s.log.Error().Err(err).Msg("delivery failed")
		o.notify(s.cfg, notifyDeliver)
		return metrics.OutcomeDeliveryError
	}
	s.log.Info().Int("chars", len(res.Text)).Bool("pasted", s.cfg.AutoPaste).Bool("rewritten", res.Rewritten).Msg("delivered")
	if o.deps.Observer != nil {
		o.deps.Observer.Observe(res)
	}
	return metrics.OutcomeDelivered
}

// syncModel reloads the transcription model when the configured path
// changed since the last session.
func (o *Orchestrator) syncModel(ctx context.Context, s *session) {
	r, ok := o.deps.Transcriber.(ModelReloader)
	if !ok {
		return
	}
	o.mu.Lock()
	changed := s.cfg.ModelPath != o.modelPath
	o.modelPath = s.cfg.ModelPath
	o.mu.Unlock()
	if !changed {
		return
	}
	s.log.Info().Str("model", s.cfg.ModelPath).Msg("model path changed; reloading")
	if err := r.ReloadModel(ctx, s.cfg.ModelPath); err != nil {
		s.log.Error().Err(err).Msg("model reload failed")
	}
}

var errVAD = errors.New("pipeline: voice activity filter")

// Process runs a conditioned 16 kHz recording through voice activity
// filtering, transcription and the active mode's rewrite using cfg.
func (o *Orchestrator) Process(ctx context.Context, cfg config.Config, buf audio.Buffer) (Result, error) {
	s := &session{id: uuid.NewString(), cfg: cfg, started: time.Now()}
	s.log = logging.WithSession("pipeline", s.id)
	return o.process(ctx, s, buf)
}

func (o *Orchestrator) process(ctx context.Context, s *session, buf audio.Buffer) (Result, error) {
	res := Result{SessionID: s.id, Started: s.started, Mode: s.cfg.ActiveMode, Audio: buf}

	padded := audio.PadSilence(buf, LeadingPad)
	start := time.Now()
	speech, err := o.deps.Filter.FilterSilence(padded, VADWindow)
	o.deps.Metrics.Stage("vad", start)
	if err != nil {
		return res, fmt.Errorf("%w: %v", errVAD, err)
	}
	ratio := float64(len(speech)) / float64(len(padded))
	o.deps.Metrics.Recording(buf.Duration(), ratio)
	res.Speech = len(speech)
	if len(speech) == 0 {
		s.log.Info().Dur("audio", buf.Duration()).Msg("no speech detected")
		return res, ErrNoSpeech
	}
	if ratio < MinSpeechRatio {
		s.log.Warn().Float64("ratio", ratio).Msg("voice activity filter removed most of the recording")
	}
	s.log.Debug().Int("samples", len(padded)).Int("speech", len(speech)).Float64("ratio", ratio).Msg("silence filtered")

	start = time.Now()
	text, err := o.deps.Transcriber.Transcribe(ctx, transcribe.Request{
		Audio:      speech,
		Language:   s.cfg.Language,
		Vocabulary: s.cfg.CustomWords,
	})
	o.deps.Metrics.Stage("transcribe", start)
	if err != nil {
		return res, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return res, ErrEmptyTranscript
	}
	res.Raw = text
	res.Text, res.Rewritten = o.rewrite(ctx, s, text)
	return res, nil
}

// rewrite applies the active mode. Any failure returns the raw text.
func (o *Orchestrator) rewrite(ctx context.Context, s *session, text string) (string, bool) {
	mode := s.cfg.ActiveExecutionMode()
	if mode.LLMModelID == "" || o.deps.Rewriter == nil {
		return text, false
	}
	fallback := func(reason string, err error) (string, bool) {
		s.log.Warn().Err(err).Str("reason", reason).Str("mode", mode.ID).Msg("rewrite failed; using raw transcript")
		o.deps.Metrics.RewriteFallback(reason)
		return text, false
	}

	model, ok := s.cfg.LLMModelByID(mode.LLMModelID)
	if !ok {
		return fallback("unknown_model", fmt.Errorf("model %s not configured", mode.LLMModelID))
	}
	var key string
	if o.deps.Credentials != nil {
		k, err := o.deps.Credentials.Get(model.ID)
		if err != nil && !errors.Is(err, credentials.ErrNotFound) {
			return fallback("credential_store", err)
		}
		key = k
	}

	start := time.Now()
	out, err := o.deps.Rewriter.Call(ctx, model, key, mode.SystemPrompt, text)
	o.deps.Metrics.Stage("rewrite", start)
	if err != nil {
		var rerr *rewrite.Error
		switch {
		case errors.Is(err, rewrite.ErrMissingCredential):
			return fallback("missing_credential", err)
		case errors.As(err, &rerr):
			return fallback(rerr.Kind.String(), err)
		default:
			return fallback("error", err)
		}
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return fallback("empty", errors.New("empty rewrite"))
	}
	o.deps.Metrics.Rewrite()
	s.log.Debug().Str("mode", mode.ID).Str("model", model.ID).Msg("rewritten")
	return out, true
}

func (o *Orchestrator) notify(cfg config.Config, msg string) {
	if o.deps.Notifier != nil && cfg.Notification {
		o.deps.Notifier.Notify(msg)
	}
}
