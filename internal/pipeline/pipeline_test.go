package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"flemme/internal/audio"
	"flemme/internal/config"
	"flemme/internal/credentials"
	"flemme/internal/hotkey"
	"flemme/internal/rewrite"
	"flemme/internal/transcribe"
)

type fakeCapture struct {
	mu        sync.Mutex
	starts    int
	stops     int
	cancels   int
	device    string
	startErr  error
	buf       audio.Buffer
	recording bool
}

func (f *fakeCapture) Start(ctx context.Context, device string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.device = device
	f.recording = true
	return nil
}

func (f *fakeCapture) Stop(ctx context.Context) (audio.Buffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.recording = false
	return append(audio.Buffer(nil), f.buf...), nil
}

func (f *fakeCapture) Cancel(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	f.recording = false
	return nil
}

type fakeTranscriber struct {
	mu       sync.Mutex
	text     string
	err      error
	block    chan struct{}
	requests []transcribe.Request
	reloads  []string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, req transcribe.Request) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.text, f.err
}

func (f *fakeTranscriber) ReloadModel(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads = append(f.reloads, path)
	return nil
}

type fakeDeliverer struct {
	mu     sync.Mutex
	copies []string
	pastes []string
}

func (f *fakeDeliverer) Copy(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, text)
	return nil
}

func (f *fakeDeliverer) Paste(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pastes = append(f.pastes, text)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeNotifier) Notify(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

type fakeObserver struct {
	results []Result
}

func (f *fakeObserver) Observe(r Result) { f.results = append(f.results, r) }

type filterFunc func(buf []float32, windowSize int) ([]float32, error)

func (f filterFunc) FilterSilence(buf []float32, windowSize int) ([]float32, error) {
	return f(buf, windowSize)
}

var passThrough = filterFunc(func(buf []float32, windowSize int) ([]float32, error) {
	return buf, nil
})

type settings struct {
	mu  sync.Mutex
	cfg config.Config
}

func (s *settings) Snapshot() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *settings) update(fn func(*config.Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cfg)
}

type harness struct {
	orch     *Orchestrator
	capture  *fakeCapture
	trans    *fakeTranscriber
	deliver  *fakeDeliverer
	notifier *fakeNotifier
	observer *fakeObserver
	settings *settings
}

func newHarness(t *testing.T, mutate func(*config.Config), deps func(*Deps)) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Language = "fr"
	cfg.CustomWords = []string{"Flemme"}
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		capture:  &fakeCapture{buf: make(audio.Buffer, audio.SampleRate)},
		trans:    &fakeTranscriber{text: " bonjour "},
		deliver:  &fakeDeliverer{},
		notifier: &fakeNotifier{},
		observer: &fakeObserver{},
		settings: &settings{cfg: cfg},
	}
	d := Deps{
		Capture:     h.capture,
		Transcriber: h.trans,
		Deliverer:   h.deliver,
		Notifier:    h.notifier,
		Settings:    h.settings,
		Filter:      passThrough,
		Observer:    h.observer,
	}
	if deps != nil {
		deps(&d)
	}
	h.orch = New(d)
	return h
}

func (h *harness) edge(k hotkey.Key, kind hotkey.Kind) {
	h.orch.HandleEdge(context.Background(), hotkey.Edge{Key: k, Kind: kind})
}

func TestToggleDictation(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.DeviceName = "USB Mic" }, nil)

	h.edge(hotkey.Trigger, hotkey.Press)
	if h.orch.State() != Recording || h.capture.device != "USB Mic" {
		t.Fatalf("state=%s device=%q", h.orch.State(), h.capture.device)
	}
	h.edge(hotkey.Trigger, hotkey.Release)
	if h.orch.State() != Recording {
		t.Fatal("release must not stop a toggle recording")
	}
	h.edge(hotkey.Trigger, hotkey.Press)
	h.orch.Wait()

	if h.orch.State() != Idle {
		t.Fatalf("state %s", h.orch.State())
	}
	if len(h.deliver.pastes) != 1 || h.deliver.pastes[0] != "bonjour" {
		t.Fatalf("pastes %v", h.deliver.pastes)
	}
	req := h.trans.requests[0]
	wantLen := audio.SampleRate + audio.SamplesFor(LeadingPad)
	if len(req.Audio) != wantLen || req.Language != "fr" || req.Vocabulary[0] != "Flemme" {
		t.Fatalf("request audio=%d language=%q vocab=%v", len(req.Audio), req.Language, req.Vocabulary)
	}
	if len(h.observer.results) != 1 || h.observer.results[0].Rewritten {
		t.Fatalf("observer %+v", h.observer.results)
	}
}

func TestRecordingStartedNotification(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.edge(hotkey.Trigger, hotkey.Press)
	if len(h.notifier.msgs) != 1 || h.notifier.msgs[0] != notifyStarted {
		t.Fatalf("notifications after press %v", h.notifier.msgs)
	}
	h.edge(hotkey.Trigger, hotkey.Press)
	h.orch.Wait()
	if len(h.notifier.msgs) != 1 {
		t.Fatalf("successful session notified %v", h.notifier.msgs)
	}

	h.settings.update(func(c *config.Config) { c.Notification = false })
	h.edge(hotkey.Trigger, hotkey.Press)
	if len(h.notifier.msgs) != 1 {
		t.Fatalf("notification sent while disabled: %v", h.notifier.msgs)
	}
}

func TestLowSpeechRatioStillTranscribes(t *testing.T) {
	var padded int
	h := newHarness(t, nil, func(d *Deps) {
		d.Filter = filterFunc(func(buf []float32, ws int) ([]float32, error) {
			padded = len(buf)
			return make([]float32, 100), nil
		})
	})
	h.edge(hotkey.Trigger, hotkey.Press)
	h.edge(hotkey.Trigger, hotkey.Press)
	h.orch.Wait()

	if ratio := 100 / float64(padded); ratio >= MinSpeechRatio {
		t.Fatalf("ratio %v not below %v", ratio, MinSpeechRatio)
	}
	if len(h.trans.requests) != 1 || len(h.trans.requests[0].Audio) != 100 {
		t.Fatalf("requests %+v", h.trans.requests)
	}
	if len(h.deliver.pastes) != 1 || h.deliver.pastes[0] != "bonjour" {
		t.Fatalf("pastes %v", h.deliver.pastes)
	}
}

func TestPushToTalk(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.PushToTalk = true }, nil)

	h.edge(hotkey.Trigger, hotkey.Press)
	h.edge(hotkey.Cancel, hotkey.Press)
	if h.orch.State() != Recording || h.capture.cancels != 0 {
		t.Fatal("cancel key must be inert in push-to-talk mode")
	}
	h.edge(hotkey.Trigger, hotkey.Release)
	h.orch.Wait()
	if len(h.deliver.pastes) != 1 {
		t.Fatalf("pastes %v", h.deliver.pastes)
	}
}

func TestCancelRecording(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.edge(hotkey.Trigger, hotkey.Press)
	h.edge(hotkey.Cancel, hotkey.Press)
	if h.orch.State() != Idle || h.capture.cancels != 1 || h.capture.stops != 0 {
		t.Fatalf("state=%s cancels=%d stops=%d", h.orch.State(), h.capture.cancels, h.capture.stops)
	}
	if len(h.notifier.msgs) != 2 || h.notifier.msgs[1] != notifyCancelled {
		t.Fatalf("notifications %v", h.notifier.msgs)
	}
	if len(h.trans.requests) != 0 {
		t.Fatal("cancelled recording was transcribed")
	}

	h.edge(hotkey.Cancel, hotkey.Press)
	if h.capture.cancels != 1 {
		t.Fatal("cancel while idle reached the capture")
	}
}

func TestEdgesIgnoredWhileProcessing(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.trans.block = make(chan struct{})

	h.edge(hotkey.Trigger, hotkey.Press)
	h.edge(hotkey.Trigger, hotkey.Press)
	if h.orch.State() != Processing {
		t.Fatalf("state %s", h.orch.State())
	}
	h.edge(hotkey.Trigger, hotkey.Press)
	h.edge(hotkey.Cancel, hotkey.Press)
	close(h.trans.block)
	h.orch.Wait()

	if h.capture.starts != 1 || h.capture.cancels != 0 {
		t.Fatalf("starts=%d cancels=%d", h.capture.starts, h.capture.cancels)
	}
	if len(h.deliver.pastes) != 1 {
		t.Fatalf("pastes %v", h.deliver.pastes)
	}
}

func TestNoSpeechSkipsTranscription(t *testing.T) {
	h := newHarness(t, nil, func(d *Deps) {
		d.Filter = filterFunc(func(buf []float32, ws int) ([]float32, error) {
			if ws != VADWindow {
				t.Errorf("window %d", ws)
			}
			return nil, nil
		})
	})
	h.edge(hotkey.Trigger, hotkey.Press)
	h.edge(hotkey.Trigger, hotkey.Press)
	h.orch.Wait()

	if len(h.trans.requests) != 0 || len(h.deliver.pastes) != 0 {
		t.Fatal("no-speech recording reached transcription")
	}
	if len(h.notifier.msgs) != 2 || h.notifier.msgs[1] != notifyNoSpeech {
		t.Fatalf("notifications %v", h.notifier.msgs)
	}
	if h.orch.State() != Idle {
		t.Fatalf("state %s", h.orch.State())
	}
}

func TestCaptureStartFailureStaysIdle(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Notification = false }, nil)
	h.capture.startErr = errors.New("no device")

	h.edge(hotkey.Trigger, hotkey.Press)
	if h.orch.State() != Idle {
		t.Fatalf("state %s", h.orch.State())
	}
	if len(h.notifier.msgs) != 0 {
		t.Fatal("notification sent while disabled")
	}
}

func TestTranscriptionErrorEndsSession(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.trans.err = transcribe.ErrModelLoadFailed

	h.edge(hotkey.Trigger, hotkey.Press)
	h.edge(hotkey.Trigger, hotkey.Press)
	h.orch.Wait()
	if len(h.deliver.pastes) != 0 || h.orch.State() != Idle {
		t.Fatalf("pastes=%v state=%s", h.deliver.pastes, h.orch.State())
	}

	h.trans.err = nil
	h.edge(hotkey.Trigger, hotkey.Press)
	h.edge(hotkey.Trigger, hotkey.Press)
	h.orch.Wait()
	if len(h.deliver.pastes) != 1 {
		t.Fatal("orchestrator did not recover after an error")
	}
}

func TestCopyWhenAutoPasteOff(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.AutoPaste = false }, nil)
	h.edge(hotkey.Trigger, hotkey.Press)
	h.edge(hotkey.Trigger, hotkey.Press)
	h.orch.Wait()
	if len(h.deliver.copies) != 1 || len(h.deliver.pastes) != 0 {
		t.Fatalf("copies=%v pastes=%v", h.deliver.copies, h.deliver.pastes)
	}
}

func withRewriteMode(url string) func(*config.Config) {
	return func(c *config.Config) {
		c.LLMModels = []config.LLMModel{{ID: "llm", APIURL: url + "/v1/chat/completions", ModelName: "m"}}
		c.Modes = append(c.Modes, config.ExecutionMode{ID: "email", LLMModelID: "llm", SystemPrompt: "Write an email."})
		c.ActiveMode = "email"
	}
}

type fakeRewriter struct {
	out    string
	err    error
	apiKey string
}

func (f *fakeRewriter) Call(ctx context.Context, model config.LLMModel, apiKey, systemPrompt, text string) (string, error) {
	f.apiKey = apiKey
	return f.out, f.err
}

func TestRewriteApplied(t *testing.T) {
	rw := &fakeRewriter{out: "Bonjour Madame,"}
	creds := credentials.NewMemory()
	_ = creds.Set("llm", "sk-1")
	h := newHarness(t, withRewriteMode("https://api.example.com"), func(d *Deps) {
		d.Rewriter = rw
		d.Credentials = creds
	})
	h.edge(hotkey.Trigger, hotkey.Press)
	h.edge(hotkey.Trigger, hotkey.Press)
	h.orch.Wait()

	if h.deliver.pastes[0] != "Bonjour Madame," || rw.apiKey != "sk-1" {
		t.Fatalf("pasted %q key %q", h.deliver.pastes[0], rw.apiKey)
	}
	if r := h.observer.results[0]; !r.Rewritten || r.Raw != "bonjour" || r.Mode != "email" {
		t.Fatalf("result %+v", r)
	}
}

func TestRewriteTimeoutDeliversRawText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := rewrite.New(srv.Client())
	client.Timeout = 50 * time.Millisecond
	creds := credentials.NewMemory()
	_ = creds.Set("llm", "sk-1")

	h := newHarness(t, withRewriteMode(srv.URL), func(d *Deps) {
		d.Rewriter = client
		d.Credentials = creds
	})
	h.edge(hotkey.Trigger, hotkey.Press)
	h.edge(hotkey.Trigger, hotkey.Press)
	h.orch.Wait()

	if len(h.deliver.pastes) != 1 || h.deliver.pastes[0] != "bonjour" {
		t.Fatalf("pastes %v", h.deliver.pastes)
	}
	if len(h.notifier.msgs) != 1 || h.notifier.msgs[0] != notifyStarted {
		t.Fatalf("rewrite failure surfaced to the user: %v", h.notifier.msgs)
	}
}

func TestRewriteMissingKeyFallsBack(t *testing.T) {
	h := newHarness(t, withRewriteMode("https://api.example.com"), func(d *Deps) {
		d.Rewriter = rewrite.New(nil)
		d.Credentials = credentials.NewMemory()
	})
	h.edge(hotkey.Trigger, hotkey.Press)
	h.edge(hotkey.Trigger, hotkey.Press)
	h.orch.Wait()
	if h.deliver.pastes[0] != "bonjour" {
		t.Fatalf("pastes %v", h.deliver.pastes)
	}
}

func TestModelPathChangeReloads(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.edge(hotkey.Trigger, hotkey.Press)
	h.edge(hotkey.Trigger, hotkey.Press)
	h.orch.Wait()
	if len(h.trans.reloads) != 0 {
		t.Fatalf("unexpected reload %v", h.trans.reloads)
	}

	h.settings.update(func(c *config.Config) { c.ModelPath = "models/ggml-medium.bin" })
	h.edge(hotkey.Trigger, hotkey.Press)
	h.edge(hotkey.Trigger, hotkey.Press)
	h.orch.Wait()
	if len(h.trans.reloads) != 1 || h.trans.reloads[0] != "models/ggml-medium.bin" {
		t.Fatalf("reloads %v", h.trans.reloads)
	}
}

func TestRunStopsOnClosedChannel(t *testing.T) {
	h := newHarness(t, nil, nil)
	edges := make(chan hotkey.Edge, 2)
	edges <- hotkey.Edge{Key: hotkey.Trigger, Kind: hotkey.Press}
	edges <- hotkey.Edge{Key: hotkey.Trigger, Kind: hotkey.Press}
	close(edges)

	done := make(chan struct{})
	go func() {
		h.orch.Run(context.Background(), edges)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if len(h.deliver.pastes) != 1 {
		t.Fatalf("pastes %v", h.deliver.pastes)
	}
}
