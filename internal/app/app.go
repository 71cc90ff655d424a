// Package app wires the dictation pipeline from a config and runs it in
// record mode (global hotkey) or file mode.
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"

	"flemme/internal/asr"
	"flemme/internal/audio"
	"flemme/internal/audio/ffmpeg"
	"flemme/internal/config"
	"flemme/internal/credentials"
	"flemme/internal/deliver"
	"flemme/internal/hotkey"
	"flemme/internal/logging"
	"flemme/internal/metrics"
	"flemme/internal/notify"
	"flemme/internal/pipeline"
	"flemme/internal/record"
	"flemme/internal/rewrite"
	"flemme/internal/transcribe"
	"flemme/internal/vad"
	"flemme/internal/whisper"
)

// App holds the long-lived pipeline components.
type App struct {
	cfg        config.Config
	settings   pipeline.SettingsSource
	httpClient *http.Client
	recorder   *record.Recorder
	worker     *transcribe.Worker
	closeVAD   func() error
	orch       *pipeline.Orchestrator
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// New builds the pipeline. cfg is the validated startup config; settings
// supplies the per-session snapshot.
func New(cfg config.Config, settings pipeline.SettingsSource) (*App, error) {
	a := &App{
		cfg:        cfg,
		settings:   settings,
		httpClient: newHTTPClient(cfg),
		metrics:    metrics.DefaultMetrics,
		log:        logging.WithComponent("app"),
	}

	classifier, closeVAD, err := newClassifier(cfg, a.log)
	if err != nil {
		return nil, err
	}
	a.closeVAD = closeVAD
	detector, err := vad.NewDetector(classifier, float32(cfg.VADThreshold))
	if err != nil {
		_ = closeVAD()
		return nil, err
	}

	a.worker = transcribe.NewWorker(newLoader(cfg, a.httpClient), cfg.ModelPath,
		transcribe.WithThreads(cfg.Threads),
		transcribe.WithMetrics(a.metrics),
	)
	a.recorder = record.New(record.PortAudio{})

	a.orch = pipeline.New(pipeline.Deps{
		Capture:     a.recorder,
		Transcriber: a.worker,
		Rewriter:    rewrite.New(a.httpClient),
		Credentials: credentials.Keyring{Service: cfg.KeyringService},
		Deliverer:   deliver.New(time.Duration(cfg.PasteDelayMS)*time.Millisecond, cfg.RestoreClipboard),
		Notifier:    notify.Notifier{Enabled: true},
		Settings:    settings,
		Filter:      detector,
		Observer:    newCacheObserver(settings),
		Metrics:     a.metrics,
	})
	return a, nil
}

func newClassifier(cfg config.Config, log zerolog.Logger) (vad.Classifier, func() error, error) {
	noop := func() error { return nil }
	if cfg.VADBackend != config.VADSilero {
		return vad.NewEnergyClassifier(), noop, nil
	}
	c, err := vad.NewSileroClassifier(cfg.VADModelPath, cfg.ONNXRuntimeLib)
	if errors.Is(err, vad.ErrSileroUnavailable) {
		log.Warn().Err(err).Msg("falling back to the energy classifier")
		return vad.NewEnergyClassifier(), noop, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

func newLoader(cfg config.Config, httpClient *http.Client) transcribe.Loader {
	if cfg.Engine == config.EngineRemote {
		return asr.Loader{Config: cfg, HTTPClient: httpClient}
	}
	return whisper.Loader{}
}

// Close releases the device, the model and the classifier.
func (a *App) Close() {
	a.recorder.Close()
	a.worker.Close()
	if err := a.closeVAD(); err != nil {
		a.log.Warn().Err(err).Msg("vad close failed")
	}
	a.httpClient.CloseIdleConnections()
}

func (a *App) status() map[string]any {
	cfg := a.settings.Snapshot()
	return map[string]any{
		"state":        a.orch.State().String(),
		"recording":    a.recorder.IsRecording(),
		"engine":       cfg.Engine,
		"model":        cfg.ModelPath,
		"mode":         cfg.ActiveExecutionMode().ID,
		"push_to_talk": cfg.PushToTalk,
	}
}

// RunRecordMode registers the hotkeys and dictates until ctx is done.
func (a *App) RunRecordMode(ctx context.Context) error {
	tempDir := config.TempDir(&a.cfg)
	cleanupOldTempFiles(tempDir, a.log)

	if a.cfg.MetricsAddr != "" {
		srv := metrics.NewServer(a.cfg.MetricsAddr, a.status)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	listener, err := hotkey.NewSystem()
	if errors.Is(err, hotkey.ErrUnsupported) {
		a.log.Info().Msg("no global hotkey hook on this platform; reading press/release/toggle/cancel from stdin")
		listener = hotkey.NewConsole(os.Stdin)
	} else if err != nil {
		return err
	}
	defer listener.Close()

	trigger, err := listener.Register(hotkey.Trigger, a.cfg.Hotkey)
	if err != nil {
		return fmt.Errorf("register hotkey %q: %w", a.cfg.Hotkey, err)
	}
	defer listener.Unregister(trigger)
	if a.cfg.CancelKey != "" {
		cancelKey, err := listener.Register(hotkey.Cancel, a.cfg.CancelKey)
		if err != nil {
			return fmt.Errorf("register cancel key %q: %w", a.cfg.CancelKey, err)
		}
		defer listener.Unregister(cancelKey)
	}

	mode := "toggle"
	if a.cfg.PushToTalk {
		mode = "push-to-talk"
	}
	a.log.Info().Str("hotkey", a.cfg.Hotkey).Str("cancel", a.cfg.CancelKey).Str("trigger", mode).Msg("ready")
	a.orch.Run(ctx, listener.Events())
	return nil
}

// RunFileMode decodes inputPath, runs it through the pipeline and writes the
// text to outputPath (default: <input>.txt in the working directory).
func (a *App) RunFileMode(ctx context.Context, inputPath, outputPath string) error {
	tempDir := config.TempDir(&a.cfg)
	cleanupOldTempFiles(tempDir, a.log)

	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("file '%s' stat failed: %w", inputPath, err)
	}

	tmp := tempOutputPath(tempDir, "wav")
	defer os.Remove(tmp)
	if err := ffmpeg.Decode(ctx, inputPath, tmp, audio.SampleRate); err != nil {
		return err
	}
	buf, err := audio.LoadMono(tmp)
	if err != nil {
		return err
	}
	audio.Condition(buf)

	cfg := a.settings.Snapshot()
	res, err := a.orch.Process(ctx, cfg, buf)
	if err != nil {
		return err
	}
	newCacheObserver(a.settings).Observe(res)

	outPath := outputPath
	if outPath == "" {
		base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		outPath = filepath.Join(".", base+".txt")
	}
	if err := os.WriteFile(outPath, []byte(res.Text), 0644); err != nil {
		return err
	}
	a.log.Info().Str("output", outPath).Int("chars", len(res.Text)).Bool("rewritten", res.Rewritten).Msg("transcript written")
	return nil
}

func newHTTPClient(cfg config.Config) *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !cfg.VerifySSL {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if cfg.EnableHTTP2 {
		_ = http2.ConfigureTransport(tr)
	}
	// Deadlines are set per call.
	return &http.Client{Transport: tr}
}

func cleanupOldTempFiles(dir string, log zerolog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("cleanup: read dir failed")
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "RecordTemp_") {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("cleanup: remove failed")
		} else {
			log.Debug().Str("path", path).Msg("cleanup: removed")
		}
	}
}

func tempOutputPath(dir, ext string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	base := fmt.Sprintf("RecordTemp_%s.%s", id, ext)
	if dir == "" {
		cwd, _ := os.Getwd()
		dir = cwd
	}
	return filepath.Join(dir, base)
}
