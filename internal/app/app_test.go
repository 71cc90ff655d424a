package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"flemme/internal/audio"
	"flemme/internal/config"
	"flemme/internal/credentials"
	"flemme/internal/pipeline"
	"flemme/internal/record"
	"flemme/internal/vad"
)

type staticSettings config.Config

func (s staticSettings) Snapshot() config.Config { return config.Config(s) }

func TestCacheObserverWritesWAVAndJSON(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.KeepCache = true
	cfg.CacheDir = dir

	obs := newCacheObserver(staticSettings(cfg))
	obs.now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }
	obs.Observe(pipeline.Result{
		SessionID: "s-1",
		Started:   time.Now(),
		Mode:      "standard",
		Audio:     make(audio.Buffer, audio.SampleRate/2),
		Speech:    audio.SampleRate / 4,
		Raw:       "bonjour",
		Text:      "bonjour",
	})

	base := filepath.Join(dir, "audio-2025-03-01-09.30.00")
	samples, rate, _, err := audio.ReadWAV(base + ".wav")
	if err != nil || rate != audio.SampleRate || len(samples) != audio.SampleRate/2 {
		t.Fatalf("wav: rate=%d len=%d err=%v", rate, len(samples), err)
	}
	b, err := os.ReadFile(base + ".json")
	if err != nil {
		t.Fatal(err)
	}
	var rec cacheRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Session != "s-1" || rec.Text != "bonjour" || rec.SpeechSec != 0.25 {
		t.Fatalf("record %+v", rec)
	}
}

func TestCacheObserverDisabled(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.CacheDir = dir
	newCacheObserver(staticSettings(cfg)).Observe(pipeline.Result{Text: "x", Audio: make(audio.Buffer, 10)})
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("cache written while KEEP_CACHE is off: %d files", len(entries))
	}
}

func TestCleanupOldTempFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"RecordTemp_abc.wav", "RecordTemp_def.ogg", "keep.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	cleanupOldTempFiles(dir, zerolog.Nop())
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "keep.txt" {
		t.Fatalf("left %v", entries)
	}
}

func TestTempOutputPath(t *testing.T) {
	p := tempOutputPath("/tmp/x", "wav")
	if filepath.Dir(p) != "/tmp/x" || !strings.HasPrefix(filepath.Base(p), "RecordTemp_") || filepath.Ext(p) != ".wav" {
		t.Fatalf("path %s", p)
	}
}

func TestKeys(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLMModels = []config.LLMModel{{ID: "gemini", APIURL: "https://example.com"}}
	store := credentials.NewMemory()

	if err := SetKey(cfg, store, "unknown", "k"); err == nil {
		t.Fatal("unknown model accepted")
	}
	if err := SetKey(cfg, store, "gemini", ""); err == nil {
		t.Fatal("empty key accepted")
	}
	if err := SetKey(cfg, store, "gemini", "g-key"); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.Get("gemini"); got != "g-key" {
		t.Fatalf("stored %q", got)
	}
	if err := DeleteKey(store, "gemini"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get("gemini"); !errors.Is(err, credentials.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type listBackend struct {
	devices []record.Device
}

func (b listBackend) Devices() ([]record.Device, error) { return b.devices, nil }

func (b listBackend) Open(string, func([]float32, int)) (record.Stream, error) {
	return nil, record.ErrDeviceUnavailable
}

func TestListDevices(t *testing.T) {
	var out bytes.Buffer
	backend := listBackend{devices: []record.Device{{Name: "Built-in"}, {Name: "USB Mic", IsDefault: true}}}
	if err := ListDevices(context.Background(), &out, backend); err != nil {
		t.Fatal(err)
	}
	if out.String() != "  Built-in\n* USB Mic\n" {
		t.Fatalf("output %q", out.String())
	}

	err := ListDevices(context.Background(), &out, listBackend{})
	if !errors.Is(err, record.ErrNoDevicesFound) {
		t.Fatalf("expected ErrNoDevicesFound, got %v", err)
	}
}

func TestNewClassifier(t *testing.T) {
	cfg := config.DefaultConfig()
	c, closeFn, err := newClassifier(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := c.(*vad.EnergyClassifier); !ok {
		t.Fatalf("default classifier %T", c)
	}
}
