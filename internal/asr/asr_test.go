package asr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"flemme/internal/config"
	"flemme/internal/transcribe"
)

func writeTemp(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asr-test.wav")
	if err := os.WriteFile(path, []byte("test"), 0o644); err != nil {
		t.Fatalf("write temp file failed: %v", err)
	}
	return path
}

func TestTranscribeRetryExhaustedError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("fail"))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.APIEndpoint = server.URL
	cfg.TEXTPath = "text"
	cfg.MaxRetry = 2
	cfg.RetryBaseDelay = 0
	cfg.RequestTimeout = 2

	client, err := New(cfg, &http.Client{Timeout: time.Second})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, _, err = client.Transcribe(context.Background(), writeTemp(t), transcribe.Params{})
	if err == nil {
		t.Fatalf("expected error")
	}

	var re *RetryExhaustedError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetryExhaustedError, got %T: %v", err, err)
	}
	if re.Attempts != cfg.MaxRetry {
		t.Fatalf("expected attempts %d, got %d", cfg.MaxRetry, re.Attempts)
	}
	if re.MaxRetry != cfg.MaxRetry {
		t.Fatalf("expected MaxRetry %d, got %d", cfg.MaxRetry, re.MaxRetry)
	}
	if string(re.LastResponse) != "fail" {
		t.Fatalf("unexpected last response %q", re.LastResponse)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestTranscribeSendsFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization %q", got)
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("language") != "fr" {
			t.Errorf("fields model=%q language=%q", r.FormValue("model"), r.FormValue("language"))
		}
		if r.FormValue("prompt") != "PPAT, Flemme" {
			t.Errorf("prompt %q", r.FormValue("prompt"))
		}
		if r.FormValue("temperature") != "0" {
			t.Errorf("extra config temperature %q", r.FormValue("temperature"))
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("file part: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":{"text":"bonjour"}}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.APIEndpoint = server.URL
	cfg.Token = "secret"
	cfg.ModelPath = "whisper-1"
	cfg.TEXTPath = "result.text"
	cfg.ExtraConfig = `{"temperature":0}`

	client, err := New(cfg, server.Client())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	text, raw, err := client.Transcribe(context.Background(), writeTemp(t), transcribe.Params{Language: "fr", Prompt: "PPAT, Flemme"})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "bonjour" || !strings.Contains(string(raw), "bonjour") {
		t.Fatalf("text=%q raw=%s", text, raw)
	}
}

func TestTranscribeAutoLanguageOmitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		if _, ok := r.MultipartForm.Value["language"]; ok {
			t.Errorf("language should be omitted for auto")
		}
		_, _ = w.Write([]byte(`{"text":"hello"}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.APIEndpoint = server.URL
	client, err := New(cfg, server.Client())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := client.Transcribe(context.Background(), writeTemp(t), transcribe.Params{Language: "auto"}); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
}

func TestTranscribeBackoffHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.APIEndpoint = server.URL
	cfg.MaxRetry = 5
	cfg.RetryBaseDelay = 10

	client, err := New(cfg, server.Client())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err = client.Transcribe(ctx, writeTemp(t), transcribe.Params{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("backoff ignored context")
	}
}

func TestNewRejectsBadExtraConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ExtraConfig = "{not json"
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestModelUploadsWAVAndCleansUp(t *testing.T) {
	var filename string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("file part: %v", err)
		} else {
			filename = hdr.Filename
		}
		_, _ = w.Write([]byte(`{"text":" salut "}`))
	}))
	defer server.Close()

	cache := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Engine = config.EngineRemote
	cfg.APIEndpoint = server.URL
	cfg.CacheDir = cache

	m, err := Loader{Config: cfg, HTTPClient: server.Client()}.Load("whisper-1", 4)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer m.Close()

	samples := make([]float32, 1600)
	text, err := m.Transcribe(context.Background(), samples, transcribe.Params{Language: "fr"})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if strings.TrimSpace(text) != "salut" {
		t.Fatalf("text %q", text)
	}
	if !strings.HasPrefix(filename, "RecordTemp_") || !strings.HasSuffix(filename, ".wav") {
		t.Fatalf("uploaded filename %q", filename)
	}
	entries, _ := os.ReadDir(cache)
	if len(entries) != 0 {
		t.Fatalf("temporary files left behind: %d", len(entries))
	}
}

func TestLoaderRequiresEndpoint(t *testing.T) {
	if _, err := (Loader{Config: config.DefaultConfig()}).Load("whisper-1", 1); !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("expected ErrNoEndpoint, got %v", err)
	}
}
