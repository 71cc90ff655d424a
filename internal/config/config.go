package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// StandardModeID is the execution mode that never rewrites.
const StandardModeID = "standard"

// Engine names.
const (
	EngineWhisper = "whisper"
	EngineRemote  = "remote"
)

// VAD backends.
const (
	VADEnergy = "energy"
	VADSilero = "silero"
)

// ExecutionMode selects an optional rewrite of the transcript.
type ExecutionMode struct {
	ID           string `json:"ID" yaml:"ID"`
	Name         string `json:"NAME" yaml:"NAME"`
	LLMModelID   string `json:"LLM_MODEL_ID" yaml:"LLM_MODEL_ID"`
	SystemPrompt string `json:"SYSTEM_PROMPT" yaml:"SYSTEM_PROMPT"`
}

// LLMModel describes a chat endpoint used for rewriting. Its API key lives
// in the credential store under ID.
type LLMModel struct {
	ID        string `json:"ID" yaml:"ID"`
	Name      string `json:"NAME" yaml:"NAME"`
	APIURL    string `json:"API_URL" yaml:"API_URL"`
	ModelName string `json:"MODEL_NAME" yaml:"MODEL_NAME"`
	Local     bool   `json:"LOCAL" yaml:"LOCAL"`
}

// Config holds configurable parameters.
type Config struct {
	Hotkey     string `json:"HOTKEY" yaml:"HOTKEY"`
	CancelKey  string `json:"CANCEL_KEY" yaml:"CANCEL_KEY"`
	PushToTalk bool   `json:"PUSH_TO_TALK" yaml:"PUSH_TO_TALK"`
	DeviceName string `json:"DEVICE_NAME" yaml:"DEVICE_NAME"`

	VADBackend     string  `json:"VAD_BACKEND" yaml:"VAD_BACKEND"`
	VADModelPath   string  `json:"VAD_MODEL_PATH" yaml:"VAD_MODEL_PATH"`
	ONNXRuntimeLib string  `json:"ONNXRUNTIME_LIB" yaml:"ONNXRUNTIME_LIB"`
	VADThreshold   float64 `json:"VAD_THRESHOLD" yaml:"VAD_THRESHOLD"`
	VADWindow      int     `json:"VAD_WINDOW" yaml:"VAD_WINDOW"`

	Engine      string   `json:"ENGINE" yaml:"ENGINE"`
	ModelPath   string   `json:"MODEL_PATH" yaml:"MODEL_PATH"`
	Language    string   `json:"LANGUAGE" yaml:"LANGUAGE"`
	CustomWords []string `json:"CUSTOM_WORDS" yaml:"CUSTOM_WORDS"`
	Threads     int      `json:"THREADS" yaml:"THREADS"`

	// Remote speech API, used when Engine is "remote".
	APIEndpoint         string  `json:"API_ENDPOINT" yaml:"API_ENDPOINT"`
	Token               string  `json:"TOKEN" yaml:"TOKEN"`
	TEXTPath            string  `json:"TEXT_PATH" yaml:"TEXT_PATH"`
	ExtraConfig         string  `json:"ExtraConfig" yaml:"ExtraConfig"`
	SAMPLING_RATE_DEPTH int     `json:"SAMPLING_RATE_DEPTH" yaml:"SAMPLING_RATE_DEPTH"`
	BIT_RATE            int     `json:"BIT_RATE" yaml:"BIT_RATE"`
	CODECS              string  `json:"CODECS" yaml:"CODECS"`
	CONTAINER           string  `json:"CONTAINER" yaml:"CONTAINER"`
	RequestTimeout      int     `json:"REQUEST_TIMEOUT" yaml:"REQUEST_TIMEOUT"`
	MaxRetry            int     `json:"MAX_RETRY" yaml:"MAX_RETRY"`
	RetryBaseDelay      float64 `json:"RETRY_BASE_DELAY" yaml:"RETRY_BASE_DELAY"`
	EnableHTTP2         bool    `json:"ENABLE_HTTP2" yaml:"ENABLE_HTTP2"`
	VerifySSL           bool    `json:"VERIFY_SSL" yaml:"VERIFY_SSL"`

	ActiveMode     string          `json:"ACTIVE_MODE" yaml:"ACTIVE_MODE"`
	Modes          []ExecutionMode `json:"MODES" yaml:"MODES"`
	LLMModels      []LLMModel      `json:"LLM_MODELS" yaml:"LLM_MODELS"`
	KeyringService string          `json:"KEYRING_SERVICE" yaml:"KEYRING_SERVICE"`

	AutoPaste        bool `json:"AUTO_PASTE" yaml:"AUTO_PASTE"`
	RestoreClipboard bool `json:"RESTORE_CLIPBOARD" yaml:"RESTORE_CLIPBOARD"`
	PasteDelayMS     int  `json:"PASTE_DELAY_MS" yaml:"PASTE_DELAY_MS"`

	CacheDir     string `json:"CACHE_DIR" yaml:"CACHE_DIR"`
	KeepCache    bool   `json:"KEEP_CACHE" yaml:"KEEP_CACHE"`
	Notification bool   `json:"NOTIFICATION" yaml:"NOTIFICATION"`
	LogLevel     string `json:"LOG_LEVEL" yaml:"LOG_LEVEL"`
	LogFormat    string `json:"LOG_FORMAT" yaml:"LOG_FORMAT"`
	MetricsAddr  string `json:"METRICS_ADDR" yaml:"METRICS_ADDR"`
	FFMPEG_DEBUG bool   `json:"FFMPEG_DEBUG" yaml:"FFMPEG_DEBUG"`
	RECORD_DEBUG bool   `json:"RECORD_DEBUG" yaml:"RECORD_DEBUG"`
	HOTKEY_DEBUG bool   `json:"HOTKEY_DEBUG" yaml:"HOTKEY_DEBUG"`
	UPLOAD_DEBUG bool   `json:"UPLOAD_DEBUG" yaml:"UPLOAD_DEBUG"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Hotkey:     "ctrl+alt+r",
		CancelKey:  "esc",
		PushToTalk: false,
		DeviceName: "",

		VADBackend:   VADEnergy,
		VADModelPath: "models/silero_vad.onnx",
		VADThreshold: 0.3,
		VADWindow:    512,

		Engine:      EngineWhisper,
		ModelPath:   "models/ggml-small.bin",
		Language:    "fr",
		CustomWords: nil,
		Threads:     0,

		APIEndpoint:         "",
		Token:               "",
		TEXTPath:            "text",
		ExtraConfig:         "",
		SAMPLING_RATE_DEPTH: 16,
		BIT_RATE:            32,
		CODECS:              "pcm",
		CONTAINER:           "wav",
		RequestTimeout:      30,
		MaxRetry:            3,
		RetryBaseDelay:      0.5,
		EnableHTTP2:         true,
		VerifySSL:           true,

		ActiveMode: StandardModeID,
		Modes: []ExecutionMode{
			{ID: StandardModeID, Name: "Standard"},
		},
		LLMModels:      nil,
		KeyringService: "FlemmeApp",

		AutoPaste:        true,
		RestoreClipboard: false,
		PasteDelayMS:     50,

		CacheDir:     "",
		KeepCache:    false,
		Notification: true,
		LogLevel:     "info",
		LogFormat:    "console",
		MetricsAddr:  "",
		HOTKEY_DEBUG: false,
	}
}

// Load loads config from a JSON file, or YAML when the extension is
// .yaml or .yml. Missing keys keep their defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	Normalize(&cfg)
	return cfg, nil
}

// SaveDefault writes a default config to the provided path.
func SaveDefault(path string) error {
	return Save(path, DefaultConfig())
}

// Save writes cfg as JSON, or YAML for .yaml/.yml paths.
func Save(path string, cfg Config) error {
	var (
		b   []byte
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err = yaml.Marshal(cfg)
	default:
		b, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Normalize ensures the standard mode exists and the active mode resolves.
func Normalize(cfg *Config) {
	hasStandard := false
	for _, m := range cfg.Modes {
		if m.ID == StandardModeID {
			hasStandard = true
			break
		}
	}
	if !hasStandard {
		cfg.Modes = append([]ExecutionMode{{ID: StandardModeID, Name: "Standard"}}, cfg.Modes...)
	}
	if cfg.ActiveMode == "" {
		cfg.ActiveMode = StandardModeID
	}
	cfg.Engine = strings.ToLower(strings.TrimSpace(cfg.Engine))
	cfg.VADBackend = strings.ToLower(strings.TrimSpace(cfg.VADBackend))
}

// ActiveExecutionMode returns the active mode, or the standard mode when
// the configured one does not exist.
func (c Config) ActiveExecutionMode() ExecutionMode {
	for _, m := range c.Modes {
		if m.ID == c.ActiveMode {
			return m
		}
	}
	return ExecutionMode{ID: StandardModeID, Name: "Standard"}
}

// LLMModelByID looks up a rewrite model.
func (c Config) LLMModelByID(id string) (LLMModel, bool) {
	for _, m := range c.LLMModels {
		if m.ID == id {
			return m, true
		}
	}
	return LLMModel{}, false
}

// Validate verifies config fields and returns an error if any value is invalid.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Hotkey) == "" {
		return errors.New("invalid HOTKEY: empty")
	}
	switch cfg.Engine {
	case EngineWhisper, EngineRemote:
	default:
		return fmt.Errorf("invalid ENGINE: %s (allowed: whisper, remote)", cfg.Engine)
	}
	if cfg.Engine == EngineRemote && cfg.APIEndpoint == "" {
		return errors.New("invalid API_ENDPOINT: required when ENGINE is remote")
	}
	switch cfg.VADBackend {
	case VADEnergy, VADSilero:
	default:
		return fmt.Errorf("invalid VAD_BACKEND: %s (allowed: energy, silero)", cfg.VADBackend)
	}
	if cfg.VADThreshold < 0 || cfg.VADThreshold > 1 {
		return fmt.Errorf("invalid VAD_THRESHOLD: %v (allowed 0..1)", cfg.VADThreshold)
	}
	switch cfg.VADWindow {
	case 512, 1024, 1536:
	default:
		return fmt.Errorf("invalid VAD_WINDOW: %d (allowed: 512, 1024, 1536)", cfg.VADWindow)
	}
	if cfg.Threads < 0 {
		return fmt.Errorf("invalid THREADS: %d (must be >= 0)", cfg.Threads)
	}

	allowedDepth := map[int]bool{8: true, 16: true, 24: true, 32: true}
	if !allowedDepth[cfg.SAMPLING_RATE_DEPTH] {
		return fmt.Errorf("invalid SAMPLING_RATE_DEPTH: %d (allowed: 8,16,24,32)", cfg.SAMPLING_RATE_DEPTH)
	}
	if cfg.BIT_RATE <= 0 {
		return fmt.Errorf("invalid BIT_RATE: %d (must be > 0)", cfg.BIT_RATE)
	}
	if cfg.MaxRetry < 1 {
		return fmt.Errorf("invalid MAX_RETRY: %d (must be >= 1)", cfg.MaxRetry)
	}

	seen := map[string]bool{}
	for _, m := range cfg.LLMModels {
		if m.ID == "" || m.APIURL == "" {
			return fmt.Errorf("invalid LLM_MODELS entry %q: ID and API_URL are required", m.Name)
		}
		if seen[m.ID] {
			return fmt.Errorf("invalid LLM_MODELS: duplicate ID %s", m.ID)
		}
		seen[m.ID] = true
	}
	modeIDs := map[string]bool{}
	for _, m := range cfg.Modes {
		if m.ID == StandardModeID && m.LLMModelID != "" {
			return errors.New("invalid MODES: the standard mode cannot rewrite")
		}
		if m.LLMModelID != "" && !seen[m.LLMModelID] {
			return fmt.Errorf("invalid MODES entry %s: unknown LLM_MODEL_ID %s", m.ID, m.LLMModelID)
		}
		modeIDs[m.ID] = true
	}
	if !modeIDs[cfg.ActiveMode] {
		return fmt.Errorf("invalid ACTIVE_MODE: %s is not defined in MODES", cfg.ActiveMode)
	}
	return nil
}

// InitCacheDir validates/creates the configured cache directory.
// It mutates cfg.CacheDir to an absolute path or clears it on failure.
func InitCacheDir(cfg *Config) error {
	if cfg.CacheDir == "" {
		return nil
	}
	abs, err := filepath.Abs(cfg.CacheDir)
	if err != nil {
		cfg.CacheDir = ""
		return fmt.Errorf("cache-dir path invalid: %w", err)
	}
	info, err := os.Stat(abs)
	if err == nil {
		if !info.IsDir() {
			cfg.CacheDir = ""
			return fmt.Errorf("cache-dir %s exists but is not a directory", abs)
		}
		cfg.CacheDir = abs
		return nil
	}
	if !os.IsNotExist(err) {
		cfg.CacheDir = ""
		return fmt.Errorf("cannot access cache-dir %s: %w", abs, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		cfg.CacheDir = ""
		return fmt.Errorf("cannot create cache-dir %s: %w", abs, err)
	}
	cfg.CacheDir = abs
	return nil
}

// TempDir returns the directory to use for temporary files.
func TempDir(cfg *Config) string {
	if cfg.CacheDir != "" {
		return cfg.CacheDir
	}
	return os.TempDir()
}

// ContainerExt maps container names to file extensions (lowercase).
func ContainerExt(container string) string {
	c := strings.ToLower(strings.TrimSpace(container))
	if c == "" {
		return "wav"
	}
	return c
}

// DebugComponents lists the log components whose debug switch is on.
func (c Config) DebugComponents() []string {
	var out []string
	if c.RECORD_DEBUG {
		out = append(out, "record")
	}
	if c.HOTKEY_DEBUG {
		out = append(out, "hotkey")
	}
	if c.UPLOAD_DEBUG {
		out = append(out, "asr", "rewrite")
	}
	if c.FFMPEG_DEBUG {
		out = append(out, "ffmpeg")
	}
	return out
}
