package config

import (
	"os"
	"strings"
)

// Environment variables that override the config file.
const (
	EnvModelPath = "FLEMME_MODEL_PATH"
	EnvLanguage  = "FLEMME_LANGUAGE"
	EnvLogLevel  = "FLEMME_LOG_LEVEL"
	EnvCacheDir  = "FLEMME_CACHE_DIR"
)

// ApplyEnv applies non-empty environment overrides to cfg.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvModelPath)); v != "" {
		cfg.ModelPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLanguage)); v != "" {
		cfg.Language = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheDir)); v != "" {
		cfg.CacheDir = v
	}
}
