// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // console, json
	TimeFormat string
	Output     io.Writer

	// Components listed here log at debug level regardless of Level.
	DebugComponents []string
}

// DefaultConfig returns the defaults for an interactive desktop process.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		TimeFormat: time.RFC3339,
	}
}

var (
	mu          sync.RWMutex
	debugByName = map[string]bool{}
)

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var output io.Writer = os.Stdout
	if cfg.Output != nil {
		output = cfg.Output
	}
	if strings.EqualFold(cfg.Format, "console") {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.Kitchen,
		}
	}

	// Per-logger levels, not the global one, so component debug switches
	// can lower a single subsystem below the configured level.
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	log.Logger = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	mu.Lock()
	debugByName = map[string]bool{}
	for _, c := range cfg.DebugComponents {
		debugByName[c] = true
	}
	mu.Unlock()
}

// Logger returns the process logger.
func Logger() zerolog.Logger {
	return log.Logger
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	l := log.With().
		Str("component", component).
		Logger()
	mu.RLock()
	debug := debugByName[component]
	mu.RUnlock()
	if debug {
		l = l.Level(zerolog.DebugLevel)
	}
	return l
}

// WithSession returns a component logger carrying a dictation session id.
func WithSession(component, sessionID string) zerolog.Logger {
	l := WithComponent(component)
	return l.With().Str("session", sessionID).Logger()
}
