package config

import (
	"sync"

	"flemme/internal/logging"
)

// Store hands out settings snapshots. With a file path it re-reads the
// file on every Snapshot so edits apply to the next dictation; a file that
// fails to load or validate leaves the last good snapshot in place.
type Store struct {
	path     string
	override func(*Config)

	mu   sync.Mutex
	last Config
}

// NewStore returns a store seeded with initial. override, when non-nil, is
// applied to every reloaded snapshot (environment and flags).
func NewStore(path string, initial Config, override func(*Config)) *Store {
	return &Store{path: path, override: override, last: initial}
}

// Snapshot returns the current settings by value.
func (s *Store) Snapshot() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return s.last
	}
	cfg, err := Load(s.path)
	if err == nil {
		if s.override != nil {
			s.override(&cfg)
		}
		err = Validate(&cfg)
	}
	if err != nil {
		log := logging.WithComponent("config")
		log.Warn().Err(err).Str("path", s.path).Msg("settings reload failed; keeping previous values")
		return s.last
	}
	// Process-level settings are fixed at startup.
	cfg.CacheDir = s.last.CacheDir
	cfg.MetricsAddr = s.last.MetricsAddr
	s.last = cfg
	return cfg
}
