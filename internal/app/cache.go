package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"flemme/internal/audio"
	"flemme/internal/logging"
	"flemme/internal/pipeline"
)

// cacheRecord is the JSON written next to each cached recording.
type cacheRecord struct {
	Session     string  `json:"session"`
	Started     string  `json:"started"`
	Mode        string  `json:"mode"`
	DurationSec float64 `json:"duration_sec"`
	SpeechSec   float64 `json:"speech_sec"`
	Raw         string  `json:"raw"`
	Text        string  `json:"text"`
	Rewritten   bool    `json:"rewritten"`
}

// cacheObserver keeps the conditioned recording and its result when
// KEEP_CACHE is on and CACHE_DIR is set.
type cacheObserver struct {
	settings pipeline.SettingsSource
	now      func() time.Time
	log      zerolog.Logger
}

func newCacheObserver(settings pipeline.SettingsSource) *cacheObserver {
	return &cacheObserver{settings: settings, now: time.Now, log: logging.WithComponent("cache")}
}

func (c *cacheObserver) Observe(r pipeline.Result) {
	cfg := c.settings.Snapshot()
	if !cfg.KeepCache || cfg.CacheDir == "" {
		return
	}
	timestamp := c.now().Format("2006-01-02-15.04.05")
	base := filepath.Join(cfg.CacheDir, fmt.Sprintf("audio-%s", timestamp))

	if len(r.Audio) > 0 {
		if err := audio.WriteWAV(base+".wav", r.Audio, audio.SampleRate); err != nil {
			c.log.Warn().Err(err).Str("path", base+".wav").Msg("failed to write wav")
		}
	}

	rec := cacheRecord{
		Session:     r.SessionID,
		Started:     r.Started.Format(time.RFC3339),
		Mode:        r.Mode,
		DurationSec: r.Audio.Duration().Seconds(),
		SpeechSec:   float64(r.Speech) / audio.SampleRate,
		Raw:         r.Raw,
		Text:        r.Text,
		Rewritten:   r.Rewritten,
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(base+".json", b, 0644); err != nil {
		c.log.Warn().Err(err).Str("path", base+".json").Msg("failed to write json")
	}
}
