package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// FlagValues holds parsed flags with explicit set tracking.
type FlagValues struct {
	Hotkey          string
	HotkeySet       bool
	CancelKey       string
	CancelKeySet    bool
	PushToTalk      bool
	PushToTalkSet   bool
	DeviceName      string
	DeviceNameSet   bool
	Engine          string
	EngineSet       bool
	ModelPath       string
	ModelPathSet    bool
	Language        string
	LanguageSet     bool
	CustomWords     []string
	CustomWordsSet  bool
	Threads         int
	ThreadsSet      bool
	VADBackend      string
	VADBackendSet   bool
	VADThreshold    float64
	VADThresholdSet bool
	APIEndpoint     string
	APIEndpointSet  bool
	Token           string
	TokenSet        bool
	TEXTPath        string
	TEXTPathSet     bool
	CODECS          string
	CODECSSet       bool
	CONTAINER       string
	CONTAINERSet    bool
	MaxRetry        int
	MaxRetrySet     bool
	ActiveMode      string
	ActiveModeSet   bool
	AutoPaste       bool
	AutoPasteSet    bool
	CacheDir        string
	CacheDirSet     bool
	KeepCache       bool
	KeepCacheSet    bool
	Notification    bool
	NotificationSet bool
	LogLevel        string
	LogLevelSet     bool
	MetricsAddr     string
	MetricsAddrSet  bool
	FFMPEG_DEBUG    bool
	FFMPEG_DEBUGSet bool
	RECORD_DEBUG    bool
	RECORD_DEBUGSet bool
	HOTKEY_DEBUG    bool
	HOTKEY_DEBUGSet bool
	UPLOAD_DEBUG    bool
	UPLOAD_DEBUGSet bool

	OutputPath    string
	OutputPathSet bool
}

type stringFlag struct {
	target *string
	set    *bool
}

func (s *stringFlag) String() string {
	if s == nil || s.target == nil {
		return ""
	}
	return *s.target
}

func (s *stringFlag) Set(v string) error {
	if s.target != nil {
		*s.target = v
	}
	if s.set != nil {
		*s.set = true
	}
	return nil
}

type listFlag struct {
	target *[]string
	set    *bool
}

func (l *listFlag) String() string {
	if l == nil || l.target == nil {
		return ""
	}
	return strings.Join(*l.target, ",")
}

// Set accepts a comma-separated list; repeated flags accumulate.
func (l *listFlag) Set(v string) error {
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" && l.target != nil {
			*l.target = append(*l.target, item)
		}
	}
	if l.set != nil {
		*l.set = true
	}
	return nil
}

type intFlag struct {
	target *int
	set    *bool
}

func (i *intFlag) String() string {
	if i == nil || i.target == nil {
		return ""
	}
	return strconv.Itoa(*i.target)
}

func (i *intFlag) Set(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	if i.target != nil {
		*i.target = n
	}
	if i.set != nil {
		*i.set = true
	}
	return nil
}

type floatFlag struct {
	target *float64
	set    *bool
}

func (f *floatFlag) String() string {
	if f == nil || f.target == nil {
		return ""
	}
	return fmt.Sprintf("%v", *f.target)
}

func (f *floatFlag) Set(v string) error {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	if f.target != nil {
		*f.target = n
	}
	if f.set != nil {
		*f.set = true
	}
	return nil
}

type boolFlag struct {
	target *bool
	set    *bool
}

func (b *boolFlag) String() string {
	if b == nil || b.target == nil {
		return ""
	}
	return fmt.Sprintf("%v", *b.target)
}

// IsBoolFlag lets "-flag" stand for "-flag=true".
func (b *boolFlag) IsBoolFlag() bool { return true }

func parseBoolExt(v string) (bool, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean: %s", v)
}

func (b *boolFlag) Set(v string) error {
	n, err := parseBoolExt(v)
	if err != nil {
		return err
	}
	if b.target != nil {
		*b.target = n
	}
	if b.set != nil {
		*b.set = true
	}
	return nil
}

// BindFlags registers all flags and returns the populated FlagValues.
func BindFlags(fs *flag.FlagSet) *FlagValues {
	fv := &FlagValues{}

	fs.Var(&stringFlag{&fv.Hotkey, &fv.HotkeySet}, "hotkey", "trigger hotkey (e.g. ctrl+alt+r)")
	fs.Var(&stringFlag{&fv.CancelKey, &fv.CancelKeySet}, "cancel-key", "cancel hotkey, toggle mode only")
	fs.Var(&boolFlag{&fv.PushToTalk, &fv.PushToTalkSet}, "push-to-talk", "record while the hotkey is held (true/false)")
	fs.Var(&stringFlag{&fv.DeviceName, &fv.DeviceNameSet}, "device", "input device name (empty for system default)")

	fs.Var(&stringFlag{&fv.Engine, &fv.EngineSet}, "engine", "speech engine: whisper or remote")
	fs.Var(&stringFlag{&fv.ModelPath, &fv.ModelPathSet}, "model", "whisper model path, or remote model name")
	fs.Var(&stringFlag{&fv.Language, &fv.LanguageSet}, "language", "language code, or auto")
	fs.Var(&listFlag{&fv.CustomWords, &fv.CustomWordsSet}, "words", "comma-separated custom vocabulary")
	fs.Var(&intFlag{&fv.Threads, &fv.ThreadsSet}, "threads", "inference threads (0 = auto)")
	fs.Var(&stringFlag{&fv.VADBackend, &fv.VADBackendSet}, "vad", "voice activity backend: energy or silero")
	fs.Var(&floatFlag{&fv.VADThreshold, &fv.VADThresholdSet}, "vad-threshold", "speech probability threshold (0..1)")

	fs.Var(&stringFlag{&fv.APIEndpoint, &fv.APIEndpointSet}, "api-endpoint", "remote speech API endpoint URL")
	fs.Var(&stringFlag{&fv.Token, &fv.TokenSet}, "token", "remote speech API token")
	fs.Var(&stringFlag{&fv.TEXTPath, &fv.TEXTPathSet}, "text-path", "JSON path to extract text")
	fs.Var(&stringFlag{&fv.CODECS, &fv.CODECSSet}, "codecs", "upload codec (e.g. PCM, OPUS, FLAC)")
	fs.Var(&stringFlag{&fv.CONTAINER, &fv.CONTAINERSet}, "container", "upload container (e.g. WAV, OGG, FLAC)")
	fs.Var(&intFlag{&fv.MaxRetry, &fv.MaxRetrySet}, "max-retry", "max upload attempts")

	fs.Var(&stringFlag{&fv.ActiveMode, &fv.ActiveModeSet}, "mode", "active execution mode id")
	fs.Var(&boolFlag{&fv.AutoPaste, &fv.AutoPasteSet}, "auto-paste", "paste the result instead of only copying (true/false)")

	fs.Var(&stringFlag{&fv.CacheDir, &fv.CacheDirSet}, "cache-dir", "cache directory")
	fs.Var(&boolFlag{&fv.KeepCache, &fv.KeepCacheSet}, "keep-cache", "keep cache files (true/false)")
	fs.Var(&boolFlag{&fv.Notification, &fv.NotificationSet}, "notification", "enable notifications (true/false)")
	fs.Var(&stringFlag{&fv.LogLevel, &fv.LogLevelSet}, "log-level", "log level: debug, info, warn, error")
	fs.Var(&stringFlag{&fv.MetricsAddr, &fv.MetricsAddrSet}, "metrics-addr", "status and metrics listen address (empty disables)")
	fs.Var(&boolFlag{&fv.FFMPEG_DEBUG, &fv.FFMPEG_DEBUGSet}, "ffmpeg-debug", "enable ffmpeg debug output (true/false)")
	fs.Var(&boolFlag{&fv.RECORD_DEBUG, &fv.RECORD_DEBUGSet}, "record-debug", "enable record debug output (true/false)")
	fs.Var(&boolFlag{&fv.HOTKEY_DEBUG, &fv.HOTKEY_DEBUGSet}, "hotkey-debug", "enable hotkey debug output (true/false)")
	fs.Var(&boolFlag{&fv.UPLOAD_DEBUG, &fv.UPLOAD_DEBUGSet}, "upload-debug", "enable upload debug output (true/false)")

	fs.Var(&stringFlag{&fv.OutputPath, &fv.OutputPathSet}, "output", "output txt path for -file mode")

	return fv
}

// ApplyFlags applies present flags to the config.
func ApplyFlags(cfg *Config, fv *FlagValues) {
	if fv.HotkeySet {
		cfg.Hotkey = fv.Hotkey
	}
	if fv.CancelKeySet {
		cfg.CancelKey = fv.CancelKey
	}
	if fv.PushToTalkSet {
		cfg.PushToTalk = fv.PushToTalk
	}
	if fv.DeviceNameSet {
		cfg.DeviceName = fv.DeviceName
	}

	if fv.EngineSet {
		cfg.Engine = strings.ToLower(fv.Engine)
	}
	if fv.ModelPathSet {
		cfg.ModelPath = fv.ModelPath
	}
	if fv.LanguageSet {
		cfg.Language = fv.Language
	}
	if fv.CustomWordsSet {
		cfg.CustomWords = append([]string(nil), fv.CustomWords...)
	}
	if fv.ThreadsSet {
		cfg.Threads = fv.Threads
	}
	if fv.VADBackendSet {
		cfg.VADBackend = strings.ToLower(fv.VADBackend)
	}
	if fv.VADThresholdSet {
		cfg.VADThreshold = fv.VADThreshold
	}

	if fv.APIEndpointSet {
		cfg.APIEndpoint = fv.APIEndpoint
	}
	if fv.TokenSet {
		cfg.Token = fv.Token
	}
	if fv.TEXTPathSet {
		cfg.TEXTPath = fv.TEXTPath
	}
	if fv.CODECSSet {
		cfg.CODECS = fv.CODECS
	}
	if fv.CONTAINERSet {
		cfg.CONTAINER = fv.CONTAINER
	}
	if fv.MaxRetrySet {
		cfg.MaxRetry = fv.MaxRetry
	}

	if fv.ActiveModeSet {
		cfg.ActiveMode = fv.ActiveMode
	}
	if fv.AutoPasteSet {
		cfg.AutoPaste = fv.AutoPaste
	}

	if fv.CacheDirSet {
		cfg.CacheDir = fv.CacheDir
	}
	if fv.KeepCacheSet {
		cfg.KeepCache = fv.KeepCache
	}
	if fv.NotificationSet {
		cfg.Notification = fv.Notification
	}
	if fv.LogLevelSet {
		cfg.LogLevel = fv.LogLevel
	}
	if fv.MetricsAddrSet {
		cfg.MetricsAddr = fv.MetricsAddr
	}
	if fv.FFMPEG_DEBUGSet {
		cfg.FFMPEG_DEBUG = fv.FFMPEG_DEBUG
	}
	if fv.RECORD_DEBUGSet {
		cfg.RECORD_DEBUG = fv.RECORD_DEBUG
	}
	if fv.HOTKEY_DEBUGSet {
		cfg.HOTKEY_DEBUG = fv.HOTKEY_DEBUG
	}
	if fv.UPLOAD_DEBUGSet {
		cfg.UPLOAD_DEBUG = fv.UPLOAD_DEBUG
	}
}

// AnySet reports whether any config flag was explicitly set by the user.
func (fv *FlagValues) AnySet() bool {
	return fv.HotkeySet ||
		fv.CancelKeySet ||
		fv.PushToTalkSet ||
		fv.DeviceNameSet ||
		fv.EngineSet ||
		fv.ModelPathSet ||
		fv.LanguageSet ||
		fv.CustomWordsSet ||
		fv.ThreadsSet ||
		fv.VADBackendSet ||
		fv.VADThresholdSet ||
		fv.APIEndpointSet ||
		fv.TokenSet ||
		fv.TEXTPathSet ||
		fv.CODECSSet ||
		fv.CONTAINERSet ||
		fv.MaxRetrySet ||
		fv.ActiveModeSet ||
		fv.AutoPasteSet ||
		fv.CacheDirSet ||
		fv.KeepCacheSet ||
		fv.NotificationSet ||
		fv.LogLevelSet ||
		fv.MetricsAddrSet ||
		fv.FFMPEG_DEBUGSet ||
		fv.RECORD_DEBUGSet ||
		fv.HOTKEY_DEBUGSet ||
		fv.UPLOAD_DEBUGSet ||
		fv.OutputPathSet
}
