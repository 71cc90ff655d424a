package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"flemme/internal/app"
	"flemme/internal/config"
	"flemme/internal/credentials"
	"flemme/internal/logging"
	"flemme/internal/pipeline"
	"flemme/internal/record"
)

const defaultConfigPath = "config.json"

func usage() {
	programName := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, `Usage: %s [options]

Hold or toggle a hotkey to dictate; the transcript is pasted at the cursor.

Options:
[Config]
  -config <string>
        config file (JSON, or YAML for .yaml/.yml). Defaults to ./config.json;
        when it is missing and no flag is given, a default one is written and
        the program exits.
  -file <string>
        transcribe an existing audio file instead of recording
  -output <string>
        output .txt path for -file (default: <input name>.txt)

[Commands]
  -list-devices
        print input devices and exit
  -set-key <model-id>
        read an API key from stdin and store it in the OS keyring
  -delete-key <model-id>
        remove a stored API key

[Trigger]
  -hotkey, -cancel-key, -push-to-talk, -device

[Recognition]
  -engine (whisper|remote), -model, -language, -words, -threads,
  -vad (energy|silero), -vad-threshold

[Remote engine]
  -api-endpoint, -token, -text-path, -codecs, -container, -max-retry

[Output]
  -mode, -auto-paste, -notification, -cache-dir, -keep-cache

[Diagnostics]
  -log-level, -metrics-addr, -record-debug, -hotkey-debug, -upload-debug,
  -ffmpeg-debug

Environment (also read from .env): %s, %s, %s, %s
`, programName, config.EnvModelPath, config.EnvLanguage, config.EnvLogLevel, config.EnvCacheDir)
}

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	var (
		configPath  string
		filePath    string
		listDevices bool
		setKey      string
		deleteKey   string
	)
	flag.Usage = usage
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.StringVar(&filePath, "file", "", "path to existing audio file")
	flag.BoolVar(&listDevices, "list-devices", false, "list input devices")
	flag.StringVar(&setKey, "set-key", "", "store an API key for an LLM model id")
	flag.StringVar(&deleteKey, "delete-key", "", "delete the API key of an LLM model id")
	fv := config.BindFlags(flag.CommandLine)
	flag.Parse()

	command := listDevices || setKey != "" || deleteKey != "" || filePath != ""

	// - -config given: load it, fail on error.
	// - ./config.json present: load it, fail on error.
	// - neither, and no flags: write a default config.json and exit.
	// - otherwise defaults overridden by flags.
	cfg := config.DefaultConfig()
	if configPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			configPath = defaultConfigPath
		} else if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "failed to stat %s: %v\n", defaultConfigPath, err)
			return 1
		} else if !fv.AnySet() && !command {
			if err := config.SaveDefault(defaultConfigPath); err != nil {
				fmt.Fprintf(os.Stderr, "failed to write default config: %v\n", err)
				return 1
			}
			fmt.Printf("default config created at %s. Please edit it and re-run.\n", defaultConfigPath)
			return 0
		}
	}
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config '%s': %v\n", configPath, err)
			return 1
		}
		cfg = loaded
	}

	override := func(c *config.Config) {
		config.ApplyEnv(c)
		config.ApplyFlags(c, fv)
	}
	override(&cfg)
	if err := config.Validate(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 1
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.Format = cfg.LogFormat
	logCfg.Output = os.Stderr
	logCfg.DebugComponents = cfg.DebugComponents()
	logging.Init(logCfg)
	log := logging.WithComponent("main")

	if err := config.InitCacheDir(&cfg); err != nil {
		log.Warn().Err(err).Msg("cache dir unusable; using the system temp dir")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keys := credentials.Keyring{Service: cfg.KeyringService}
	switch {
	case listDevices:
		if err := app.ListDevices(ctx, os.Stdout, record.PortAudio{}); err != nil {
			log.Error().Err(err).Msg("list devices failed")
			return 1
		}
		return 0
	case setKey != "":
		fmt.Fprintf(os.Stderr, "API key for %s: ", setKey)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Error().Err(err).Msg("read API key failed")
			return 1
		}
		if err := app.SetKey(cfg, keys, setKey, strings.TrimSpace(line)); err != nil {
			log.Error().Err(err).Msg("store API key failed")
			return 1
		}
		log.Info().Str("model", setKey).Msg("API key stored")
		return 0
	case deleteKey != "":
		if err := app.DeleteKey(keys, deleteKey); err != nil {
			log.Error().Err(err).Msg("delete API key failed")
			return 1
		}
		log.Info().Str("model", deleteKey).Msg("API key deleted")
		return 0
	}

	store := config.NewStore(configPath, cfg, override)
	a, err := app.New(cfg, store)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer a.Close()

	if filePath != "" {
		if err := a.RunFileMode(ctx, filePath, fv.OutputPath); err != nil {
			log.Error().Err(err).Str("file", filePath).Msg("file transcription failed")
			if errors.Is(err, pipeline.ErrNoSpeech) {
				return 2
			}
			return 3
		}
		return 0
	}

	if err := a.RunRecordMode(ctx); err != nil {
		log.Error().Err(err).Msg("record mode failed")
		return 1
	}
	return 0
}
