// Package ffmpeg shells out to the ffmpeg binary to decode input files and to
// transcode recordings for upload.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"flemme/internal/logging"
)

// ErrUnsupportedCodec is returned for codec names ffmpeg is not mapped for.
var ErrUnsupportedCodec = errors.New("ffmpeg: unsupported codec")

// Options describe the output encoding.
type Options struct {
	Codec      string
	Channels   int
	SampleRate int
	BitRate    int // kbps
	Depth      int
}

// Binary is the ffmpeg executable looked up on PATH.
var Binary = "ffmpeg"

// Convert transcodes inPath into outPath with the given encoding.
func Convert(ctx context.Context, opts Options, inPath, outPath string) error {
	args, err := convertArgs(opts, inPath, outPath)
	if err != nil {
		return err
	}
	return run(ctx, args)
}

// Decode converts any input ffmpeg understands into a 16-bit mono WAV file at
// sampleRate.
func Decode(ctx context.Context, inPath, outPath string, sampleRate int) error {
	args := []string{"-y", "-i", inPath, "-vn", "-ac", "1", "-ar", strconv.Itoa(sampleRate), "-c:a", "pcm_s16le", outPath}
	return run(ctx, args)
}

func convertArgs(opts Options, inPath, outPath string) ([]string, error) {
	channels := opts.Channels
	if channels <= 0 {
		channels = 1
	}
	sr := opts.SampleRate
	if sr <= 0 {
		sr = 16000
	}
	bitrate := opts.BitRate
	if bitrate <= 0 {
		bitrate = 128
	}
	depth := opts.Depth
	if depth == 0 {
		depth = 16
	}

	ffCodec, codecHasBitrate := codecFor(opts.Codec)
	if ffCodec == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, opts.Codec)
	}

	args := []string{"-y", "-i", inPath, "-ac", strconv.Itoa(channels), "-ar", strconv.Itoa(sr), "-c:a", ffCodec}
	if !strings.HasPrefix(ffCodec, "pcm_") {
		if codecHasBitrate {
			args = append(args, "-b:a", fmt.Sprintf("%dk", bitrate))
		}
		switch depth {
		case 8:
			args = append(args, "-sample_fmt", "u8")
		case 16:
			args = append(args, "-sample_fmt", "s16")
		case 24:
			args = append(args, "-sample_fmt", "s24")
		case 32:
			args = append(args, "-sample_fmt", "s32")
		}
	}
	return append(args, outPath), nil
}

func run(ctx context.Context, args []string) error {
	log := logging.WithComponent("ffmpeg")
	log.Debug().Msgf("executing: %s %s", Binary, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w\n%s", err, stderr.String())
	}
	return nil
}

func codecFor(key string) (string, bool) {
	k := strings.ToLower(key)
	switch k {
	case "opus", "libopus":
		return "libopus", true
	case "wavpack":
		return "wavpack", false
	case "aac":
		return "aac", true
	case "ac3":
		return "ac3", true
	case "eac3":
		return "eac3", true
	case "mp3":
		return "libmp3lame", true
	case "mp2":
		return "mp2", true
	case "flac":
		return "flac", false
	case "alac":
		return "alac", false
	case "pcm", "wav":
		return "pcm_s16le", false
	case "vorbis", "libvorbis", "vorb":
		return "libvorbis", true
	case "adpcm":
		return "adpcm_ms", false
	case "amr":
		return "libopencore_amrnb", true
	case "pcm_f32le", "pcm_s16le", "pcm_s24le", "pcm_s32le", "pcm_s8":
		return k, false
	default:
		return "", false
	}
}
