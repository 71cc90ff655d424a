package ffmpeg

import (
	"errors"
	"strings"
	"testing"
)

func TestConvertArgs(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{
			"opus with bitrate",
			Options{Codec: "OPUS", Channels: 1, SampleRate: 16000, BitRate: 32, Depth: 16},
			"-y -i in.wav -ac 1 -ar 16000 -c:a libopus -b:a 32k -sample_fmt s16 out.ogg",
		},
		{
			"pcm skips bitrate and sample format",
			Options{Codec: "pcm"},
			"-y -i in.wav -ac 1 -ar 16000 -c:a pcm_s16le out.ogg",
		},
		{
			"flac keeps sample format",
			Options{Codec: "flac", Depth: 24},
			"-y -i in.wav -ac 1 -ar 16000 -c:a flac -sample_fmt s24 out.ogg",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := convertArgs(tt.opts, "in.wav", "out.ogg")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := strings.Join(args, " "); got != tt.want {
				t.Fatalf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestConvertArgsUnsupportedCodec(t *testing.T) {
	if _, err := convertArgs(Options{Codec: "betamax"}, "a", "b"); !errors.Is(err, ErrUnsupportedCodec) {
		t.Fatalf("expected ErrUnsupportedCodec, got %v", err)
	}
}
