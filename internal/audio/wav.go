package audio

import (
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when a file is not a PCM WAV file.
var ErrInvalidWAV = errors.New("audio: invalid wav file")

// WriteWAV writes mono float samples as 16-bit PCM.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav failed: %w", err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		data[i] = int(v * 32767)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return fmt.Errorf("wav write failed: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("wav close failed: %w", err)
	}
	return f.Close()
}

// ReadWAV decodes a PCM WAV file into interleaved float samples in [-1, 1].
func ReadWAV(path string) (samples []float32, sampleRate, channels int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("wav decode failed: %w", err)
	}
	depth := int(dec.BitDepth)
	if depth <= 0 {
		depth = 16
	}
	scale := float32(int64(1) << (depth - 1))
	samples = make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	return samples, int(dec.SampleRate), int(dec.NumChans), nil
}

// LoadMono reads a WAV file and returns it downmixed and resampled to
// SampleRate, without conditioning.
func LoadMono(path string) (Buffer, error) {
	samples, rate, channels, err := ReadWAV(path)
	if err != nil {
		return nil, err
	}
	mono := Downmix(samples, channels)
	if rate == SampleRate {
		return mono, nil
	}
	r, err := NewResampler(rate, SampleRate)
	if err != nil {
		return Decimate(mono, rate, SampleRate), nil
	}
	return r.Resample(mono), nil
}
