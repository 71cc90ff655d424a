// Package record captures microphone audio on a dedicated worker loop and
// returns it as a conditioned 16 kHz mono buffer.
package record

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"flemme/internal/audio"
	"flemme/internal/logging"
	"flemme/internal/worker"
)

var (
	ErrDeviceUnavailable = errors.New("record: input device unavailable")
	ErrNoDevicesFound    = errors.New("record: no input devices found")
	ErrNotRecording      = errors.New("record: not recording")
	ErrAlreadyRecording  = errors.New("record: already recording")
)

// Device describes an input device.
type Device struct {
	Name      string
	IsDefault bool
}

// Backend opens input devices. PortAudio is the production backend.
type Backend interface {
	Devices() ([]Device, error)
	// Open starts capture on the named device (empty for the default) at its
	// native format. sink receives interleaved frames from the device thread.
	Open(name string, sink func(frames []float32, channels int)) (Stream, error)
}

// Stream is an open input stream.
type Stream interface {
	SampleRate() int
	Channels() int
	// Close stops capture and releases the device.
	Close() error
}

// Capture is the raw result of a recording before conditioning.
type Capture struct {
	Samples    []float32
	SampleRate int
	Resampler  audio.Resampler
}

// session is one recording in progress.
type session struct {
	stream    Stream
	rate      int
	resampler audio.Resampler
	started   time.Time

	mu      sync.Mutex
	samples []float32
	scratch []float32
}

// append runs on the device thread.
func (s *session) append(frames []float32, channels int) {
	s.scratch = audio.AppendDownmix(s.scratch[:0], frames, channels)
	s.mu.Lock()
	s.samples = append(s.samples, s.scratch...)
	s.mu.Unlock()
}

func (s *session) take() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.samples
	s.samples = nil
	return out
}

type recorderState struct {
	backend Backend
	session *session
	log     zerolog.Logger
}

// Recorder owns the input device. All device operations run on its loop.
type Recorder struct {
	loop      *worker.Loop[recorderState]
	recording atomic.Bool
	log       zerolog.Logger
}

// New starts the recorder loop.
func New(backend Backend) *Recorder {
	log := logging.WithComponent("record")
	return &Recorder{
		loop: worker.Start(recorderState{backend: backend, log: log}, 4),
		log:  log,
	}
}

// Start opens deviceName, or the default input when empty, and begins
// accumulating samples.
func (r *Recorder) Start(ctx context.Context, deviceName string) error {
	startErr, err := worker.Call(ctx, r.loop, func(st *recorderState) error {
		if st.session != nil {
			return ErrAlreadyRecording
		}
		s := &session{started: time.Now()}
		stream, err := st.backend.Open(deviceName, s.append)
		if err != nil {
			if errors.Is(err, ErrDeviceUnavailable) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		s.stream = stream
		s.rate = stream.SampleRate()
		if s.rate != audio.SampleRate {
			rs, err := audio.NewResampler(s.rate, audio.SampleRate)
			if err != nil {
				st.log.Warn().Err(err).Int("rate", s.rate).Msg("resampler unavailable, falling back to decimation")
			} else {
				s.resampler = rs
			}
		}
		st.session = s
		r.recording.Store(true)
		st.log.Debug().
			Str("device", deviceName).
			Int("rate", s.rate).
			Int("channels", stream.Channels()).
			Msg("recording started")
		return nil
	})
	if err != nil {
		return err
	}
	return startErr
}

// Stop releases the device and returns the recording conditioned and
// resampled to audio.SampleRate. Conditioning runs on the caller's goroutine.
func (r *Recorder) Stop(ctx context.Context) (audio.Buffer, error) {
	type result struct {
		capture Capture
		err     error
	}
	res, err := worker.Call(ctx, r.loop, func(st *recorderState) result {
		s := st.session
		if s == nil {
			return result{err: ErrNotRecording}
		}
		st.session = nil
		r.recording.Store(false)
		if err := s.stream.Close(); err != nil {
			st.log.Warn().Err(err).Msg("closing input stream")
		}
		samples := s.take()
		st.log.Debug().
			Int("samples", len(samples)).
			Dur("elapsed", time.Since(s.started)).
			Msg("recording stopped")
		return result{capture: Capture{Samples: samples, SampleRate: s.rate, Resampler: s.resampler}}
	})
	if err != nil {
		return nil, err
	}
	if res.err != nil {
		return nil, res.err
	}
	return Finish(res.capture), nil
}

// Finish conditions a raw capture and converts it to audio.SampleRate.
func Finish(c Capture) audio.Buffer {
	audio.Condition(c.Samples)
	if c.SampleRate == audio.SampleRate || c.SampleRate == 0 {
		return audio.Buffer(c.Samples)
	}
	if c.Resampler != nil {
		return audio.Buffer(c.Resampler.Resample(c.Samples))
	}
	return audio.Buffer(audio.Decimate(c.Samples, c.SampleRate, audio.SampleRate))
}

// Cancel releases the device and discards the recording.
func (r *Recorder) Cancel(ctx context.Context) error {
	cancelErr, err := worker.Call(ctx, r.loop, func(st *recorderState) error {
		s := st.session
		if s == nil {
			return ErrNotRecording
		}
		st.session = nil
		r.recording.Store(false)
		if err := s.stream.Close(); err != nil {
			st.log.Warn().Err(err).Msg("closing input stream")
		}
		s.take()
		st.log.Debug().Msg("recording cancelled")
		return nil
	})
	if err != nil {
		return err
	}
	return cancelErr
}

// IsRecording reports whether a recording is in progress without waiting
// on the loop.
func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}

// ListDevices returns the available input devices.
func (r *Recorder) ListDevices(ctx context.Context) ([]Device, error) {
	type result struct {
		devices []Device
		err     error
	}
	res, err := worker.Call(ctx, r.loop, func(st *recorderState) result {
		devices, err := st.backend.Devices()
		if err != nil {
			return result{err: err}
		}
		if len(devices) == 0 {
			return result{err: ErrNoDevicesFound}
		}
		return result{devices: devices}
	})
	if err != nil {
		return nil, err
	}
	return res.devices, res.err
}

// Close releases any open device and stops the loop.
func (r *Recorder) Close() {
	r.loop.Close(func(st *recorderState) {
		if st.session != nil {
			_ = st.session.stream.Close()
			st.session = nil
			r.recording.Store(false)
		}
	})
}
