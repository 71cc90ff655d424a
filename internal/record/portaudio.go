package record

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// maxChannels bounds the channel count requested from a device.
const maxChannels = 8

// PortAudio is the PortAudio capture backend. PortAudio is initialized for
// the lifetime of each stream and for each device query.
type PortAudio struct{}

// Devices lists input-capable devices.
func (PortAudio) Devices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w", err)
	}
	defer portaudio.Terminate()

	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()
	var out []Device
	for _, d := range all {
		if d.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, Device{
			Name:      d.Name,
			IsDefault: def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}

// Open implements Backend.
func (PortAudio) Open(name string, sink func(frames []float32, channels int)) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w", err)
	}
	dev, err := findInput(name)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	params := portaudio.HighLatencyParameters(dev, nil)
	channels := dev.MaxInputChannels
	if channels > maxChannels {
		channels = maxChannels
	}
	params.Input.Channels = channels
	params.SampleRate = dev.DefaultSampleRate

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		sink(in, channels)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: open stream failed: %v", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: start stream failed: %v", ErrDeviceUnavailable, err)
	}
	return &paStream{
		stream:   stream,
		rate:     int(dev.DefaultSampleRate),
		channels: channels,
	}, nil
}

func findInput(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil || dev == nil {
			return nil, fmt.Errorf("%w: no default input device", ErrDeviceUnavailable)
		}
		return dev, nil
	}
	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	for _, d := range all {
		if d.MaxInputChannels > 0 && d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: device %q not found", ErrDeviceUnavailable, name)
}

type paStream struct {
	once     sync.Once
	stream   *portaudio.Stream
	rate     int
	channels int
}

func (s *paStream) SampleRate() int { return s.rate }
func (s *paStream) Channels() int   { return s.channels }

func (s *paStream) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.stream.Stop()
		err = s.stream.Close()
		portaudio.Terminate()
	})
	return err
}
