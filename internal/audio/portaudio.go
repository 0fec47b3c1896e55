package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/speakerid/voicecapture/internal/permissions"
)

// PortAudioDevice captures from a microphone through PortAudio
type PortAudioDevice struct {
	log zerolog.Logger
}

// NewPortAudio initializes PortAudio. Close must be called to terminate it.
func NewPortAudio(log zerolog.Logger) (*PortAudioDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudioDevice{log: log}, nil
}

func (p *PortAudioDevice) Open(ctx context.Context, cfg StreamConfig) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !permissions.MicrophoneAllowed() {
		return nil, ErrPermissionDenied
	}

	device, err := findInputDevice(cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	// PortAudio exposes no input processing controls
	if cfg.EchoCancellation || cfg.NoiseSuppression {
		p.log.Debug().
			Bool("echo_cancellation", cfg.EchoCancellation).
			Bool("noise_suppression", cfg.NoiseSuppression).
			Msg("Input processing not available through PortAudio, capturing raw input")
	}

	channels, rate := cfg.Channels, cfg.SampleRate
	probe := make([]float32, cfg.FramesPerBuffer*channels)
	if err := portaudio.IsFormatSupported(inputParams(device, channels, rate, cfg.FramesPerBuffer), probe); err != nil {
		channels = min(device.MaxInputChannels, 2)
		rate = int(device.DefaultSampleRate)
		p.log.Info().
			Err(err).
			Str("device", device.Name).
			Int("native_rate", rate).
			Int("native_channels", channels).
			Msg("Requested format unsupported, converting from native format")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buffer := make([]float32, cfg.FramesPerBuffer*channels)
	stream, err := portaudio.OpenStream(inputParams(device, channels, rate, cfg.FramesPerBuffer), buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open audio stream: %w", ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: failed to start audio stream: %w", ErrDeviceUnavailable, err)
	}

	s := &portAudioStream{
		log:    p.log.With().Str("device", device.Name).Logger(),
		stream: stream,
		buffer: buffer,
		conv:   newConverter(channels, rate, cfg.SampleRate),
		frames: make(chan []float32, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.readLoop()

	s.log.Debug().Int("rate", rate).Int("channels", channels).Msg("Audio stream started")
	return s, nil
}

func (p *PortAudioDevice) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, Device{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *PortAudioDevice) Close() error {
	return portaudio.Terminate()
}

func findInputDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: no default input device: %w", ErrDeviceUnavailable, err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to enumerate devices: %w", ErrDeviceUnavailable, err)
	}
	for _, d := range devices {
		if d.Name == deviceID && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: device not found: %s", ErrDeviceUnavailable, deviceID)
}

func inputParams(device *portaudio.DeviceInfo, channels, rate, framesPerBuffer int) portaudio.StreamParameters {
	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(rate),
		FramesPerBuffer: framesPerBuffer,
	}
}

type portAudioStream struct {
	log    zerolog.Logger
	stream *portaudio.Stream
	buffer []float32
	conv   *converter
	frames chan []float32

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *portAudioStream) readLoop() {
	defer close(s.done)
	defer close(s.frames)

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				s.log.Warn().Msg("Input overflowed")
				continue
			}
			s.mu.Lock()
			s.err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
			s.mu.Unlock()
			s.log.Error().Err(err).Msg("Audio stream read failed")
			return
		}

		samples := s.conv.convert(s.buffer)
		if len(samples) == 0 {
			continue
		}

		select {
		case s.frames <- samples:
		case <-s.stop:
			return
		}
	}
}

func (s *portAudioStream) Frames() <-chan []float32 {
	return s.frames
}

func (s *portAudioStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close waits for the read loop to finish its current buffer before stopping
// the PortAudio stream, so Read and Stop never run concurrently.
func (s *portAudioStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done

		if stopErr := s.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		s.log.Debug().Msg("Audio stream closed")
	})
	return err
}
