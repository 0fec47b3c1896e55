package audio

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// FileDevice replays a WAV file as if it were a microphone. Audio is converted
// to the requested rate and mono. After the file has played out the stream
// stays open and silent until closed; Drained reports that point.
type FileDevice struct {
	fs       afero.Fs
	path     string
	realtime bool
	log      zerolog.Logger

	mu      sync.Mutex
	drained chan struct{}
}

// NewFileDevice creates a device reading path from fs. With realtime set,
// frames are paced at the stream's sample rate instead of delivered at once.
func NewFileDevice(fs afero.Fs, path string, realtime bool, log zerolog.Logger) *FileDevice {
	return &FileDevice{
		fs:       fs,
		path:     path,
		realtime: realtime,
		log:      log.With().Str("input_file", path).Logger(),
		drained:  make(chan struct{}),
	}
}

func (d *FileDevice) Open(ctx context.Context, cfg StreamConfig) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples, channels, rate, err := d.load()
	if err != nil {
		return nil, err
	}

	frameLen := cfg.FramesPerBuffer * channels
	if frameLen <= 0 {
		return nil, fmt.Errorf("%w: invalid frames per buffer: %d", ErrDeviceUnavailable, cfg.FramesPerBuffer)
	}

	drained := make(chan struct{})
	d.mu.Lock()
	d.drained = drained
	d.mu.Unlock()

	s := &fileStream{
		frames:  make(chan []float32, 64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		drained: drained,
	}

	var interval time.Duration
	if d.realtime {
		interval = time.Duration(cfg.FramesPerBuffer) * time.Second / time.Duration(rate)
	}
	go s.play(samples, frameLen, newConverter(channels, rate, cfg.SampleRate), interval)

	d.log.Debug().Int("rate", rate).Int("channels", channels).Int("samples", len(samples)).Msg("Replaying audio file")
	return s, nil
}

func (d *FileDevice) load() ([]float32, int, int, error) {
	f, err := d.fs.Open(d.path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("%w: not a valid WAV file: %s", ErrDeviceUnavailable, d.path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: failed to decode %s: %w", ErrDeviceUnavailable, d.path, err)
	}

	scale := float32(int(1) << (int(dec.BitDepth) - 1))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	return samples, int(dec.NumChans), int(dec.SampleRate), nil
}

// Drained is closed once the most recently opened stream has delivered the
// whole file.
func (d *FileDevice) Drained() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drained
}

func (d *FileDevice) ListDevices() ([]Device, error) {
	return []Device{{ID: d.path, Name: filepath.Base(d.path), Default: true}}, nil
}

func (d *FileDevice) Close() error {
	return nil
}

type fileStream struct {
	frames    chan []float32
	stop      chan struct{}
	done      chan struct{}
	drained   chan struct{}
	closeOnce sync.Once
}

func (s *fileStream) play(samples []float32, frameLen int, conv *converter, interval time.Duration) {
	defer close(s.done)
	defer close(s.frames)

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for start := 0; start < len(samples); start += frameLen {
		end := min(start+frameLen, len(samples))
		if tick != nil {
			select {
			case <-tick:
			case <-s.stop:
				return
			}
		}

		out := conv.convert(samples[start:end])
		if len(out) == 0 {
			continue
		}
		select {
		case s.frames <- out:
		case <-s.stop:
			return
		}
	}

	close(s.drained)
	<-s.stop
}

func (s *fileStream) Frames() <-chan []float32 {
	return s.frames
}

func (s *fileStream) Err() error {
	return nil
}

func (s *fileStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
	return nil
}
