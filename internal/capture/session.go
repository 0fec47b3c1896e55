package capture

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/speakerid/voicecapture/internal/audio"
)

// Encoder turns accumulated samples into a container
type Encoder interface {
	Append(samples []float32) error
	Finalize() ([]byte, error)
}

// EncoderFactory creates a fresh single-use encoder for one recording
type EncoderFactory func(format audio.Format) (Encoder, error)

// Clock supplies the current time for elapsed-time tracking
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// session owns everything acquired for one recording attempt: the stream, the
// buffer and the periodic tasks. It is only ever driven by its Controller.
type session struct {
	id      uuid.UUID
	log     zerolog.Logger
	stream  audio.Stream
	buffer  *SampleBuffer
	monitor *Monitor
	started time.Time
	elapsed atomic.Int64

	monitorTask *periodic
	elapsedTask *periodic
	accumDone   chan struct{}

	streamOnce sync.Once
}

func newSession(id uuid.UUID, log zerolog.Logger, stream audio.Stream, opts timing) *session {
	buffer := NewSampleBuffer(audio.SpeechFormat.SampleRate * 30)
	return &session{
		id:        id,
		log:       log,
		stream:    stream,
		buffer:    buffer,
		monitor:   NewMonitor(buffer, opts.monitorWindow, opts.monitorGain),
		accumDone: make(chan struct{}),
	}
}

type timing struct {
	monitorInterval time.Duration
	elapsedInterval time.Duration
	monitorWindow   int
	monitorGain     float64
}

// begin starts accumulation and both periodic tasks. onEnded runs on the
// accumulation goroutine once the stream's frame channel closes.
func (s *session) begin(clock Clock, opts timing, onEnded func(*session)) {
	s.started = clock.Now()

	go func() {
		defer close(s.accumDone)
		for frame := range s.stream.Frames() {
			s.buffer.Append(frame)
		}
		onEnded(s)
	}()

	s.monitorTask = startPeriodic(opts.monitorInterval, s.monitor.Sample)
	s.elapsedTask = startPeriodic(opts.elapsedInterval, func() bool {
		s.tick(clock.Now())
		return true
	})
}

// tick is only called from the elapsed task, so the load/store pair is safe.
func (s *session) tick(now time.Time) {
	secs := int64(now.Sub(s.started) / time.Second)
	if secs > s.elapsed.Load() {
		s.elapsed.Store(secs)
	}
}

func (s *session) haltTasks() {
	s.monitorTask.cancel()
	s.elapsedTask.cancel()
}

func (s *session) closeStream() {
	s.streamOnce.Do(func() {
		if err := s.stream.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Error closing input stream")
		}
	})
}

func (s *session) finalize(newEncoder EncoderFactory, format audio.Format) (Artifact, error) {
	enc, err := newEncoder(format)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrEncodingFailed, err)
	}

	samples, err := s.buffer.WriteTo(enc)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrEncodingFailed, err)
	}

	data, err := enc.Finalize()
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrEncodingFailed, err)
	}

	return newArtifact(s.id, data, format, samples), nil
}
