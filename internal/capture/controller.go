package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/speakerid/voicecapture/internal/audio"
)

const (
	DefaultMonitorInterval = 16 * time.Millisecond
	DefaultElapsedInterval = time.Second
)

// StatusUpdater is an interface for reflecting capture state (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetRecording()
	SetProcessing()
	SetError()
}

type Config struct {
	Device     audio.InputDevice
	Stream     audio.StreamConfig
	NewEncoder EncoderFactory // defaults to audio.NewWAVEncoder
	Sink       Sink
	Status     StatusUpdater // Optional - can be nil
	Logger     zerolog.Logger
	Clock      Clock // defaults to the system clock

	MonitorInterval time.Duration
	MonitorWindow   int
	MonitorGain     float64
	ElapsedInterval time.Duration
}

// Status is a consistent view of the controller for display
type Status struct {
	State     State
	Reason    error
	Elapsed   int
	Level     float64
	SessionID string
}

// Controller runs at most one capture session at a time and hands each
// finished recording to its Sink exactly once.
type Controller struct {
	device     audio.InputDevice
	stream     audio.StreamConfig
	format     audio.Format
	newEncoder EncoderFactory
	sink       Sink
	status     StatusUpdater
	log        zerolog.Logger
	clock      Clock
	timing     timing

	// owning context; cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	reason  error
	session *session
	closed  bool
}

func New(cfg Config) *Controller {
	stream := cfg.Stream
	if stream.FramesPerBuffer <= 0 {
		stream.FramesPerBuffer = audio.DefaultStreamConfig().FramesPerBuffer
	}
	// Recordings are always mono 16 kHz
	stream.SampleRate = audio.SpeechFormat.SampleRate
	stream.Channels = audio.SpeechFormat.Channels

	newEncoder := cfg.NewEncoder
	if newEncoder == nil {
		newEncoder = func(format audio.Format) (Encoder, error) {
			return audio.NewWAVEncoder(format)
		}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}

	t := timing{
		monitorInterval: cfg.MonitorInterval,
		elapsedInterval: cfg.ElapsedInterval,
		monitorWindow:   cfg.MonitorWindow,
		monitorGain:     cfg.MonitorGain,
	}
	if t.monitorInterval <= 0 {
		t.monitorInterval = DefaultMonitorInterval
	}
	if t.elapsedInterval <= 0 {
		t.elapsedInterval = DefaultElapsedInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		device:     cfg.Device,
		stream:     stream,
		format:     audio.SpeechFormat,
		newEncoder: newEncoder,
		sink:       cfg.Sink,
		status:     cfg.Status,
		log:        cfg.Logger,
		clock:      clock,
		timing:     t,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start acquires the input device and begins recording. Acquisition failures
// leave the controller Failed; nothing is retried.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.busy() {
		state := c.state
		c.mu.Unlock()
		c.log.Debug().Stringer("state", state).Msg("Start ignored, capture in progress")
		return ErrAlreadyRecording
	}
	c.state = Acquiring
	c.reason = nil
	streamCfg := c.stream
	c.mu.Unlock()

	id := uuid.New()
	log := c.log.With().Str("session", id.String()).Logger()
	log.Info().Str("device", streamCfg.DeviceID).Msg("Acquiring microphone")

	openCtx, cancel := context.WithCancel(ctx)
	stopWatch := context.AfterFunc(c.ctx, cancel)
	stream, err := c.device.Open(openCtx, streamCfg)
	stopWatch()
	cancel()

	c.mu.Lock()
	if c.closed {
		c.state = Idle
		c.mu.Unlock()
		if err == nil {
			stream.Close()
		}
		log.Info().Msg("Controller closed during acquisition")
		return ErrClosed
	}

	if err != nil {
		err = acquisitionError(err)
		c.state = Failed
		c.reason = err
		c.mu.Unlock()
		log.Error().Err(err).Msg("Failed to acquire microphone")
		c.notify(Failed)
		return err
	}

	s := newSession(id, log, stream, c.timing)
	c.session = s
	c.state = Recording
	s.begin(c.clock, c.timing, c.streamEnded)
	c.mu.Unlock()

	log.Info().Msg("Recording started")
	c.notify(Recording)
	return nil
}

// Stop finalizes the current recording and delivers it to the sink. It is a
// no-op unless the controller is Recording. Resources are released even when
// encoding fails, in which case the sink is not called.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != Recording {
		c.mu.Unlock()
		return nil
	}
	s := c.session
	c.state = Finalizing
	s.haltTasks()
	c.mu.Unlock()
	c.notify(Finalizing)

	s.closeStream()
	<-s.accumDone

	artifact, err := s.finalize(c.newEncoder, c.format)
	s.buffer.Release()

	c.mu.Lock()
	c.session = nil
	c.state = Idle
	c.reason = err
	c.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Msg("Failed to finalize recording")
		c.notify(Failed)
		return err
	}

	s.log.Info().
		Dur("duration", artifact.Duration()).
		Int("bytes", artifact.Len()).
		Msg("Recording finished")
	c.notify(Idle)

	if c.sink != nil {
		c.sink.Deliver(artifact)
	} else {
		s.log.Warn().Msg("No sink registered, dropping recording")
	}
	return nil
}

// Close tears the controller down. An in-progress recording is released
// without producing an artifact. Later calls to Start return ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()

	if c.state != Recording {
		c.mu.Unlock()
		return nil
	}
	s := c.session
	c.state = Finalizing
	s.haltTasks()
	c.mu.Unlock()

	s.closeStream()
	<-s.accumDone
	s.buffer.Release()

	c.mu.Lock()
	c.session = nil
	c.state = Idle
	c.mu.Unlock()

	s.log.Info().Msg("Recording discarded on shutdown")
	c.notify(Idle)
	return nil
}

// streamEnded runs when a session's frame channel closes. Unless a stop or
// teardown is already underway, the device went away mid-recording.
func (c *Controller) streamEnded(s *session) {
	c.mu.Lock()
	if c.session != s || c.state != Recording {
		c.mu.Unlock()
		return
	}

	s.haltTasks()
	s.closeStream()
	s.buffer.Release()

	reason := fmt.Errorf("%w: input stream ended", ErrDeviceUnavailable)
	if err := s.stream.Err(); err != nil {
		reason = acquisitionError(err)
	}
	c.session = nil
	c.state = Failed
	c.reason = reason
	c.mu.Unlock()

	s.log.Error().Err(reason).Msg("Input device lost while recording")
	c.notify(Failed)
}

// SetDevice selects the input used by the next Start. An empty id means the
// system default.
func (c *Controller) SetDevice(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.busy() {
		return ErrAlreadyRecording
	}
	c.stream.DeviceID = id
	return nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the reason for the last failure, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// ElapsedSeconds is whole seconds since recording started, 0 when not recording.
func (c *Controller) ElapsedSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Recording {
		return 0
	}
	return int(c.session.elapsed.Load())
}

// Amplitude is the latest loudness level in [0, 100], 0 when not recording.
func (c *Controller) Amplitude() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Recording {
		return 0
	}
	return c.session.monitor.Level()
}

func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.state, Reason: c.reason}
	if c.state == Recording {
		st.Elapsed = int(c.session.elapsed.Load())
		st.Level = c.session.monitor.Level()
		st.SessionID = c.session.id.String()
	}
	return st
}

func (c *Controller) notify(state State) {
	if c.status == nil {
		return
	}
	switch state {
	case Recording:
		c.status.SetRecording()
	case Finalizing:
		c.status.SetProcessing()
	case Failed:
		c.status.SetError()
	case Idle:
		c.status.SetIdle()
	}
}
