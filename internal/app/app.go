package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/speakerid/voicecapture/internal/audio"
	"github.com/speakerid/voicecapture/internal/capture"
	"github.com/speakerid/voicecapture/internal/config"
	"github.com/speakerid/voicecapture/internal/predict"
	"github.com/speakerid/voicecapture/internal/publish"
)

// Predictor identifies the speaker in a WAV recording
type Predictor interface {
	Predict(ctx context.Context, wav []byte, filename string) (predict.Result, error)
	SetTopK(k int)
}

type Config struct {
	Device        audio.InputDevice
	Predictor     Predictor         // Optional - recordings are only logged when nil
	Publisher     publish.Publisher // Optional - defaults to publish.Nop
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater capture.StatusUpdater // Optional - can be nil

	// Where settings changes are persisted. Defaults to the user config file.
	Fs         afero.Fs
	ConfigPath string

	// OnResult is called after each upload completes, successfully or not
	OnResult func(Recognition, error)
}

// Recognition is the outcome of one recording
type Recognition struct {
	SessionID  string
	Duration   time.Duration
	RecordedAt time.Time
	Result     predict.Result
}

type App struct {
	ctrl     *capture.Controller
	device   audio.InputDevice
	pred     Predictor
	pub      publish.Publisher
	cfg      *config.Config
	log      zerolog.Logger
	status   capture.StatusUpdater
	fs       afero.Fs
	cfgPath  string
	onResult func(Recognition, error)

	// uploads outlive the recording that produced them
	ctx     context.Context
	cancel  context.CancelFunc
	uploads sync.WaitGroup

	mu      sync.Mutex
	last    *Recognition
	lastErr error
}

func New(cfg Config) *App {
	pub := cfg.Publisher
	if pub == nil {
		pub = publish.Nop{}
	}
	fs, path := cfg.Fs, cfg.ConfigPath
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if path == "" {
		path = config.Path()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		device:   cfg.Device,
		pred:     cfg.Predictor,
		pub:      pub,
		cfg:      cfg.Config,
		log:      cfg.Logger,
		status:   cfg.StatusUpdater,
		fs:       fs,
		cfgPath:  path,
		onResult: cfg.OnResult,
		ctx:      ctx,
		cancel:   cancel,
	}

	a.ctrl = capture.New(capture.Config{
		Device: cfg.Device,
		Stream: audio.StreamConfig{
			DeviceID:         cfg.Config.Audio.DeviceID,
			FramesPerBuffer:  cfg.Config.Audio.FramesPerBuffer,
			EchoCancellation: cfg.Config.Audio.EchoCancellation,
			NoiseSuppression: cfg.Config.Audio.NoiseSuppression,
		},
		Sink:            capture.SinkFunc(a.onRecording),
		Status:          cfg.StatusUpdater,
		Logger:          cfg.Logger,
		MonitorInterval: time.Duration(cfg.Config.Monitor.IntervalMS) * time.Millisecond,
		MonitorWindow:   cfg.Config.Monitor.Window,
		MonitorGain:     cfg.Config.Monitor.Gain,
	})
	return a
}

// Toggle starts a recording when idle and stops it when recording
func (a *App) Toggle(ctx context.Context) error {
	if a.ctrl.State() == capture.Recording {
		return a.ctrl.Stop()
	}
	return a.ctrl.Start(ctx)
}

func (a *App) StartRecording(ctx context.Context) error {
	return a.ctrl.Start(ctx)
}

func (a *App) StopRecording() error {
	return a.ctrl.Stop()
}

func (a *App) IsRecording() bool {
	return a.ctrl.State() == capture.Recording
}

// Status is the controller's current view for display
func (a *App) Status() capture.Status {
	return a.ctrl.Snapshot()
}

// onRecording hands the artifact to the predictor without blocking Stop
func (a *App) onRecording(art capture.Artifact) {
	rec := Recognition{
		SessionID:  art.SessionID().String(),
		Duration:   art.Duration(),
		RecordedAt: time.Now(),
	}

	if a.pred == nil {
		a.log.Info().Str("session", rec.SessionID).Dur("duration", rec.Duration).Msg("Recording captured, no predictor configured")
		return
	}

	a.uploads.Add(1)
	go func() {
		defer a.uploads.Done()
		a.identify(rec, art.Bytes())
	}()
}

func (a *App) identify(rec Recognition, wav []byte) {
	log := a.log.With().Str("session", rec.SessionID).Logger()
	if a.status != nil {
		a.status.SetProcessing()
	}

	res, err := a.pred.Predict(a.ctx, wav, fmt.Sprintf("recording-%s.wav", rec.SessionID))
	rec.Result = res

	a.mu.Lock()
	if err == nil {
		a.last = &rec
	}
	a.lastErr = err
	a.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("Prediction failed")
		if a.status != nil && !errors.Is(err, context.Canceled) {
			a.status.SetError()
		}
	} else {
		log.Info().Str("result", res.Summary()).Msg("Speaker identified")
		if a.status != nil && a.ctrl.State() == capture.Idle {
			a.status.SetIdle()
		}

		msg := publish.NewPrediction(rec.SessionID, rec.Duration, rec.RecordedAt, res)
		pubCtx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
		if perr := a.pub.Publish(pubCtx, msg); perr != nil {
			log.Warn().Err(perr).Msg("Failed to publish prediction")
		}
		cancel()
	}

	if a.onResult != nil {
		a.onResult(rec, err)
	}
}

// LastResult returns the most recent successful identification
func (a *App) LastResult() (Recognition, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return Recognition{}, false
	}
	return *a.last, true
}

// LastError returns the error from the most recent upload, if any
func (a *App) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Shutdown discards any recording in progress and waits for pending uploads
// until ctx expires, after which they are cancelled.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.ctrl.Close()

	done := make(chan struct{})
	go func() {
		a.uploads.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn().Msg("Cancelling pending uploads")
		a.cancel()
		<-done
	}
	a.cancel()
	a.pub.Close()
	return err
}

// Tray actions

func (a *App) SetDevice(id string) error {
	if err := a.ctrl.SetDevice(id); err != nil {
		return fmt.Errorf("cannot change device: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.Audio.DeviceID = id
	return a.cfg.SaveFile(a.fs, a.cfgPath)
}

func (a *App) SetTopK(k int) error {
	if k < 1 {
		return fmt.Errorf("top-k must be at least 1, got %d", k)
	}
	if a.pred != nil {
		a.pred.SetTopK(k)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.Predict.TopK = k
	return a.cfg.SaveFile(a.fs, a.cfgPath)
}

func (a *App) TopK() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Predict.TopK
}

func (a *App) DeviceID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Audio.DeviceID
}

func (a *App) ListDevices() ([]audio.Device, error) {
	return a.device.ListDevices()
}
