package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/speakerid/voicecapture/internal/audio"
	"github.com/speakerid/voicecapture/internal/capture"
	"github.com/speakerid/voicecapture/internal/publish"
)

var (
	recordOutput   string
	recordInput    string
	recordPredict  bool
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one voice sample from the terminal",
	Long: `Record a single voice sample and write it as a 16 kHz mono WAV file.

Recording stops when Enter is pressed, when --duration elapses, or when the
--input file has been fully replayed. With --predict the sample is also sent
to the identification backend and the ranked speakers are printed.`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "recording.wav", "where to write the WAV file (empty to skip)")
	recordCmd.Flags().StringVarP(&recordInput, "input", "i", "", "replay a WAV file instead of using the microphone")
	recordCmd.Flags().BoolVarP(&recordPredict, "predict", "p", false, "identify the speaker after recording")
	recordCmd.Flags().DurationVarP(&recordDuration, "duration", "d", 0, "stop automatically after this long")
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := afero.NewOsFs()

	var (
		device  audio.InputDevice
		drained func() <-chan struct{}
	)
	if recordInput != "" {
		fd := audio.NewFileDevice(fs, recordInput, true, log)
		device, drained = fd, fd.Drained
	} else {
		pa, err := audio.NewPortAudio(log)
		if err != nil {
			return err
		}
		device = pa
	}
	defer device.Close()

	artifacts := make(chan capture.Artifact, 1)
	ctrl := capture.New(capture.Config{
		Device: device,
		Stream: audio.StreamConfig{
			DeviceID:         cfg.Audio.DeviceID,
			FramesPerBuffer:  cfg.Audio.FramesPerBuffer,
			EchoCancellation: cfg.Audio.EchoCancellation,
			NoiseSuppression: cfg.Audio.NoiseSuppression,
		},
		Sink: capture.SinkFunc(func(a capture.Artifact) {
			artifacts <- a
		}),
		Logger:          log,
		MonitorInterval: time.Duration(cfg.Monitor.IntervalMS) * time.Millisecond,
		MonitorWindow:   cfg.Monitor.Window,
		MonitorGain:     cfg.Monitor.Gain,
	})
	defer ctrl.Close()

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("%s: %w", capture.UserMessage(err), err)
	}

	var fileDone <-chan struct{}
	if drained != nil {
		fileDone = drained()
	}
	var timeout <-chan time.Time
	if recordDuration > 0 {
		timer := time.NewTimer(recordDuration)
		defer timer.Stop()
		timeout = timer.C
	}
	enter := make(chan struct{})
	go func() {
		bufio.NewScanner(os.Stdin).Scan()
		close(enter)
	}()

	fmt.Fprintln(os.Stderr, "Recording... press Enter to stop")
	meter := time.NewTicker(100 * time.Millisecond)
	defer meter.Stop()

wait:
	for {
		select {
		case <-meter.C:
			st := ctrl.Snapshot()
			if st.State != capture.Recording {
				break wait
			}
			fmt.Fprintf(os.Stderr, "\r%3ds %-20s", st.Elapsed, strings.Repeat("#", int(st.Level/5)))
		case <-enter:
			break wait
		case <-timeout:
			break wait
		case <-fileDone:
			break wait
		case <-ctx.Done():
			ctrl.Close()
			fmt.Fprintln(os.Stderr)
			return ctx.Err()
		}
	}
	fmt.Fprintln(os.Stderr)

	if ctrl.State() == capture.Failed {
		err := ctrl.Err()
		return fmt.Errorf("%s: %w", capture.UserMessage(err), err)
	}
	if err := ctrl.Stop(); err != nil {
		return fmt.Errorf("%s: %w", capture.UserMessage(err), err)
	}
	art := <-artifacts

	if recordOutput != "" {
		if err := afero.WriteFile(fs, recordOutput, art.Bytes(), 0644); err != nil {
			return fmt.Errorf("failed to write recording: %w", err)
		}
		fmt.Printf("Wrote %s (%s, %d bytes)\n", recordOutput, art.Duration().Round(10*time.Millisecond), art.Len())
	}

	if !recordPredict {
		return nil
	}
	return identify(ctx, art)
}

func identify(ctx context.Context, art capture.Artifact) error {
	predictor, err := newPredictor()
	if err != nil {
		return err
	}

	sessionID := art.SessionID().String()
	res, err := predictor.Predict(ctx, art.Bytes(), fmt.Sprintf("recording-%s.wav", sessionID))
	if err != nil {
		return err
	}

	fmt.Printf("Model: %s\n", res.Prediction.ModelUsed)
	for i, c := range res.Prediction.Predictions {
		name := c.SpeakerName
		if name == "" {
			name = c.SpeakerID
		}
		fmt.Printf("%d. %-20s %5.1f%%\n", i+1, name, c.Confidence*100)
	}

	pub := newPublisher()
	defer pub.Close()
	if err := pub.Publish(ctx, publish.NewPrediction(sessionID, art.Duration(), time.Now(), res)); err != nil {
		log.Warn().Err(err).Msg("Failed to publish prediction")
	}
	return nil
}
