package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/speakerid/voicecapture/internal/app"
	"github.com/speakerid/voicecapture/internal/audio"
	"github.com/speakerid/voicecapture/internal/config"
	"github.com/speakerid/voicecapture/internal/logging"
	"github.com/speakerid/voicecapture/internal/predict"
	"github.com/speakerid/voicecapture/internal/publish"
	"github.com/speakerid/voicecapture/internal/tray"
)

var (
	cfg      *config.Config
	log      zerolog.Logger
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "voicecapture",
	Short: "Record voice samples and identify the speaker",
	Long: `VoiceCapture records short voice samples from a microphone as 16 kHz mono
WAV and sends them to a speaker identification backend.

Without a subcommand it runs as a menu bar app.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config from XDG/Library/AppData
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}

		// Initialize logger with configured level
		log = logging.NewWithLevel(cfg.LogLevel)
		return nil
	},
	RunE: runTray,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	rootCmd.Version = fmt.Sprintf("%s (%s)", Version, Commit)

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(healthCmd)
}

func newPredictor() (*predict.Client, error) {
	return predict.New(predict.Options{
		BaseURL:     cfg.Predict.URL,
		FeatureType: cfg.Predict.FeatureType,
		TopK:        cfg.Predict.TopK,
		Timeout:     time.Duration(cfg.Predict.TimeoutSeconds) * time.Second,
		Logger:      log,
	})
}

func newPublisher() publish.Publisher {
	if cfg.Broker.URL == "" {
		return publish.Nop{}
	}
	pub, err := publish.NewMQTT(publish.Options{
		Broker:   cfg.Broker.URL,
		ClientID: cfg.Broker.ClientID,
		Username: cfg.Broker.Username,
		Password: cfg.Broker.Password,
		Topic:    cfg.Broker.Topic,
		Logger:   log,
	})
	if err != nil {
		log.Warn().Err(err).Msg("MQTT unavailable, predictions will not be published")
		return publish.Nop{}
	}
	return pub
}

func runTray(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize audio capture
	device, err := audio.NewPortAudio(log)
	if err != nil {
		return err
	}
	defer device.Close()

	predictor, err := newPredictor()
	if err != nil {
		return err
	}

	// Create tray UI first (we'll pass it to app)
	trayUI := tray.New(nil, Version, Commit, log) // App reference set below

	// Create app with tray as status updater
	application := app.New(app.Config{
		Device:        device,
		Predictor:     predictor,
		Publisher:     newPublisher(),
		Config:        cfg,
		Logger:        log,
		StatusUpdater: trayUI,
	})

	// Set app reference in tray
	trayUI.SetApp(application)

	log.Info().Str("predictor", cfg.Predict.URL).Msg("VoiceCapture starting...")

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		shutdownCtx, done := context.WithTimeout(ctx, 5*time.Second)
		defer done()
		if err := application.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
		os.Exit(0)
	}()

	// Start tray UI - MUST run on main thread
	err = trayUI.Run(ctx)

	shutdownCtx, done := context.WithTimeout(ctx, 5*time.Second)
	defer done()
	if serr := application.Shutdown(shutdownCtx); serr != nil {
		log.Error().Err(serr).Msg("Shutdown error")
	}
	return err
}
