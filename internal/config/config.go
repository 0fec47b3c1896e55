package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const envPrefix = "VOICECAPTURE"

type Config struct {
	LogLevel string        `json:"log_level" mapstructure:"log_level"`
	Audio    AudioConfig   `json:"audio" mapstructure:"audio"`
	Monitor  MonitorConfig `json:"monitor" mapstructure:"monitor"`
	Predict  PredictConfig `json:"predict" mapstructure:"predict"`
	Broker   BrokerConfig  `json:"broker" mapstructure:"broker"`
}

type AudioConfig struct {
	DeviceID         string `json:"device_id" mapstructure:"device_id"`
	FramesPerBuffer  int    `json:"frames_per_buffer" mapstructure:"frames_per_buffer"`
	EchoCancellation bool   `json:"echo_cancellation" mapstructure:"echo_cancellation"`
	NoiseSuppression bool   `json:"noise_suppression" mapstructure:"noise_suppression"`
}

type MonitorConfig struct {
	IntervalMS int     `json:"interval_ms" mapstructure:"interval_ms"` // ~60 Hz by default
	Window     int     `json:"window" mapstructure:"window"`           // samples averaged per reading
	Gain       float64 `json:"gain" mapstructure:"gain"`
}

type PredictConfig struct {
	URL            string `json:"url" mapstructure:"url"`
	FeatureType    string `json:"feature_type" mapstructure:"feature_type"`
	TopK           int    `json:"top_k" mapstructure:"top_k"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// BrokerConfig enables MQTT publishing of predictions when URL is set
type BrokerConfig struct {
	URL      string `json:"url" mapstructure:"url"`
	ClientID string `json:"client_id" mapstructure:"client_id"`
	Topic    string `json:"topic" mapstructure:"topic"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("audio.device_id", "")
	v.SetDefault("audio.frames_per_buffer", 512)
	v.SetDefault("audio.echo_cancellation", true)
	v.SetDefault("audio.noise_suppression", true)

	v.SetDefault("monitor.interval_ms", 16)
	v.SetDefault("monitor.window", 256)
	v.SetDefault("monitor.gain", 4.0)

	v.SetDefault("predict.url", "http://localhost:8000")
	v.SetDefault("predict.feature_type", "mfcc")
	v.SetDefault("predict.top_k", 3)
	v.SetDefault("predict.timeout_seconds", 30)

	v.SetDefault("broker.url", "")
	v.SetDefault("broker.client_id", "voicecapture")
	v.SetDefault("broker.topic", "speakerid/predictions")
	v.SetDefault("broker.username", "")
	v.SetDefault("broker.password", "")
}

// Load reads the config from disk or returns defaults. Variables from a .env
// file in the working directory and VOICECAPTURE_* overrides are applied.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFile(afero.NewOsFs(), Path())
}

// LoadFile reads the config at path on fs, falling back to defaults when the
// file does not exist.
func LoadFile(fs afero.Fs, path string) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}
	if exists {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the recorder cannot run with
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("invalid log level: %q", c.LogLevel)
	}
	if c.Audio.FramesPerBuffer <= 0 {
		return fmt.Errorf("audio.frames_per_buffer must be positive, got %d", c.Audio.FramesPerBuffer)
	}
	if c.Monitor.IntervalMS <= 0 {
		return fmt.Errorf("monitor.interval_ms must be positive, got %d", c.Monitor.IntervalMS)
	}
	if c.Predict.TopK < 1 {
		return fmt.Errorf("predict.top_k must be at least 1, got %d", c.Predict.TopK)
	}
	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	return c.SaveFile(afero.NewOsFs(), Path())
}

func (c *Config) SaveFile(fs afero.Fs, path string) error {
	// Ensure directory exists
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return afero.WriteFile(fs, path, data, 0644)
}

// Path returns the platform-specific config file path
func Path() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "voicecapture", "config.json")
}
