package config

import (
	"testing"

	"github.com/spf13/afero"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(afero.NewMemMapFs(), "/cfg/config.json")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("expected log level info, got %q", cfg.LogLevel)
	}
	if cfg.Audio.FramesPerBuffer != 512 {
		t.Errorf("expected 512 frames per buffer, got %d", cfg.Audio.FramesPerBuffer)
	}
	if !cfg.Audio.EchoCancellation || !cfg.Audio.NoiseSuppression {
		t.Error("expected echo cancellation and noise suppression on by default")
	}
	if cfg.Predict.FeatureType != "mfcc" || cfg.Predict.TopK != 3 {
		t.Errorf("unexpected predict defaults: %+v", cfg.Predict)
	}
	if cfg.Monitor.IntervalMS != 16 || cfg.Monitor.Window != 256 {
		t.Errorf("unexpected monitor defaults: %+v", cfg.Monitor)
	}
	if cfg.Broker.URL != "" {
		t.Errorf("expected broker disabled by default, got %q", cfg.Broker.URL)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := `{
  "log_level": "debug",
  "audio": {"device_id": "USB Mic", "echo_cancellation": false},
  "predict": {"url": "http://backend:9000", "top_k": 5}
}`
	if err := afero.WriteFile(fs, "/cfg/config.json", []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(fs, "/cfg/config.json")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug, got %q", cfg.LogLevel)
	}
	if cfg.Audio.DeviceID != "USB Mic" {
		t.Errorf("expected device id from file, got %q", cfg.Audio.DeviceID)
	}
	if cfg.Audio.EchoCancellation {
		t.Error("expected echo cancellation disabled from file")
	}
	if !cfg.Audio.NoiseSuppression {
		t.Error("expected unspecified keys to keep defaults")
	}
	if cfg.Predict.URL != "http://backend:9000" || cfg.Predict.TopK != 5 {
		t.Errorf("unexpected predict config: %+v", cfg.Predict)
	}
	if cfg.Predict.FeatureType != "mfcc" {
		t.Errorf("expected default feature type, got %q", cfg.Predict.FeatureType)
	}
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("VOICECAPTURE_PREDICT_TOP_K", "7")
	t.Setenv("VOICECAPTURE_BROKER_URL", "tcp://broker:1883")

	cfg, err := LoadFile(afero.NewMemMapFs(), "/cfg/config.json")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Predict.TopK != 7 {
		t.Errorf("expected top_k from env, got %d", cfg.Predict.TopK)
	}
	if cfg.Broker.URL != "tcp://broker:1883" {
		t.Errorf("expected broker url from env, got %q", cfg.Broker.URL)
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed json", `{"log_level": `},
		{"bad log level", `{"log_level": "loud"}`},
		{"zero top k", `{"predict": {"top_k": 0}}`},
		{"negative buffer", `{"audio": {"frames_per_buffer": -1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if err := afero.WriteFile(fs, "/config.json", []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFile(fs, "/config.json"); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestSaveFileRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg, err := LoadFile(fs, "/cfg/config.json")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	cfg.Audio.DeviceID = "Built-in Microphone"
	cfg.Predict.TopK = 4
	if err := cfg.SaveFile(fs, "/cfg/config.json"); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	reloaded, err := LoadFile(fs, "/cfg/config.json")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Audio.DeviceID != "Built-in Microphone" || reloaded.Predict.TopK != 4 {
		t.Errorf("saved values not reloaded: %+v", reloaded)
	}
}
