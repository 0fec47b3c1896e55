package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

func writeTestWAV(t *testing.T, fs afero.Fs, path string, samples []float32) {
	t.Helper()
	if err := afero.WriteFile(fs, path, encodeSamples(t, samples), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestFileDeviceReplaysWholeFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = 0.25
	}
	writeTestWAV(t, fs, "/in.wav", samples)

	dev := NewFileDevice(fs, "/in.wav", false, zerolog.Nop())
	stream, err := dev.Open(context.Background(), DefaultStreamConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	total := 0
	timeout := time.After(2 * time.Second)
	for total < len(samples) {
		select {
		case frame, ok := <-stream.Frames():
			if !ok {
				t.Fatalf("stream ended early after %d samples", total)
			}
			total += len(frame)
		case <-timeout:
			t.Fatalf("timed out after %d samples", total)
		}
	}

	select {
	case <-dev.Drained():
	case <-time.After(time.Second):
		t.Fatal("expected device to report drained")
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-stream.Frames(); ok {
		t.Error("expected frames channel to be closed after Close")
	}
	if total != len(samples) {
		t.Errorf("expected %d samples, got %d", len(samples), total)
	}
}

func TestFileDeviceMissingFile(t *testing.T) {
	dev := NewFileDevice(afero.NewMemMapFs(), "/missing.wav", false, zerolog.Nop())
	_, err := dev.Open(context.Background(), DefaultStreamConfig())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestFileDeviceInvalidFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/bad.wav", []byte("definitely not a wav file"), 0644); err != nil {
		t.Fatal(err)
	}

	dev := NewFileDevice(fs, "/bad.wav", false, zerolog.Nop())
	_, err := dev.Open(context.Background(), DefaultStreamConfig())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}
