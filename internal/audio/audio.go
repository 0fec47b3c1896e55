package audio

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned when the OS refuses microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable is returned when no input device can be opened.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
)

// Format describes a linear PCM layout
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// SpeechFormat is the only format recordings are produced in: mono, 16 kHz, 16-bit.
var SpeechFormat = Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

// StreamConfig configures an input stream request
type StreamConfig struct {
	DeviceID         string
	SampleRate       int
	Channels         int
	FramesPerBuffer  int
	EchoCancellation bool
	NoiseSuppression bool
}

// DefaultStreamConfig returns a mono 16 kHz request with echo cancellation and
// noise suppression enabled.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		SampleRate:       SpeechFormat.SampleRate,
		Channels:         SpeechFormat.Channels,
		FramesPerBuffer:  512,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// InputDevice opens audio input streams
type InputDevice interface {
	// Open acquires a stream. ctx bounds the acquisition only; the stream
	// lives until Close is called on it.
	Open(ctx context.Context, cfg StreamConfig) (Stream, error)
	ListDevices() ([]Device, error)
	Close() error
}

// Stream is an open input stream delivering mono float32 frames in [-1, 1].
//
// Frames is closed once the stream ends, either through Close or because the
// device went away. In the latter case Err reports why.
type Stream interface {
	Frames() <-chan []float32
	Err() error
	Close() error
}

// Device represents an audio input device
type Device struct {
	ID      string
	Name    string
	Default bool
}
