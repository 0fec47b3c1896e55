package capture

import (
	"errors"
	"fmt"

	"github.com/speakerid/voicecapture/internal/audio"
)

var (
	ErrPermissionDenied  = audio.ErrPermissionDenied
	ErrDeviceUnavailable = audio.ErrDeviceUnavailable
	ErrAlreadyRecording  = errors.New("recording already in progress")
	ErrEncodingFailed    = errors.New("failed to encode recording")
	ErrClosed            = errors.New("capture controller closed")
)

// acquisitionError folds any device open failure into one of the two
// acquisition error kinds.
func acquisitionError(err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
}

// UserMessage returns text suitable for showing to the person recording.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Failed to access microphone. Please check permissions."
	case errors.Is(err, ErrDeviceUnavailable):
		return "No microphone available. Connect an input device and try again."
	case errors.Is(err, ErrAlreadyRecording):
		return "Already recording."
	case errors.Is(err, ErrEncodingFailed):
		return "The recording could not be processed."
	case errors.Is(err, ErrClosed):
		return "Recorder is shutting down."
	default:
		return "An error occurred"
	}
}
