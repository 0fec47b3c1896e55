//go:build !darwin

package permissions

// MicrophoneAllowed always reports true outside macOS; access control there is
// left to the audio backend.
func MicrophoneAllowed() bool {
	return true
}
