package capture

import (
	"time"

	"github.com/google/uuid"

	"github.com/speakerid/voicecapture/internal/audio"
)

// Artifact is a finished recording. It is immutable; Bytes returns a copy.
type Artifact struct {
	data      []byte
	format    audio.Format
	duration  time.Duration
	sessionID uuid.UUID
}

func newArtifact(sessionID uuid.UUID, data []byte, format audio.Format, samples int) Artifact {
	owned := make([]byte, len(data))
	copy(owned, data)

	return Artifact{
		data:      owned,
		format:    format,
		duration:  time.Duration(samples) * time.Second / time.Duration(format.SampleRate*format.Channels),
		sessionID: sessionID,
	}
}

// Bytes returns the encoded WAV file.
func (a Artifact) Bytes() []byte {
	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

func (a Artifact) Len() int                { return len(a.data) }
func (a Artifact) Format() audio.Format    { return a.format }
func (a Artifact) Duration() time.Duration { return a.duration }
func (a Artifact) SessionID() uuid.UUID    { return a.sessionID }

// Sink receives the artifact of each completed recording
type Sink interface {
	Deliver(a Artifact)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(a Artifact)

func (f SinkFunc) Deliver(a Artifact) { f(a) }
