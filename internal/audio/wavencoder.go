package audio

import (
	"errors"
	"fmt"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

const (
	wavFormatPCM = 1
	scratchFile  = "recording.wav"
)

var errEncoderFinalized = errors.New("encoder already finalized")

// WAVEncoder accumulates float32 samples and produces a linear PCM WAV file in
// memory. It is single use: Finalize may only be called once.
type WAVEncoder struct {
	format  Format
	fs      afero.Fs
	file    afero.File
	enc     *wav.Encoder
	buf     *goaudio.IntBuffer
	samples int
	done    bool
}

// NewWAVEncoder creates an encoder for 16-bit PCM in the given format.
func NewWAVEncoder(format Format) (*WAVEncoder, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d", format.BitDepth)
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("invalid format: %d Hz, %d channels", format.SampleRate, format.Channels)
	}

	// wav.Encoder needs an io.WriteSeeker to patch chunk sizes on Close
	fs := afero.NewMemMapFs()
	f, err := fs.Create(scratchFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder buffer: %w", err)
	}

	return &WAVEncoder{
		format: format,
		fs:     fs,
		file:   f,
		enc:    wav.NewEncoder(f, format.SampleRate, format.BitDepth, format.Channels, wavFormatPCM),
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: format.Channels,
				SampleRate:  format.SampleRate,
			},
			SourceBitDepth: format.BitDepth,
		},
	}, nil
}

// Append encodes samples in [-1, 1]; values outside that range are clipped.
func (e *WAVEncoder) Append(samples []float32) error {
	if e.done {
		return errEncoderFinalized
	}

	const maxInt16 = float64(math.MaxInt16)
	if cap(e.buf.Data) < len(samples) {
		e.buf.Data = make([]int, len(samples))
	}
	e.buf.Data = e.buf.Data[:len(samples)]
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) {
			v = 0
		}
		e.buf.Data[i] = int(math.Round(max(-1, min(1, v)) * maxInt16))
	}

	if err := e.enc.Write(e.buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	e.samples += len(samples)
	return nil
}

// Samples returns the number of samples appended so far.
func (e *WAVEncoder) Samples() int {
	return e.samples
}

// Finalize patches the WAV header and returns the complete file.
func (e *WAVEncoder) Finalize() ([]byte, error) {
	if e.done {
		return nil, errEncoderFinalized
	}
	e.done = true

	// The header is only written on the first Write
	if e.samples == 0 {
		e.buf.Data = e.buf.Data[:0]
		if err := e.enc.Write(e.buf); err != nil {
			e.file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	if err := e.enc.Close(); err != nil {
		e.file.Close()
		return nil, fmt.Errorf("failed to finalize wav: %w", err)
	}
	if err := e.file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close encoder buffer: %w", err)
	}

	data, err := afero.ReadFile(e.fs, scratchFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded wav: %w", err)
	}
	return data, nil
}
