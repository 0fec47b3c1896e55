package capture

import (
	"errors"
	"sync"
)

var errBufferReleased = errors.New("sample buffer released")

// Tap is a read-only view of the most recent samples. Tail reports false once
// the underlying buffer has been released.
type Tap interface {
	Tail(dst []float32) (int, bool)
}

// SampleBuffer accumulates mono samples in arrival order. Only the session's
// accumulation path writes to it.
type SampleBuffer struct {
	mu       sync.RWMutex
	samples  []float32
	released bool
}

func NewSampleBuffer(capacity int) *SampleBuffer {
	return &SampleBuffer{samples: make([]float32, 0, capacity)}
}

// Append copies frame onto the end of the buffer. It returns false if the
// buffer has been released.
func (b *SampleBuffer) Append(frame []float32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return false
	}
	b.samples = append(b.samples, frame...)
	return true
}

func (b *SampleBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Tail copies up to len(dst) of the most recent samples into dst.
func (b *SampleBuffer) Tail(dst []float32) (int, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.released {
		return 0, false
	}
	start := max(len(b.samples)-len(dst), 0)
	return copy(dst, b.samples[start:]), true
}

// WriteTo hands every accumulated sample to enc and returns the count.
func (b *SampleBuffer) WriteTo(enc Encoder) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.released {
		return 0, errBufferReleased
	}
	if err := enc.Append(b.samples); err != nil {
		return 0, err
	}
	return len(b.samples), nil
}

// Release drops the samples and invalidates every Tap.
func (b *SampleBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = nil
	b.released = true
}

func (b *SampleBuffer) Released() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.released
}
