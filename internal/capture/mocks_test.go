package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/speakerid/voicecapture/internal/audio"
)

// Mock implementations for testing
type mockStream struct {
	frames     chan []float32
	closeCalls atomic.Int32
	once       sync.Once

	mu  sync.Mutex
	err error
}

func newMockStream() *mockStream {
	return &mockStream{frames: make(chan []float32, 4096)}
}

func (m *mockStream) Frames() <-chan []float32 {
	return m.frames
}

func (m *mockStream) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *mockStream) Close() error {
	m.closeCalls.Add(1)
	m.once.Do(func() { close(m.frames) })
	return nil
}

// lose simulates the device disappearing mid-stream.
func (m *mockStream) lose(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	m.once.Do(func() { close(m.frames) })
}

func (m *mockStream) push(samples int, value float32, frameLen int) {
	for samples > 0 {
		n := min(frameLen, samples)
		frame := make([]float32, n)
		for i := range frame {
			frame[i] = value
		}
		m.frames <- frame
		samples -= n
	}
}

type mockDevice struct {
	mu      sync.Mutex
	errs    []error // consumed one per Open call
	streams []*mockStream
	gate    chan struct{}
	opened  chan struct{}
	lastCfg audio.StreamConfig
}

func (m *mockDevice) Open(ctx context.Context, cfg audio.StreamConfig) (audio.Stream, error) {
	if m.opened != nil {
		m.opened <- struct{}{}
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCfg = cfg
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := newMockStream()
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *mockDevice) ListDevices() ([]audio.Device, error) {
	return []audio.Device{{ID: "default", Name: "Default", Default: true}}, nil
}

func (m *mockDevice) Close() error {
	return nil
}

func (m *mockDevice) stream(i int) *mockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[i]
}

func (m *mockDevice) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

type mockSink struct {
	mu        sync.Mutex
	artifacts []Artifact
}

func (m *mockSink) Deliver(a Artifact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts = append(m.artifacts, a)
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.artifacts)
}

type failingEncoder struct{}

func (failingEncoder) Append(samples []float32) error { return nil }

func (failingEncoder) Finalize() ([]byte, error) {
	return nil, errors.New("disk on fire")
}

type mockStatus struct {
	mu    sync.Mutex
	calls []string
}

func (m *mockStatus) record(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, s)
}

func (m *mockStatus) SetIdle()       { m.record("idle") }
func (m *mockStatus) SetRecording()  { m.record("recording") }
func (m *mockStatus) SetProcessing() { m.record("processing") }
func (m *mockStatus) SetError()      { m.record("error") }

func (m *mockStatus) history() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// waitFor polls cond for up to a second.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
