package capture

import (
	"math"
	"sync/atomic"
)

const (
	DefaultMonitorWindow = 256
	DefaultMonitorGain   = 4.0
)

// Monitor derives a loudness level in [0, 100] from the tail of a live buffer.
// It only reads through its Tap and stops once the Tap is invalidated.
type Monitor struct {
	tap    Tap
	window []float32
	gain   float64
	level  atomic.Uint64
}

func NewMonitor(tap Tap, window int, gain float64) *Monitor {
	if window <= 0 {
		window = DefaultMonitorWindow
	}
	if gain <= 0 {
		gain = DefaultMonitorGain
	}
	return &Monitor{
		tap:    tap,
		window: make([]float32, window),
		gain:   gain,
	}
}

// Sample recomputes the level. It returns false when the buffer is gone.
func (m *Monitor) Sample() bool {
	n, ok := m.tap.Tail(m.window)
	if !ok {
		m.level.Store(0)
		return false
	}
	m.level.Store(math.Float64bits(Level(m.window[:n], m.gain)))
	return true
}

// Level returns the last computed level.
func (m *Monitor) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// Level maps the mean magnitude of samples to [0, 100].
func Level(samples []float32, gain float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	v := sum / float64(len(samples)) * gain * 100

	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
