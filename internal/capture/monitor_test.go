package capture

import (
	"math"
	"testing"
)

func TestLevel(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name    string
		samples []float32
		gain    float64
		want    float64
	}{
		{"no samples", nil, 4, 0},
		{"silence", []float32{0, 0, 0, 0}, 4, 0},
		{"full scale clamps", []float32{1, -1, 1, -1}, 4, 100},
		{"quarter scale", []float32{0.25, -0.25}, 1, 25},
		{"negative magnitudes count", []float32{-0.1, -0.1}, 4, 40},
		{"over range clamps", []float32{3, 3}, 1, 100},
		{"nan is silent", []float32{nan}, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Level(tt.samples, tt.gain)
			if math.Abs(got-tt.want) > 1e-4 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
			if got < 0 || got > 100 {
				t.Errorf("level %f outside [0, 100]", got)
			}
		})
	}
}

func TestMonitorStopsWhenBufferReleased(t *testing.T) {
	b := NewSampleBuffer(8)
	b.Append([]float32{0.5, 0.5})
	m := NewMonitor(b, 4, 1)

	if !m.Sample() {
		t.Fatal("expected monitor to keep running on a live buffer")
	}
	if got := m.Level(); math.Abs(got-50) > 1e-4 {
		t.Errorf("expected level 50, got %f", got)
	}

	b.Release()
	if m.Sample() {
		t.Error("expected monitor to stop once the buffer is released")
	}
	if got := m.Level(); got != 0 {
		t.Errorf("expected level reset to 0, got %f", got)
	}
}
