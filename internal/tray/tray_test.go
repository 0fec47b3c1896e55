package tray

import (
	"testing"

	"github.com/speakerid/voicecapture/internal/app"
	"github.com/speakerid/voicecapture/internal/capture"
	"github.com/speakerid/voicecapture/internal/predict"
)

func TestEmojiForStatus(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"recording", "🔴"},
		{"processing", "🟡"},
		{"idle", "🟢"},
		{"error", "⚪️"},
		{"unknown", "🟢"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := emojiForStatus(tt.status); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestLevelBar(t *testing.T) {
	tests := []struct {
		name  string
		level float64
		want  string
	}{
		{"silent", 0, "▯▯▯▯▯"},
		{"quiet", 15, "▮▯▯▯▯"},
		{"half", 50, "▮▮▮▯▯"},
		{"loud", 100, "▮▮▮▮▮"},
		{"over range", 250, "▮▮▮▮▮"},
		{"negative", -10, "▯▯▯▯▯"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := levelBar(tt.level); got != tt.want {
				t.Errorf("levelBar(%v) = %s, want %s", tt.level, got, tt.want)
			}
		})
	}
}

func TestFormatTitle(t *testing.T) {
	tests := []struct {
		name   string
		status string
		st     capture.Status
		want   string
	}{
		{"idle", "idle", capture.Status{}, "🎤 🟢"},
		{"recording", "recording", capture.Status{State: capture.Recording, Elapsed: 65, Level: 40}, "🎤 🔴 1:05 ▮▮▯▯▯"},
		{"recording status before controller catches up", "recording", capture.Status{State: capture.Idle}, "🎤 🔴"},
		{"processing", "processing", capture.Status{State: capture.Finalizing}, "🎤 🟡"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatTitle(tt.status, tt.st); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResultText(t *testing.T) {
	var rec app.Recognition
	if got := resultText(rec); got != "no match" {
		t.Errorf("expected no match, got %q", got)
	}

	rec.Result.Prediction.Predictions = []predict.Candidate{
		{SpeakerID: "alice", SpeakerName: "Alice", Confidence: 0.9},
		{SpeakerID: "bob", Confidence: 0.05},
	}
	want := "1. Alice 90.0%\n2. bob 5.0%"
	if got := resultText(rec); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
