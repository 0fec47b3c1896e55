package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/speakerid/voicecapture/internal/app"
	"github.com/speakerid/voicecapture/internal/capture"
	"github.com/speakerid/voicecapture/internal/logging"
)

const refreshInterval = 100 * time.Millisecond

var topKChoices = []int{1, 3, 5}

type UI struct {
	app     *app.App
	version string
	commit  string
	log     zerolog.Logger

	mu     sync.Mutex
	status string
	done   chan struct{}

	// Menu items
	mStartStop *systray.MenuItem
	mDevices   *systray.MenuItem
	mTopK      *systray.MenuItem
	mLast      *systray.MenuItem
	mCopy      *systray.MenuItem
}

// Status update methods for the capture controller and app to call
func (u *UI) SetIdle() {
	u.setStatus("idle")
}

func (u *UI) SetRecording() {
	u.setStatus("recording")
}

func (u *UI) SetProcessing() {
	u.setStatus("processing")
}

func (u *UI) SetError() {
	u.setStatus("error")
}

func New(application *app.App, version, commit string, log zerolog.Logger) *UI {
	return &UI{
		app:     application,
		version: version,
		commit:  commit,
		log:     log,
		status:  "idle",
		done:    make(chan struct{}),
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

// Run blocks on the systray event loop until Quit is chosen
func (u *UI) Run(ctx context.Context) error {
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.render()
	systray.SetTooltip("Speaker identification")

	// Build menu
	u.mStartStop = systray.AddMenuItem("Start Recording", "Record a voice sample")
	u.mLast = systray.AddMenuItem("Last result: none", "")
	u.mLast.Disable()
	u.mCopy = systray.AddMenuItem("Copy Last Result", "Copy the identified speaker")
	u.mCopy.Disable()
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Microphone", "Select audio device")
	u.buildDeviceMenu()

	u.mTopK = systray.AddMenuItem("Candidates", "Number of speakers to rank")
	u.buildTopKMenu()

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About VoiceCapture")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	go u.refresh()

	// Event loop
	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			u.toggleRecording()
		case <-u.mCopy.ClickedCh:
			u.copyLastResult()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) toggleRecording() {
	if err := u.app.Toggle(context.Background()); err != nil {
		u.log.Error().Err(err).Msg("Failed to toggle recording")
		systray.SetTooltip(capture.UserMessage(err))
	}
}

// refresh redraws the title while recording so elapsed time and level move
func (u *UI) refresh() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-u.done:
			return
		case <-ticker.C:
			if u.currentStatus() == "recording" {
				u.render()
			}
		}
	}
}

func (u *UI) buildDeviceMenu() {
	// Get devices from app
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	current := u.app.DeviceID()
	deviceItems := make(map[string]*systray.MenuItem)

	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItem(dev.Name, "")
		if dev.ID == current || (current == "" && dev.Default) {
			item.Check()
		}
		deviceItems[dev.ID] = item

		go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				if err := u.app.SetDevice(deviceID); err != nil {
					u.log.Error().Err(err).Str("device", deviceName).Msg("Failed to change audio device")
					continue
				}
				// Uncheck all other items
				for id, itm := range deviceItems {
					if id != deviceID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.log.Info().Str("device", deviceName).Msg("Changed audio device")
			}
		}(dev.ID, dev.Name, item)
	}
}

func (u *UI) buildTopKMenu() {
	topKItems := make(map[int]*systray.MenuItem)

	for _, k := range topKChoices {
		item := u.mTopK.AddSubMenuItem(fmt.Sprintf("Top %d", k), "")
		if k == u.app.TopK() {
			item.Check()
		}
		topKItems[k] = item

		go func(k int, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				old := u.app.TopK()
				if err := u.app.SetTopK(k); err != nil {
					u.log.Error().Err(err).Msg("Failed to save top-k")
				}
				for n, itm := range topKItems {
					if n != k {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.log.Info().Int("from", old).Int("to", k).Msg("Changed top-k")
			}
		}(k, item)
	}
}

func (u *UI) copyLastResult() {
	rec, ok := u.app.LastResult()
	if !ok {
		return
	}
	if err := clipboard.WriteAll(resultText(rec)); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy result")
		return
	}
	u.log.Info().Str("session", rec.SessionID).Msg("Copied result to clipboard")
}

func (u *UI) openLogs() {
	path := logging.Path()
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		u.log.Error().Err(err).Str("path", path).Msg("Failed to open logs")
		return
	}
	go cmd.Wait()
}

func (u *UI) showAbout() {
	// TODO: Show about dialog with native UI
	fmt.Printf("VoiceCapture %s (%s)\nSpeaker identification from the menu bar\n", u.version, u.commit)
}

func (u *UI) onExit() {
	close(u.done)
}

func (u *UI) setStatus(status string) {
	u.mu.Lock()
	u.status = status
	u.mu.Unlock()
	u.render()
}

func (u *UI) currentStatus() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// render redraws title, tooltip and menu state from the current status
func (u *UI) render() {
	status := u.currentStatus()

	var st capture.Status
	if u.app != nil {
		st = u.app.Status()
	}
	systray.SetTitle(formatTitle(status, st))

	if u.mStartStop == nil {
		return
	}
	if status == "recording" {
		u.mStartStop.SetTitle("Stop Recording")
	} else {
		u.mStartStop.SetTitle("Start Recording")
	}

	switch status {
	case "error":
		msg := capture.UserMessage(st.Reason)
		if msg == "" && u.app.LastError() != nil {
			msg = "Prediction failed: " + u.app.LastError().Error()
		}
		systray.SetTooltip(msg)
	case "idle":
		if rec, ok := u.app.LastResult(); ok {
			u.mLast.SetTitle("Last result: " + rec.Result.Summary())
			u.mCopy.Enable()
		}
		systray.SetTooltip("Speaker identification")
	}
}

// formatTitle renders the tray title with microphone emoji, status indicator
// and, while recording, elapsed time and input level
func formatTitle(status string, st capture.Status) string {
	title := fmt.Sprintf("🎤 %s", emojiForStatus(status))
	if status == "recording" && st.State == capture.Recording {
		title += fmt.Sprintf(" %s %s", formatElapsed(st.Elapsed), levelBar(st.Level))
	}
	return title
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "recording":
		return "🔴" // Red - recording
	case "processing":
		return "🟡" // Yellow - encoding or identifying
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}

// levelBar draws a 0-100 level as five blocks
func levelBar(level float64) string {
	const steps = 5
	filled := int(level/100*steps + 0.5)
	filled = max(0, min(filled, steps))
	return strings.Repeat("▮", filled) + strings.Repeat("▯", steps-filled)
}

func formatElapsed(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func resultText(rec app.Recognition) string {
	var b strings.Builder
	for i, c := range rec.Result.Prediction.Predictions {
		name := c.SpeakerName
		if name == "" {
			name = c.SpeakerID
		}
		fmt.Fprintf(&b, "%d. %s %.1f%%\n", i+1, name, c.Confidence*100)
	}
	if b.Len() == 0 {
		return "no match"
	}
	return strings.TrimSuffix(b.String(), "\n")
}
