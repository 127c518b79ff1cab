// Package tray provides a system tray icon that shows the localisation state
// and lets the operator stop the run.
package tray

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/ayusman/arucoloc/internal/localisation"
)

// StatusSource supplies the latest session snapshot.
type StatusSource interface {
	Snapshot() *localisation.Snapshot
}

// Tray represents the system tray application.
type Tray struct {
	onStatus func()
	onQuit   func()
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuState   *systray.MenuItem
	menuDetail  *systray.MenuItem
	menuCommand *systray.MenuItem
	title       string
}

// New creates a new Tray instance.
func New() *Tray {
	return &Tray{}
}

// OnStatus sets the callback for the "Open Status..." menu item.
func (t *Tray) OnStatus(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStatus = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("arucoloc")
	systray.SetTooltip("ArUco marker localisation")

	t.mu.Lock()
	t.menuState = systray.AddMenuItem("State: starting", "Localisation state")
	t.menuState.Disable()
	t.menuDetail = systray.AddMenuItem("", "Frame convention and broadcast rate")
	t.menuDetail.Disable()
	t.menuCommand = systray.AddMenuItem("Last: none", "Last operator command")
	t.menuCommand.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuStatus := systray.AddMenuItem("Open Status...", "Open the status page in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Stop localisation")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-menuStatus.ClickedCh:
				t.handleStatus()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// handleStatus handles the status menu item click.
func (t *Tray) handleStatus() {
	t.mu.RLock()
	callback := t.onStatus
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Lines renders the three status lines shown in the menu.
func Lines(snap *localisation.Snapshot) (state, detail, last string) {
	if snap == nil {
		return "State: starting", "", "Last: none"
	}

	state = "State: " + snap.State
	if snap.Reason != "" {
		state += " (" + snap.Reason + ")"
	}

	detail = fmt.Sprintf("%s, %s", snap.Convention, describeRate(snap.FrequencyHz))
	if snap.Calibrated {
		detail += fmt.Sprintf(", %d markers", len(snap.Visible))
	}

	last = "Last: none"
	if snap.LastCommand != "" && snap.LastCommand != "None" {
		last = "Last: " + snap.LastCommand
	}
	return state, detail, last
}

func describeRate(hz float64) string {
	switch {
	case hz < 0:
		return "broadcast always"
	case hz == 0:
		return "broadcast never"
	default:
		return fmt.Sprintf("broadcast %g Hz", hz)
	}
}

// Update refreshes the menu from snap. It is a no-op before the tray is ready.
func (t *Tray) Update(snap *localisation.Snapshot) {
	state, detail, last := Lines(snap)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.menuState == nil {
		return
	}
	t.menuState.SetTitle(state)
	t.menuDetail.SetTitle(detail)
	t.menuCommand.SetTitle(last)

	title := "arucoloc"
	if snap != nil {
		title = "arucoloc " + snap.State
	}
	if title != t.title {
		systray.SetTitle(title)
		t.title = title
	}
}

// Watch polls source every interval and updates the menu until ctx ends.
func (t *Tray) Watch(ctx context.Context, source StatusSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Update(source.Snapshot())
		}
	}
}
