// Package tray shows the game in the system tray: the current prompt, a
// pause toggle, a next-number item and shortcuts to the browser view.
package tray

import (
	"context"
	"fmt"
	"sync"

	"github.com/getlantern/systray"
	"gocv.io/x/gocv"

	"github.com/ayusman/fingergame/internal/app"
	"github.com/ayusman/fingergame/internal/game"
)

// Tray is the system tray front end. It is an app.Presenter; menu clicks
// are forwarded to the registered callbacks.
type Tray struct {
	onToggle  func(enabled bool)
	onAdvance func()
	onOpen    func()
	onQuit    func()
	enabled   bool
	status    string
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuToggle  *systray.MenuItem
	menuStatus  *systray.MenuItem
	menuAdvance *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
		status:  "Starting...",
	}
}

// OnToggle sets the callback for pausing and resuming the game.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnAdvance sets the callback for the "Next number" item.
func (t *Tray) OnAdvance(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAdvance = fn
}

// OnOpen sets the callback for opening the game in a browser.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
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

func (t *Tray) onReady() {
	systray.SetTitle("Fingers")
	systray.SetTooltip("Finger counting game")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem(t.status, "Current number")
	t.menuStatus.Disable()
	systray.AddSeparator()

	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Pause or resume the game")
	t.menuAdvance = systray.AddMenuItem("Next number", "Skip the celebration")
	t.menuAdvance.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open game...", "Open the game in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit the game")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-t.menuAdvance.ClickedCh:
				t.handle(func() func() { return t.onAdvance })
			case <-menuOpen.ClickedCh:
				t.handle(func() func() { return t.onOpen })
			case <-menuQuit.ClickedCh:
				t.handle(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Playing"
	}
	return "○ Paused"
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handle runs the callback returned by get, read under the lock.
func (t *Tray) handle(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// StatusLine is the one-line summary of v shown in the menu.
func StatusLine(v app.View) string {
	switch v.State {
	case game.StateCorrect:
		return fmt.Sprintf("Correct! %d", v.Target)
	case game.StateTimeout:
		return "Time's up!"
	default:
		return fmt.Sprintf("Show: %d  (you: %s)", v.Target, v.Shown)
	}
}

// Present updates the status line and enables "Next number" while
// celebrating. Menu items are only touched when something changed.
func (t *Tray) Present(_ context.Context, _ *gocv.Mat, v app.View) error {
	status := StatusLine(v)

	t.mu.Lock()
	defer t.mu.Unlock()

	if status == t.status {
		return nil
	}
	t.status = status

	if t.menuStatus != nil {
		t.menuStatus.SetTitle(status)
	}
	if t.menuAdvance != nil {
		if v.State == game.StateCorrect {
			t.menuAdvance.Enable()
		} else {
			t.menuAdvance.Disable()
		}
	}
	return nil
}

// Close resets the status line once the game loop stops.
func (t *Tray) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = "Stopped"
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(t.status)
	}
	return nil
}

// Status returns the last status line shown.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Quit ends Run from any goroutine.
func Quit() {
	systray.Quit()
}
