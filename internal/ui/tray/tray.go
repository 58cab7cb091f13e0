package tray

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"

	"racetimer/internal/core/stopwatch"
	"racetimer/internal/ui/timerwindow"
)

// Callbacks defines tray action handlers.
type Callbacks struct {
	OnShow     func()
	OnStart    func()
	OnStop     func()
	OnReset    func()
	OnPlay     func()
	OnSettings func()
	OnQuit     func()
}

// Icons are the tray images for each stopwatch mode.
type Icons struct {
	Idle    fyne.Resource
	Running fyne.Resource
}

// Manager handles system tray state.
type Manager struct {
	app        desktop.App
	icons      Icons
	callbacks  Callbacks
	statusItem *fyne.MenuItem
	startItem  *fyne.MenuItem
	stopItem   *fyne.MenuItem
	resetItem  *fyne.MenuItem
	playItem   *fyne.MenuItem
	phase      stopwatch.Phase
	display    string
}

// New creates a tray manager with the provided callbacks.
func New(app desktop.App, icons Icons, callbacks Callbacks) *Manager {
	manager := &Manager{
		app:       app,
		icons:     icons,
		callbacks: callbacks,
		phase:     stopwatch.PhaseIdle,
		display:   stopwatch.FormatTime(0),
	}

	manager.statusItem = fyne.NewMenuItem("", nil)
	manager.statusItem.Disabled = true
	manager.startItem = fyne.NewMenuItem("Start timer", call(&manager.callbacks.OnStart))
	manager.stopItem = fyne.NewMenuItem("Stop timer", call(&manager.callbacks.OnStop))
	manager.resetItem = fyne.NewMenuItem("Reset timer", call(&manager.callbacks.OnReset))
	manager.playItem = fyne.NewMenuItem("Play / Pause clip", call(&manager.callbacks.OnPlay))

	manager.SetPhase(stopwatch.PhaseIdle, manager.display)
	return manager
}

// SetPhase updates the status line, the enabled items and the icon.
func (manager *Manager) SetPhase(phase stopwatch.Phase, display string) {
	manager.phase = phase
	manager.display = display

	controls := timerwindow.ControlsFor(phase)
	manager.startItem.Disabled = !controls.Start
	manager.stopItem.Disabled = !controls.Stop
	manager.resetItem.Disabled = !controls.Reset
	manager.statusItem.Label = StatusLabel(phase, display)

	if manager.app == nil {
		return
	}
	manager.applyIcon()
	manager.refreshMenu()
}

// SetPlayable toggles the clip item.
func (manager *Manager) SetPlayable(playable bool) {
	manager.playItem.Disabled = !playable
	manager.refreshMenu()
}

// Follow mirrors stopwatch start, stop and reset events. Ticks are ignored so
// the menu is not rebuilt every frame. Call it from the fyne goroutine.
func (manager *Manager) Follow(event stopwatch.Event) {
	if event.Type == stopwatch.EventTick {
		return
	}
	manager.SetPhase(event.Phase, event.Display)
}

// StatusLabel renders the disabled first menu line.
func StatusLabel(phase stopwatch.Phase, display string) string {
	switch phase {
	case stopwatch.PhaseRunning:
		return "Timer running"
	case stopwatch.PhaseStopped:
		return fmt.Sprintf("Stopped at %s", display)
	default:
		return "Timer ready"
	}
}

func (manager *Manager) applyIcon() {
	icon := manager.icons.Idle
	if manager.phase == stopwatch.PhaseRunning && manager.icons.Running != nil {
		icon = manager.icons.Running
	}
	if icon != nil {
		manager.app.SetSystemTrayIcon(icon)
	}
}

func (manager *Manager) refreshMenu() {
	if manager.app == nil {
		return
	}
	manager.app.SetSystemTrayMenu(fyne.NewMenu("Race Timer",
		manager.statusItem,
		fyne.NewMenuItem("Show window", call(&manager.callbacks.OnShow)),
		fyne.NewMenuItemSeparator(),
		manager.startItem,
		manager.stopItem,
		manager.resetItem,
		manager.playItem,
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Settings", call(&manager.callbacks.OnSettings)),
		fyne.NewMenuItem("Quit", call(&manager.callbacks.OnQuit)),
	))
}

func call(handler *func()) func() {
	return func() {
		if *handler != nil {
			(*handler)()
		}
	}
}
