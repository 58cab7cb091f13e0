package timerwindow

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fynestorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"racetimer/internal/audio/level"
	"racetimer/internal/controller"
	"racetimer/internal/core/frameloop"
	"racetimer/internal/core/model"
	"racetimer/internal/core/stopwatch"
	"racetimer/internal/media"
	"racetimer/internal/ui/animation"
)

var (
	timeColor  = color.NRGBA{R: 232, G: 190, B: 66, A: 255}
	flashColor = color.NRGBA{R: 76, G: 217, B: 100, A: 255}
	titleColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// MediaExtensions lists the files offered by the open dialog.
var MediaExtensions = []string{".wav", ".mp4", ".mov", ".m4v", ".mkv", ".webm", ".mp3", ".m4a"}

const playheadRefresh = 100 * time.Millisecond

// Window is the main stopwatch and clip player window.
type Window struct {
	app    fyne.App
	window fyne.Window
	ctrl   *controller.Controller
	logger *slog.Logger

	titleLabel *canvas.Text
	clipLabel  *canvas.Text
	timeLabel  *canvas.Text
	status     *widget.Label

	startButton   *widget.Button
	stopButton    *widget.Button
	resetButton   *widget.Button
	openButton    *widget.Button
	playButton    *widget.Button
	restartButton *widget.Button

	seek          *widget.Slider
	positionLabel *widget.Label
	meter         *widget.ProgressBar
	autoStart     *widget.Check

	engine *animation.Engine

	mu         sync.Mutex
	ctx        context.Context
	playhead   *frameloop.Handle
	lastUpdate time.Time
	dragging   bool
	lastDB     float64
	onSettings func()
}

// New creates the main window bound to ctrl. Call Bind before showing it.
func New(app fyne.App, ctrl *controller.Controller, logger *slog.Logger) *Window {
	if logger == nil {
		logger = slog.Default()
	}
	window := app.NewWindow("Race Timer")
	if app.Icon() != nil {
		window.SetIcon(app.Icon())
	}

	titleLabel := canvas.NewText("Race Timer", titleColor)
	titleLabel.TextStyle = fyne.TextStyle{Bold: true}
	titleLabel.TextSize = 21

	clipLabel := canvas.NewText("No clip loaded", titleColor)
	clipLabel.TextSize = 14

	timeLabel := canvas.NewText(stopwatch.FormatTime(0), timeColor)
	timeLabel.Alignment = fyne.TextAlignCenter
	timeLabel.TextStyle = fyne.TextStyle{Bold: true, Monospace: true}
	timeLabel.TextSize = 56

	view := &Window{
		app:           app,
		window:        window,
		ctrl:          ctrl,
		logger:        logger,
		titleLabel:    titleLabel,
		clipLabel:     clipLabel,
		timeLabel:     timeLabel,
		status:        widget.NewLabel(""),
		positionLabel: widget.NewLabel(positionText(0, 0)),
		meter:         widget.NewProgressBar(),
		ctx:           context.Background(),
		lastDB:        model.ThresholdRange.Min,
	}

	view.startButton = widget.NewButtonWithIcon("Start", theme.MediaPlayIcon(), ctrl.StartTimer)
	view.stopButton = widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), ctrl.StopTimer)
	view.resetButton = widget.NewButtonWithIcon("Reset", theme.MediaReplayIcon(), func() { ctrl.ResetTimer() })
	view.startButton.Importance = widget.HighImportance

	view.openButton = widget.NewButtonWithIcon("Open", theme.FolderOpenIcon(), view.showOpenDialog)
	view.playButton = widget.NewButtonWithIcon("Play", theme.MediaPlayIcon(), ctrl.TogglePlay)
	view.restartButton = widget.NewButtonWithIcon("", theme.MediaSkipPreviousIcon(), ctrl.Restart)
	settingsButton := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		view.mu.Lock()
		handler := view.onSettings
		view.mu.Unlock()
		if handler != nil {
			handler()
		}
	})

	view.seek = widget.NewSlider(0, 1)
	view.seek.Step = 0.01
	view.seek.OnChanged = func(value float64) {
		view.mu.Lock()
		view.dragging = true
		view.mu.Unlock()
		view.positionLabel.SetText(positionText(seconds(value), ctrl.Player().Duration()))
	}
	view.seek.OnChangeEnded = func(value float64) {
		view.mu.Lock()
		view.dragging = false
		view.mu.Unlock()
		ctrl.Seek(seconds(value))
	}

	view.meter.Max = 100
	view.meter.TextFormatter = func() string {
		view.mu.Lock()
		defer view.mu.Unlock()
		return fmt.Sprintf("%.0f dB", view.lastDB)
	}

	view.autoStart = widget.NewCheck("Auto-start on tone", func(on bool) {
		ctrl.Settings().SetEnabled(on)
	})
	view.autoStart.Checked = ctrl.Settings().Settings().Enabled

	view.engine = animation.New(animation.DefaultConfig(), func(on bool) {
		fyne.Do(func() { view.setHighlightUnsafe(on) })
	})

	header := container.New(&headerLayout{}, titleLabel, clipLabel)
	timerControls := container.NewGridWithColumns(3, view.startButton, view.stopButton, view.resetButton)
	playerControls := container.NewBorder(nil, nil,
		container.NewHBox(view.openButton, view.playButton, view.restartButton),
		view.positionLabel,
		view.seek,
	)
	detector := container.NewBorder(nil, nil, view.autoStart, settingsButton, view.meter)

	content := container.NewVBox(
		header,
		container.NewPadded(timeLabel),
		timerControls,
		widget.NewSeparator(),
		playerControls,
		detector,
		view.status,
	)
	window.SetContent(container.NewPadded(content))
	window.Resize(fyne.NewSize(560, 380))

	view.applyPhaseUnsafe(stopwatch.PhaseIdle)
	view.applyPlayerUnsafe()
	view.applyStatusUnsafe()
	return view
}

// Bind subscribes the window to the controller until ctx ends.
func (view *Window) Bind(ctx context.Context) {
	view.mu.Lock()
	view.ctx = ctx
	view.mu.Unlock()

	events := view.ctrl.Stopwatch().Subscribe(64)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				fyne.Do(func() { view.applyStopwatchUnsafe(event) })
			}
		}
	}()

	player := view.ctrl.Player()
	player.Subscribe(media.EventLoadedMetadata, view.onPlayerEvent)
	player.Subscribe(media.EventPlay, view.onPlayerEvent)
	player.Subscribe(media.EventPause, view.onPlayerEvent)
	player.Subscribe(media.EventEnded, view.onPlayerEvent)
	player.Subscribe(media.EventError, view.onPlayerEvent)

	view.ctrl.OnLevel(view.onLevel)
	view.ctrl.OnAutoStart(func(time.Time) { view.engine.Flash(ctx) })
	view.ctrl.Settings().OnChange(func(updated model.DetectorSettings) {
		fyne.Do(func() {
			view.autoStart.Checked = updated.Enabled
			view.autoStart.Refresh()
			view.applyStatusUnsafe()
		})
	})
}

// SetOnSettings sets the handler for the settings button.
func (view *Window) SetOnSettings(handler func()) {
	view.mu.Lock()
	defer view.mu.Unlock()
	view.onSettings = handler
}

// SetOnClose sets the handler invoked when the window is closed.
func (view *Window) SetOnClose(handler func()) {
	view.window.SetCloseIntercept(handler)
}

// Window returns the underlying fyne window.
func (view *Window) Window() fyne.Window {
	return view.window
}

// Show displays the window.
func (view *Window) Show() {
	view.window.Show()
	view.window.RequestFocus()
}

// Close stops animations.
func (view *Window) Close() {
	view.engine.Stop()
	view.mu.Lock()
	handle := view.playhead
	view.playhead = nil
	view.mu.Unlock()
	if handle != nil {
		handle.Cancel()
	}
}

// OpenFile loads path in the background and reports failures in a dialog.
func (view *Window) OpenFile(path string) {
	view.mu.Lock()
	ctx := view.ctx
	view.mu.Unlock()
	fyne.Do(func() {
		view.status.SetText("Loading " + path)
	})
	go func() {
		if err := view.ctrl.Load(ctx, path); err != nil {
			view.logger.Warn("open clip", slog.String("path", path), slog.String("error", err.Error()))
		}
	}()
}

func (view *Window) showOpenDialog() {
	open := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, view.window)
			return
		}
		if reader == nil {
			return
		}
		path := reader.URI().Path()
		_ = reader.Close()
		view.OpenFile(path)
	}, view.window)
	open.SetFilter(fynestorage.NewExtensionFileFilter(MediaExtensions))
	open.Show()
}

func (view *Window) onPlayerEvent(event media.Event) {
	switch event.Type {
	case media.EventPlay:
		view.mu.Lock()
		if view.playhead == nil {
			view.playhead = view.ctrl.Scheduler().Request(view.trackPlayhead)
		}
		view.mu.Unlock()
	case media.EventPause, media.EventEnded:
		view.mu.Lock()
		handle := view.playhead
		view.playhead = nil
		view.mu.Unlock()
		if handle != nil {
			handle.Cancel()
		}
	}

	fyne.Do(func() {
		if event.Type == media.EventError {
			dialog.ShowError(event.Err, view.window)
		}
		view.applyPlayerUnsafe()
		view.applyStatusUnsafe()
	})
}

func (view *Window) trackPlayhead(now time.Time) {
	view.mu.Lock()
	if now.Sub(view.lastUpdate) < playheadRefresh || view.dragging {
		view.mu.Unlock()
		return
	}
	view.lastUpdate = now
	view.mu.Unlock()

	fyne.Do(view.applyPlayheadUnsafe)
}

func (view *Window) onLevel(reading level.Reading) {
	view.mu.Lock()
	view.lastDB = reading.DB
	view.mu.Unlock()
	fyne.Do(func() {
		view.meter.SetValue(reading.Percent)
		view.applyStatusUnsafe()
	})
}

func (view *Window) applyStopwatchUnsafe(event stopwatch.Event) {
	view.timeLabel.Text = event.Display
	view.timeLabel.Refresh()
	if event.Type != stopwatch.EventTick {
		view.applyPhaseUnsafe(event.Phase)
	}
}

func (view *Window) applyPhaseUnsafe(phase stopwatch.Phase) {
	controls := ControlsFor(phase)
	setEnabled(view.startButton, controls.Start)
	setEnabled(view.stopButton, controls.Stop)
	setEnabled(view.resetButton, controls.Reset)
}

func (view *Window) applyPlayerUnsafe() {
	player := view.ctrl.Player()
	loaded := player.Loaded()
	if loaded {
		view.clipLabel.Text = player.Name()
	} else {
		view.clipLabel.Text = "No clip loaded"
	}
	view.clipLabel.Refresh()

	if player.Paused() {
		view.playButton.SetText("Play")
		view.playButton.SetIcon(theme.MediaPlayIcon())
	} else {
		view.playButton.SetText("Pause")
		view.playButton.SetIcon(theme.MediaPauseIcon())
	}
	setEnabled(view.playButton, loaded)
	setEnabled(view.restartButton, loaded)
	if loaded {
		view.seek.Enable()
	} else {
		view.seek.Disable()
	}

	limit := player.Duration().Seconds()
	if limit <= 0 {
		limit = 1
	}
	view.seek.Max = limit
	view.applyPlayheadUnsafe()
}

func (view *Window) applyPlayheadUnsafe() {
	view.mu.Lock()
	dragging := view.dragging
	view.mu.Unlock()
	if dragging {
		return
	}
	player := view.ctrl.Player()
	position := player.Position()
	view.seek.Value = position.Seconds()
	view.seek.Refresh()
	view.positionLabel.SetText(positionText(position, player.Duration()))
}

func (view *Window) applyStatusUnsafe() {
	text := StatusText(
		view.ctrl.Player().Loaded(),
		view.ctrl.Settings().Settings().Enabled,
		view.ctrl.DetectorState(),
		view.ctrl.AnalysisError(),
	)
	if view.status.Text != text {
		view.status.SetText(text)
	}
}

func (view *Window) setHighlightUnsafe(on bool) {
	if on {
		view.timeLabel.Color = flashColor
	} else {
		view.timeLabel.Color = timeColor
	}
	view.timeLabel.Refresh()
}

func setEnabled(button *widget.Button, enabled bool) {
	if enabled {
		button.Enable()
		return
	}
	button.Disable()
}

func seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}

func positionText(position, duration time.Duration) string {
	return fmt.Sprintf("%s / %s", clock(position), clock(duration))
}

func clock(value time.Duration) string {
	if value < 0 {
		value = 0
	}
	total := int(value.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

type headerLayout struct{}

func (layout *headerLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	if len(objects) < 2 {
		return
	}
	title := objects[0]
	clip := objects[1]

	titleSize := title.MinSize()
	title.Move(fyne.NewPos(0, 0))
	title.Resize(titleSize)

	clipSize := clip.MinSize()
	clipX := size.Width - clipSize.Width
	if clipX < titleSize.Width+12 {
		clipX = titleSize.Width + 12
	}
	clip.Move(fyne.NewPos(clipX, (titleSize.Height-clipSize.Height)/2))
	clip.Resize(fyne.NewSize(size.Width-clipX, clipSize.Height))
}

func (layout *headerLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	if len(objects) < 2 {
		return fyne.NewSize(0, 0)
	}
	titleSize := objects[0].MinSize()
	clipSize := objects[1].MinSize()
	height := titleSize.Height
	if clipSize.Height > height {
		height = clipSize.Height
	}
	return fyne.NewSize(titleSize.Width+12+clipSize.Width, height)
}
