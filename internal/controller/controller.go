// Package controller owns every runtime component of a session and wires
// playback events to analysis and timing.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"racetimer/internal/audio/graph"
	"racetimer/internal/audio/level"
	"racetimer/internal/core/frameloop"
	"racetimer/internal/core/model"
	"racetimer/internal/core/onset"
	"racetimer/internal/core/stopwatch"
	"racetimer/internal/haptics"
	"racetimer/internal/media"
	"racetimer/internal/settings"
)

// Options configures a controller.
type Options struct {
	SampleRate int
	FrameRate  int
	FFmpegPath string
	// Output opens the audible sink. Nil disables sound entirely.
	Output graph.SinkFactory
	// Audible routes clip playback to the sink. Haptic buzz uses the sink
	// regardless.
	Audible  bool
	Vibrator haptics.Vibrator
	// Clock overrides wall time, for tests and offline scans.
	Clock frameloop.Clock
}

// Controller is the session context shared by the UI and the CLI.
type Controller struct {
	mu        sync.Mutex
	logger    *slog.Logger
	options   Options
	scheduler *frameloop.Scheduler
	watch     *stopwatch.Stopwatch
	store     *settings.Store
	audio     *graph.Shared
	player    *media.Player
	haptics   *haptics.Haptics

	builder  *graph.Builder
	monitor  *level.Monitor
	detector *onset.Detector

	analysisErr error
	frequency   float64
	enabled     bool

	levelObservers []func(level.Reading)
	fireObservers  []func(time.Time)

	cancel context.CancelFunc
	done   chan struct{}
}

// New wires a controller around store. The audio context is created on first use.
func New(store *settings.Store, options Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if options.SampleRate <= 0 {
		options.SampleRate = graph.DefaultSampleRate
	}
	scheduler := frameloop.New(options.Clock, frameloop.Config{FrameRate: options.FrameRate})
	audio := graph.NewShared(graph.ContextOptions{SampleRate: options.SampleRate, Output: options.Output})
	current := store.Settings()

	ctrl := &Controller{
		logger:    logger,
		options:   options,
		scheduler: scheduler,
		watch:     stopwatch.New(scheduler, logger.With(slog.String("component", "stopwatch"))),
		store:     store,
		audio:     audio,
		player: media.NewPlayer(scheduler, media.Options{
			SampleRate: options.SampleRate,
			FFmpegPath: options.FFmpegPath,
		}, logger.With(slog.String("component", "media"))),
		haptics:   haptics.New(options.Vibrator, audio, logger.With(slog.String("component", "haptics"))),
		frequency: current.TargetFrequencyHz,
		enabled:   current.Enabled,
	}

	ctrl.player.Subscribe(media.EventLoadedMetadata, ctrl.onLoaded)
	ctrl.player.Subscribe(media.EventPlay, ctrl.onPlay)
	ctrl.player.Subscribe(media.EventPause, ctrl.onHalt)
	ctrl.player.Subscribe(media.EventEnded, ctrl.onHalt)
	store.OnChange(ctrl.onSettings)
	return ctrl
}

// Scheduler returns the frame scheduler.
func (ctrl *Controller) Scheduler() *frameloop.Scheduler { return ctrl.scheduler }

// Stopwatch returns the stopwatch.
func (ctrl *Controller) Stopwatch() *stopwatch.Stopwatch { return ctrl.watch }

// Player returns the media player.
func (ctrl *Controller) Player() *media.Player { return ctrl.player }

// Settings returns the settings store.
func (ctrl *Controller) Settings() *settings.Store { return ctrl.store }

// OnLevel registers an observer for level meter readings.
func (ctrl *Controller) OnLevel(fn func(level.Reading)) {
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	ctrl.levelObservers = append(ctrl.levelObservers, fn)
}

// OnAutoStart registers an observer invoked when the detector fires.
func (ctrl *Controller) OnAutoStart(fn func(time.Time)) {
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	ctrl.fireObservers = append(ctrl.fireObservers, fn)
}

// Run starts the frame loop and haptic feedback until ctx ends or Close is called.
func (ctrl *Controller) Run(ctx context.Context) {
	ctrl.mu.Lock()
	if ctrl.cancel != nil {
		ctrl.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	ctrl.cancel = cancel
	ctrl.done = make(chan struct{})
	done := ctrl.done
	ctrl.mu.Unlock()

	events := ctrl.watch.Subscribe(16)
	go func() {
		defer close(done)
		ctrl.haptics.Follow(runCtx, events)
	}()
	ctrl.scheduler.Start(runCtx)
}

// Close stops every loop and releases the audio output.
func (ctrl *Controller) Close() error {
	ctrl.mu.Lock()
	cancel := ctrl.cancel
	done := ctrl.done
	ctrl.cancel = nil
	ctrl.done = nil
	monitor, detector := ctrl.monitor, ctrl.detector
	ctrl.mu.Unlock()

	ctrl.player.Pause()
	if monitor != nil {
		monitor.Stop()
	}
	if detector != nil {
		detector.Stop()
	}
	ctrl.scheduler.Stop()
	if cancel != nil {
		cancel()
		<-done
	}
	ctrl.watch.Close()
	return ctrl.audio.Close()
}

// Load opens a clip and tries to start playback.
func (ctrl *Controller) Load(ctx context.Context, path string) error {
	if err := ctrl.player.Load(ctx, path); err != nil {
		return err
	}
	ctrl.tryPlay()
	return nil
}

// LoadClip installs a decoded clip without starting playback.
func (ctrl *Controller) LoadClip(clip *media.Clip) {
	ctrl.player.LoadClip(clip)
}

// TogglePlay plays a paused clip and pauses a playing one.
func (ctrl *Controller) TogglePlay() {
	if ctrl.player.Paused() {
		ctrl.tryPlay()
		return
	}
	ctrl.player.Pause()
}

// Restart replays the clip from the top.
func (ctrl *Controller) Restart() {
	if !ctrl.player.Loaded() {
		return
	}
	ctrl.player.Pause()
	if err := ctrl.player.Restart(); err != nil {
		ctrl.logger.Debug("restart playback", slog.String("error", err.Error()))
	}
	ctrl.haptics.Feedback(haptics.KindRestart)
}

// Seek moves the playhead.
func (ctrl *Controller) Seek(position time.Duration) {
	ctrl.player.Seek(position)
}

// StartTimer starts the stopwatch and playback of a paused clip.
func (ctrl *Controller) StartTimer() {
	if ctrl.player.Loaded() && ctrl.player.Paused() {
		ctrl.tryPlay()
	}
	ctrl.watch.Start()
}

// StopTimer stops the stopwatch.
func (ctrl *Controller) StopTimer() {
	ctrl.watch.Stop()
}

// ResetTimer resets a stopped stopwatch and reports whether it did.
func (ctrl *Controller) ResetTimer() bool {
	return ctrl.watch.Reset()
}

// DetectorState reports the onset detector phase.
func (ctrl *Controller) DetectorState() onset.State {
	ctrl.mu.Lock()
	detector := ctrl.detector
	ctrl.mu.Unlock()
	if detector == nil {
		return onset.StateIdle
	}
	return detector.State()
}

// AnalysisError returns why analysis is unavailable, if it is.
func (ctrl *Controller) AnalysisError() error {
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	return ctrl.analysisErr
}

func (ctrl *Controller) tryPlay() {
	if err := ctrl.player.Play(); err != nil && !errors.Is(err, media.ErrNoMedia) {
		ctrl.logger.Warn("playback failed", slog.String("error", err.Error()))
	}
}

func (ctrl *Controller) onLoaded(event media.Event) {
	ctrl.mu.Lock()
	builder, monitor, detector := ctrl.builder, ctrl.monitor, ctrl.detector
	ctrl.analysisErr = nil
	ctrl.mu.Unlock()

	ctrl.logger.Debug("clip loaded", slog.String("name", event.Name), slog.Duration("duration", event.Duration))
	if monitor != nil {
		monitor.Stop()
	}
	if detector != nil {
		detector.Stop()
		detector.MediaLoaded()
	}
	if builder != nil {
		builder.Flush()
	}
}

func (ctrl *Controller) onPlay(media.Event) {
	monitor, detector, err := ctrl.ensureAnalysis()
	if err != nil {
		ctrl.mu.Lock()
		ctrl.analysisErr = err
		ctrl.mu.Unlock()
		ctrl.logger.Warn("audio analysis unavailable, auto-start disabled", slog.String("error", err.Error()))
		return
	}
	if ctrl.options.Audible {
		if sink, err := ctrl.audio.Context().Destination(); err == nil {
			ctrl.player.SetOutput(sink)
		}
	}

	if err := monitor.Start(); err != nil {
		ctrl.logger.Warn("level monitor failed", slog.String("error", err.Error()))
		return
	}
	if ctrl.store.Settings().Enabled {
		if err := detector.Start(); err != nil {
			ctrl.logger.Warn("onset detector failed", slog.String("error", err.Error()))
		}
	}
}

func (ctrl *Controller) onHalt(media.Event) {
	ctrl.mu.Lock()
	monitor, detector := ctrl.monitor, ctrl.detector
	ctrl.mu.Unlock()
	if monitor != nil {
		monitor.Stop()
	}
	if detector != nil {
		detector.Stop()
	}
}

func (ctrl *Controller) onSettings(updated model.DetectorSettings) {
	ctrl.mu.Lock()
	retarget := updated.TargetFrequencyHz != ctrl.frequency
	toggled := updated.Enabled != ctrl.enabled
	ctrl.frequency = updated.TargetFrequencyHz
	ctrl.enabled = updated.Enabled
	builder, monitor, detector := ctrl.builder, ctrl.monitor, ctrl.detector
	ctrl.mu.Unlock()

	if builder == nil {
		return
	}
	if retarget {
		builder.Retarget(updated.TargetFrequencyHz)
		if err := monitor.Restart(); err != nil {
			ctrl.logger.Warn("restart level monitor", slog.String("error", err.Error()))
		}
		if err := detector.Restart(); err != nil {
			ctrl.logger.Warn("restart onset detector", slog.String("error", err.Error()))
		}
	}
	if !toggled {
		return
	}
	if !updated.Enabled {
		detector.Stop()
		return
	}
	if !ctrl.player.Paused() {
		if err := detector.Start(); err != nil {
			ctrl.logger.Warn("onset detector failed", slog.String("error", err.Error()))
		}
	}
}

// ensureAnalysis creates the graph builder and the two loops on first playback.
func (ctrl *Controller) ensureAnalysis() (*level.Monitor, *onset.Detector, error) {
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.builder == nil {
		ctrl.builder = graph.NewBuilder(ctrl.audio.Context(), ctrl.player, graph.BuilderOptions{
			CenterHz: ctrl.store.Settings().TargetFrequencyHz,
		})
		targetHz := func() float64 { return ctrl.store.Settings().TargetFrequencyHz }
		ctrl.monitor = level.New(ctrl.scheduler, ctrl.builder, targetHz, ctrl.publishLevel,
			ctrl.logger.With(slog.String("component", "level")))
		ctrl.detector = onset.New(ctrl.scheduler, ctrl.builder, ctrl.store.Settings, ctrl.watch,
			ctrl.logger.With(slog.String("component", "onset")))
		ctrl.detector.SetOnFire(ctrl.publishFire)
	}
	if _, err := ctrl.builder.EnsureGraph(); err != nil {
		return nil, nil, err
	}
	return ctrl.monitor, ctrl.detector, nil
}

func (ctrl *Controller) publishLevel(reading level.Reading) {
	ctrl.mu.Lock()
	observers := slices.Clone(ctrl.levelObservers)
	ctrl.mu.Unlock()
	for _, observer := range observers {
		observer(reading)
	}
}

func (ctrl *Controller) publishFire(at time.Time) {
	ctrl.mu.Lock()
	observers := slices.Clone(ctrl.fireObservers)
	ctrl.mu.Unlock()
	for _, observer := range observers {
		observer(at)
	}
}
