package onset

import (
	"log/slog"
	"sync"
	"time"

	"racetimer/internal/audio/graph"
	"racetimer/internal/core/frameloop"
	"racetimer/internal/core/model"
)

// State is the detector phase for the current media load.
type State string

const (
	StateIdle  State = "idle"
	StateAbove State = "above_threshold"
	StateFired State = "fired"
)

// Starter is the stopwatch as seen by the detector.
type Starter interface {
	Start()
	Running() bool
}

// Detector fires the stopwatch once per media load when a tone at the target
// frequency stays at or above the threshold for the hold duration.
type Detector struct {
	mu         sync.Mutex
	scheduler  *frameloop.Scheduler
	builder    *graph.Builder
	settings   func() model.DetectorSettings
	starter    Starter
	logger     *slog.Logger
	handle     *frameloop.Handle
	aboveSince time.Time
	fired      bool
	onFire     func(time.Time)
}

// New creates a detector. settings is read every frame, so threshold and
// hold edits apply on the next frame; the target bin is fixed per Start.
func New(scheduler *frameloop.Scheduler, builder *graph.Builder, settings func() model.DetectorSettings, starter Starter, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		scheduler: scheduler,
		builder:   builder,
		settings:  settings,
		starter:   starter,
		logger:    logger,
	}
}

// SetOnFire registers a callback invoked after the detector starts the stopwatch.
func (detector *Detector) SetOnFire(handler func(time.Time)) {
	detector.mu.Lock()
	defer detector.mu.Unlock()
	detector.onFire = handler
}

// State returns the current phase.
func (detector *Detector) State() State {
	detector.mu.Lock()
	defer detector.mu.Unlock()
	return detector.stateLocked()
}

// Fired reports whether the detector fired for the current load.
func (detector *Detector) Fired() bool {
	detector.mu.Lock()
	defer detector.mu.Unlock()
	return detector.fired
}

// MediaLoaded resets the detector for a new clip, whatever its phase.
func (detector *Detector) MediaLoaded() {
	detector.mu.Lock()
	defer detector.mu.Unlock()
	detector.aboveSince = time.Time{}
	detector.fired = false
}

// Evaluate applies one frame of the transition table and reports whether
// this frame fired. Any dip below the threshold restarts the hold window.
func (detector *Detector) Evaluate(now time.Time, levelDB float64, settings model.DetectorSettings) bool {
	detector.mu.Lock()
	if levelDB < settings.ThresholdDB {
		detector.aboveSince = time.Time{}
		detector.mu.Unlock()
		return false
	}
	if detector.aboveSince.IsZero() {
		detector.aboveSince = now
	}
	if detector.fired || now.Sub(detector.aboveSince) < settings.Hold() {
		detector.mu.Unlock()
		return false
	}
	if detector.starter.Running() {
		detector.mu.Unlock()
		return false
	}
	detector.fired = true
	onFire := detector.onFire
	aboveSince := detector.aboveSince
	detector.mu.Unlock()

	detector.starter.Start()
	detector.logger.Info("auto-start fired",
		slog.Float64("level_db", levelDB),
		slog.Duration("held", now.Sub(aboveSince)),
	)
	if onFire != nil {
		onFire(now)
	}
	return true
}

// Start begins per-frame evaluation. A running detector is left as is.
func (detector *Detector) Start() error {
	detector.mu.Lock()
	defer detector.mu.Unlock()
	if detector.handle.Active() {
		return nil
	}
	return detector.startLocked()
}

// Restart recomputes the target bin after a frequency change.
func (detector *Detector) Restart() error {
	detector.mu.Lock()
	defer detector.mu.Unlock()
	if !detector.handle.Active() {
		return nil
	}
	detector.handle.Cancel()
	return detector.startLocked()
}

// Stop cancels evaluation without touching the onset state.
func (detector *Detector) Stop() {
	detector.mu.Lock()
	defer detector.mu.Unlock()
	detector.handle.Cancel()
	detector.handle = nil
}

// Running reports whether the evaluation loop is active.
func (detector *Detector) Running() bool {
	detector.mu.Lock()
	defer detector.mu.Unlock()
	return detector.handle.Active()
}

func (detector *Detector) startLocked() error {
	chain, err := detector.builder.EnsureGraph()
	if err != nil {
		return err
	}
	bin := chain.TargetBin(detector.settings().TargetFrequencyHz)
	detector.handle = detector.scheduler.Request(func(now time.Time) {
		current := detector.settings()
		if !current.Enabled {
			return
		}
		detector.Evaluate(now, chain.LevelAt(bin), current)
	})
	return nil
}

func (detector *Detector) stateLocked() State {
	if detector.fired {
		return StateFired
	}
	if !detector.aboveSince.IsZero() {
		return StateAbove
	}
	return StateIdle
}
