package level

import (
	"log/slog"
	"sync"
	"time"

	"racetimer/internal/audio/graph"
	"racetimer/internal/core/frameloop"
	"racetimer/internal/core/model"
)

// Reading is one frame of the level meter.
type Reading struct {
	DB      float64
	Percent float64
	Bin     int
	At      time.Time
}

// Percent maps dB linearly from the threshold range [-90, -20] onto 0..100.
func Percent(db float64) float64 {
	span := model.ThresholdRange.Max - model.ThresholdRange.Min
	pct := (model.ThresholdRange.Clamp(db) - model.ThresholdRange.Min) / span * 100
	return pct
}

// Monitor samples the analyzer every frame while playback runs, whether or
// not auto-start is enabled.
type Monitor struct {
	mu        sync.Mutex
	scheduler *frameloop.Scheduler
	builder   *graph.Builder
	targetHz  func() float64
	observer  func(Reading)
	logger    *slog.Logger
	handle    *frameloop.Handle
	last      Reading
}

// New creates a stopped monitor. targetHz is read when the loop starts.
func New(scheduler *frameloop.Scheduler, builder *graph.Builder, targetHz func() float64, observer func(Reading), logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		scheduler: scheduler,
		builder:   builder,
		targetHz:  targetHz,
		observer:  observer,
		logger:    logger,
	}
}

// Start ensures the analysis chain and begins sampling. A running monitor
// is left as is.
func (monitor *Monitor) Start() error {
	monitor.mu.Lock()
	defer monitor.mu.Unlock()
	if monitor.handle.Active() {
		return nil
	}
	return monitor.startLocked()
}

// Restart cancels and restarts the loop so the target bin is recomputed.
func (monitor *Monitor) Restart() error {
	monitor.mu.Lock()
	defer monitor.mu.Unlock()
	if !monitor.handle.Active() {
		return nil
	}
	monitor.handle.Cancel()
	return monitor.startLocked()
}

// Stop cancels the loop. Stopping twice is a no-op.
func (monitor *Monitor) Stop() {
	monitor.mu.Lock()
	defer monitor.mu.Unlock()
	monitor.handle.Cancel()
	monitor.handle = nil
}

// Running reports whether the loop is active.
func (monitor *Monitor) Running() bool {
	monitor.mu.Lock()
	defer monitor.mu.Unlock()
	return monitor.handle.Active()
}

// Last returns the most recent reading.
func (monitor *Monitor) Last() Reading {
	monitor.mu.Lock()
	defer monitor.mu.Unlock()
	return monitor.last
}

func (monitor *Monitor) startLocked() error {
	chain, err := monitor.builder.EnsureGraph()
	if err != nil {
		return err
	}
	bin := chain.TargetBin(monitor.targetHz())
	monitor.logger.Debug("level monitor started", slog.Int("bin", bin))
	monitor.handle = monitor.scheduler.Request(func(now time.Time) {
		db := chain.LevelAt(bin)
		reading := Reading{DB: db, Percent: Percent(db), Bin: bin, At: now}
		monitor.mu.Lock()
		monitor.last = reading
		observer := monitor.observer
		monitor.mu.Unlock()
		if observer != nil {
			observer(reading)
		}
	})
	return nil
}
