package stopwatch

import (
	"log/slog"
	"sync"
	"time"

	"racetimer/internal/core/frameloop"
)

// Stopwatch is a state machine that measures a run with resume support.
type Stopwatch struct {
	mu        sync.Mutex
	scheduler *frameloop.Scheduler
	logger    *slog.Logger
	phase     Phase
	elapsed   time.Duration
	anchor    time.Time
	render    *frameloop.Handle
	events    []chan Event
}

// New creates an idle stopwatch that renders on the given scheduler.
func New(scheduler *frameloop.Scheduler, logger *slog.Logger) *Stopwatch {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stopwatch{
		scheduler: scheduler,
		logger:    logger,
		phase:     PhaseIdle,
	}
}

// Subscribe registers a new observer channel.
func (watch *Stopwatch) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	watch.mu.Lock()
	watch.events = append(watch.events, ch)
	watch.mu.Unlock()
	return ch
}

// Close closes every observer channel and cancels the render loop.
func (watch *Stopwatch) Close() {
	watch.mu.Lock()
	watch.render.Cancel()
	watch.render = nil
	events := watch.events
	watch.events = nil
	watch.mu.Unlock()

	for _, ch := range events {
		close(ch)
	}
}

// Start begins or resumes timing. Starting a running stopwatch is a no-op.
func (watch *Stopwatch) Start() {
	now := watch.scheduler.Clock().Now()

	watch.mu.Lock()
	if watch.phase == PhaseRunning {
		watch.mu.Unlock()
		return
	}
	watch.phase = PhaseRunning
	watch.anchor = now.Add(-watch.elapsed)
	watch.render = watch.scheduler.Request(watch.tick)
	elapsed := watch.elapsed
	watch.emitLocked(Event{
		Type:    EventStart,
		Phase:   PhaseRunning,
		Elapsed: elapsed,
		Display: FormatTime(elapsed),
		At:      now,
	})
	watch.mu.Unlock()

	watch.logger.Debug("stopwatch started", slog.Duration("elapsed", elapsed))
}

// Stop freezes the elapsed time at the value computed by the last render
// frame. Stopping a stopwatch that is not running is a no-op.
func (watch *Stopwatch) Stop() {
	now := watch.scheduler.Clock().Now()

	watch.mu.Lock()
	if watch.phase != PhaseRunning {
		watch.mu.Unlock()
		return
	}
	watch.anchor = time.Time{}
	watch.render.Cancel()
	watch.render = nil
	watch.phase = PhaseStopped
	elapsed := watch.elapsed
	watch.emitLocked(Event{
		Type:    EventStop,
		Phase:   PhaseStopped,
		Elapsed: elapsed,
		Display: FormatTime(elapsed),
		At:      now,
	})
	watch.mu.Unlock()

	watch.logger.Debug("stopwatch stopped", slog.String("elapsed", FormatTime(elapsed)))
}

// Reset clears the elapsed time. It is refused while running and reports
// whether the reset happened.
func (watch *Stopwatch) Reset() bool {
	now := watch.scheduler.Clock().Now()

	watch.mu.Lock()
	defer watch.mu.Unlock()
	if watch.phase == PhaseRunning {
		return false
	}
	watch.elapsed = 0
	watch.phase = PhaseIdle
	watch.emitLocked(Event{
		Type:    EventReset,
		Phase:   PhaseIdle,
		Display: FormatTime(0),
		At:      now,
	})
	return true
}

// Running reports whether the stopwatch is running.
func (watch *Stopwatch) Running() bool {
	watch.mu.Lock()
	defer watch.mu.Unlock()
	return watch.phase == PhaseRunning
}

// Phase returns the current phase.
func (watch *Stopwatch) Phase() Phase {
	watch.mu.Lock()
	defer watch.mu.Unlock()
	return watch.phase
}

// Elapsed returns the elapsed time, computed live while running.
func (watch *Stopwatch) Elapsed() time.Duration {
	now := watch.scheduler.Clock().Now()
	watch.mu.Lock()
	defer watch.mu.Unlock()
	if watch.phase == PhaseRunning {
		return sinceAnchor(now, watch.anchor)
	}
	return watch.elapsed
}

// Snapshot returns the state as of the last computed frame.
func (watch *Stopwatch) Snapshot() State {
	watch.mu.Lock()
	defer watch.mu.Unlock()
	return State{
		Phase:   watch.phase,
		Elapsed: watch.elapsed,
		Anchor:  watch.anchor,
	}
}

func (watch *Stopwatch) tick(now time.Time) {
	watch.mu.Lock()
	defer watch.mu.Unlock()
	if watch.phase != PhaseRunning {
		return
	}
	watch.elapsed = sinceAnchor(now, watch.anchor)
	watch.emitLocked(Event{
		Type:    EventTick,
		Phase:   PhaseRunning,
		Elapsed: watch.elapsed,
		Display: FormatTime(watch.elapsed),
		At:      now,
	})
}

func (watch *Stopwatch) emitLocked(event Event) {
	for _, ch := range watch.events {
		select {
		case ch <- event:
		default:
		}
	}
}

func sinceAnchor(now, anchor time.Time) time.Duration {
	elapsed := now.Sub(anchor)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
