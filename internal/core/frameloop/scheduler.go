package frameloop

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultFrameRate matches a typical display refresh.
const DefaultFrameRate = 60

// FrameFunc is invoked once per frame with the frame timestamp.
type FrameFunc func(now time.Time)

// Config contains runtime options for the scheduler.
type Config struct {
	FrameRate int
}

// Interval returns the frame period for the configured rate.
func (config Config) Interval() time.Duration {
	rate := config.FrameRate
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	return time.Second / time.Duration(rate)
}

// Scheduler drives every registered frame callback from a single goroutine.
// Callbacks run sequentially in registration order.
type Scheduler struct {
	mu       sync.Mutex
	clock    Clock
	options  Config
	slots    map[uint64]FrameFunc
	nextID   uint64
	cancel   context.CancelFunc
	done     chan struct{}
	lastTick time.Time
}

// New creates a scheduler. A nil clock uses wall time.
func New(clock Clock, options Config) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		clock:   clock,
		options: options,
		slots:   make(map[uint64]FrameFunc),
	}
}

// Clock returns the scheduler time source.
func (scheduler *Scheduler) Clock() Clock {
	return scheduler.clock
}

// Interval returns the frame period.
func (scheduler *Scheduler) Interval() time.Duration {
	return scheduler.options.Interval()
}

// Request registers fn to run every frame until the returned handle is cancelled.
func (scheduler *Scheduler) Request(fn FrameFunc) *Handle {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	scheduler.nextID++
	id := scheduler.nextID
	scheduler.slots[id] = fn
	return &Handle{scheduler: scheduler, id: id}
}

// Active returns the number of registered callbacks.
func (scheduler *Scheduler) Active() int {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	return len(scheduler.slots)
}

// Step runs one frame at the current clock time.
func (scheduler *Scheduler) Step() {
	scheduler.StepAt(scheduler.clock.Now())
}

// StepAt runs one frame with an explicit timestamp. Callbacks cancelled by an
// earlier callback in the same frame are skipped.
func (scheduler *Scheduler) StepAt(now time.Time) {
	scheduler.mu.Lock()
	ids := make([]uint64, 0, len(scheduler.slots))
	for id := range scheduler.slots {
		ids = append(ids, id)
	}
	scheduler.lastTick = now
	scheduler.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		scheduler.mu.Lock()
		fn, ok := scheduler.slots[id]
		scheduler.mu.Unlock()
		if !ok {
			continue
		}
		fn(now)
	}
}

// LastTick returns the timestamp of the most recent frame.
func (scheduler *Scheduler) LastTick() time.Time {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	return scheduler.lastTick
}

// Start launches the frame loop. Calling Start on a running scheduler is a no-op.
func (scheduler *Scheduler) Start(ctx context.Context) {
	scheduler.mu.Lock()
	if scheduler.cancel != nil {
		scheduler.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	scheduler.cancel = cancel
	scheduler.done = make(chan struct{})
	done := scheduler.done
	scheduler.mu.Unlock()

	go scheduler.run(runCtx, done)
}

// Stop terminates the frame loop and waits for the current frame to finish.
func (scheduler *Scheduler) Stop() {
	scheduler.mu.Lock()
	cancel := scheduler.cancel
	done := scheduler.done
	scheduler.cancel = nil
	scheduler.done = nil
	scheduler.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (scheduler *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(scheduler.options.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scheduler.Step()
		}
	}
}

func (scheduler *Scheduler) cancelSlot(id uint64) bool {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	if _, ok := scheduler.slots[id]; !ok {
		return false
	}
	delete(scheduler.slots, id)
	return true
}

func (scheduler *Scheduler) hasSlot(id uint64) bool {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	_, ok := scheduler.slots[id]
	return ok
}

// Handle identifies one registered frame callback.
type Handle struct {
	scheduler *Scheduler
	id        uint64
}

// Cancel unregisters the callback. Cancelling twice, or a nil handle, is a no-op.
func (handle *Handle) Cancel() {
	if handle == nil || handle.scheduler == nil {
		return
	}
	handle.scheduler.cancelSlot(handle.id)
}

// Active reports whether the callback is still registered.
func (handle *Handle) Active() bool {
	if handle == nil || handle.scheduler == nil {
		return false
	}
	return handle.scheduler.hasSlot(handle.id)
}
