package animation

import (
	"context"
	"sync"
	"time"
)

// Config contains flash timing values.
type Config struct {
	On      time.Duration
	Off     time.Duration
	Flashes int
}

// DefaultConfig returns the flash used when the timer starts on its own.
func DefaultConfig() Config {
	return Config{
		On:      120 * time.Millisecond,
		Off:     80 * time.Millisecond,
		Flashes: 3,
	}
}

// Engine toggles a highlight on and off. Only one sequence runs at a time.
type Engine struct {
	mu        sync.Mutex
	config    Config
	highlight func(on bool)
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a new animation engine. highlight is called from the engine
// goroutine; UI callers wrap it in fyne.Do.
func New(config Config, highlight func(on bool)) *Engine {
	return &Engine{
		config:    config,
		highlight: highlight,
	}
}

// Flash runs the configured number of flashes and leaves the highlight off.
func (engine *Engine) Flash(ctx context.Context) {
	engine.start(ctx, func(runCtx context.Context) {
		defer engine.highlight(false)
		for i := 0; i < engine.config.Flashes; i++ {
			engine.highlight(true)
			if !pause(runCtx, engine.config.On) {
				return
			}
			engine.highlight(false)
			if !pause(runCtx, engine.config.Off) {
				return
			}
		}
	})
}

// Stop terminates any active sequence and waits for it to finish.
func (engine *Engine) Stop() {
	engine.mu.Lock()
	cancel, done := engine.cancel, engine.done
	engine.cancel = nil
	engine.done = nil
	engine.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Wait blocks until the active sequence ends.
func (engine *Engine) Wait() {
	engine.mu.Lock()
	done := engine.done
	engine.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (engine *Engine) start(parent context.Context, run func(context.Context)) {
	engine.Stop()

	engine.mu.Lock()
	runCtx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	engine.cancel = cancel
	engine.done = done
	engine.mu.Unlock()

	go func() {
		defer close(done)
		run(runCtx)
	}()
}

func pause(ctx context.Context, duration time.Duration) bool {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
