package stopwatch

import (
	"math"
	"testing"
	"time"

	"racetimer/internal/core/frameloop"
)

const frame = 16 * time.Millisecond

func newTestWatch() (*Stopwatch, *frameloop.Scheduler, *frameloop.ManualClock) {
	clock := frameloop.NewManualClock(time.Unix(1000, 0))
	scheduler := frameloop.New(clock, frameloop.Config{})
	return New(scheduler, nil), scheduler, clock
}

func runFor(scheduler *frameloop.Scheduler, clock *frameloop.ManualClock, d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += frame {
		step := frame
		if d-elapsed < frame {
			step = d - elapsed
		}
		clock.Advance(step)
		scheduler.Step()
	}
}

func TestFormatTime(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00.000"},
		{61234 * time.Millisecond, "01:01.234"},
		{-5 * time.Millisecond, "00:00.000"},
		{59*time.Second + 999*time.Millisecond, "00:59.999"},
		{75 * time.Minute, "75:00.000"},
		{1500 * time.Microsecond, "00:00.001"},
	}
	for _, tc := range cases {
		if got := FormatTime(tc.in); got != tc.want {
			t.Fatalf("FormatTime(%v) = %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatMillisClampsNonFinite(t *testing.T) {
	for _, in := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -5} {
		if got := FormatMillis(in); got != "00:00.000" {
			t.Fatalf("FormatMillis(%v) = %q", in, got)
		}
	}
	if got := FormatMillis(61234.9); got != "01:01.234" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestResumeAccumulatesAcrossStops(t *testing.T) {
	watch, scheduler, clock := newTestWatch()

	watch.Start()
	runFor(scheduler, clock, 500*time.Millisecond)
	watch.Stop()

	clock.Advance(3 * time.Second)
	scheduler.Step()

	watch.Start()
	runFor(scheduler, clock, 250*time.Millisecond)
	watch.Stop()

	got := watch.Elapsed()
	want := 750 * time.Millisecond
	if diff := got - want; diff < -frame || diff > frame {
		t.Fatalf("elapsed %v want %v within one frame", got, want)
	}
	if watch.Phase() != PhaseStopped {
		t.Fatalf("unexpected phase %s", watch.Phase())
	}
}

func TestStartIsNoOpWhileRunning(t *testing.T) {
	watch, scheduler, clock := newTestWatch()
	events := watch.Subscribe(16)

	watch.Start()
	runFor(scheduler, clock, 100*time.Millisecond)
	anchor := watch.Snapshot().Anchor
	watch.Start()

	if !watch.Snapshot().Anchor.Equal(anchor) {
		t.Fatal("second start moved the anchor")
	}
	if scheduler.Active() != 1 {
		t.Fatalf("expected a single render slot, got %d", scheduler.Active())
	}
	starts := 0
	for len(events) > 0 {
		if (<-events).Type == EventStart {
			starts++
		}
	}
	if starts != 1 {
		t.Fatalf("expected one start event, got %d", starts)
	}
}

func TestStopCancelsRenderLoop(t *testing.T) {
	watch, scheduler, clock := newTestWatch()
	watch.Start()
	runFor(scheduler, clock, 50*time.Millisecond)
	watch.Stop()

	if scheduler.Active() != 0 {
		t.Fatalf("render slot still active")
	}
	frozen := watch.Elapsed()
	runFor(scheduler, clock, time.Second)
	if watch.Elapsed() != frozen {
		t.Fatal("elapsed changed after stop")
	}
	if !watch.Snapshot().Anchor.IsZero() {
		t.Fatal("anchor must be cleared when stopped")
	}
}

func TestStopWhenIdleIsNoOp(t *testing.T) {
	watch, _, _ := newTestWatch()
	events := watch.Subscribe(4)
	watch.Stop()
	if watch.Phase() != PhaseIdle {
		t.Fatalf("unexpected phase %s", watch.Phase())
	}
	if len(events) != 0 {
		t.Fatal("stop on idle emitted an event")
	}
}

func TestResetRefusedWhileRunning(t *testing.T) {
	watch, scheduler, clock := newTestWatch()
	watch.Start()
	runFor(scheduler, clock, 200*time.Millisecond)
	before := watch.Snapshot()

	if watch.Reset() {
		t.Fatal("reset must be refused while running")
	}
	after := watch.Snapshot()
	if after.Phase != PhaseRunning || after.Elapsed != before.Elapsed {
		t.Fatalf("reset changed running state: %+v -> %+v", before, after)
	}
}

func TestResetAfterStop(t *testing.T) {
	watch, scheduler, clock := newTestWatch()
	events := watch.Subscribe(64)
	watch.Start()
	runFor(scheduler, clock, 200*time.Millisecond)
	watch.Stop()

	if !watch.Reset() {
		t.Fatal("reset refused after stop")
	}
	if watch.Elapsed() != 0 || watch.Phase() != PhaseIdle {
		t.Fatalf("unexpected state after reset: %+v", watch.Snapshot())
	}

	var last Event
	for len(events) > 0 {
		last = <-events
	}
	if last.Type != EventReset || last.Display != "00:00.000" {
		t.Fatalf("unexpected last event: %+v", last)
	}
}

func TestTickEventsCarryDisplay(t *testing.T) {
	watch, scheduler, clock := newTestWatch()
	events := watch.Subscribe(8)
	watch.Start()
	<-events

	clock.Advance(1234 * time.Millisecond)
	scheduler.Step()

	event := <-events
	if event.Type != EventTick || event.Display != "00:01.234" {
		t.Fatalf("unexpected tick: %+v", event)
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	watch, scheduler, _ := newTestWatch()
	events := watch.Subscribe(1)
	watch.Start()
	watch.Close()
	for range events {
	}
	if scheduler.Active() != 0 {
		t.Fatal("close left the render slot registered")
	}
}

func TestStopFreezesAtLastRenderedFrame(t *testing.T) {
	watch, scheduler, clock := newTestWatch()
	events := watch.Subscribe(64)

	watch.Start()
	runFor(scheduler, clock, 160*time.Millisecond)
	rendered := watch.Snapshot().Elapsed

	// The clock moves on without a frame being rendered.
	clock.Advance(10 * time.Millisecond)
	watch.Stop()

	if got := watch.Elapsed(); got != rendered {
		t.Fatalf("stop elapsed %v want last rendered %v", got, rendered)
	}
	var stop Event
	for len(events) > 0 {
		if event := <-events; event.Type == EventStop {
			stop = event
		}
	}
	if stop.Elapsed != rendered || stop.Display != FormatTime(rendered) {
		t.Fatalf("stop event carried %v (%s)", stop.Elapsed, stop.Display)
	}
}
