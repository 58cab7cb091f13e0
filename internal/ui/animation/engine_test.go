package animation

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	states []bool
}

func (r *recorder) highlight(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, on)
}

func (r *recorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.states...)
}

func TestFlashTogglesAndEndsOff(t *testing.T) {
	rec := &recorder{}
	engine := New(Config{
		On:      time.Millisecond,
		Off:     time.Millisecond,
		Flashes: 2,
	}, rec.highlight)

	engine.Flash(context.Background())
	engine.Wait()

	want := []bool{true, false, true, false, false}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("states %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states %v, want %v", got, want)
		}
	}
}

func TestStopCancelsFlash(t *testing.T) {
	rec := &recorder{}
	engine := New(Config{
		On:      time.Hour,
		Off:     time.Hour,
		Flashes: 1,
	}, rec.highlight)

	engine.Flash(context.Background())
	engine.Stop()

	got := rec.snapshot()
	if len(got) == 0 || got[len(got)-1] {
		t.Fatalf("highlight left on after stop: %v", got)
	}
}
