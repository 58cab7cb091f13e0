package controller

import (
	"math"
	"testing"
	"time"

	"racetimer/internal/audio/level"
	"racetimer/internal/core/frameloop"
	"racetimer/internal/core/onset"
	"racetimer/internal/core/stopwatch"
	"racetimer/internal/media"
	"racetimer/internal/settings"
	"racetimer/internal/storage"
)

const sampleRate = 48000

func raceClip(silence, tone time.Duration) *media.Clip {
	quiet := int(silence.Seconds() * sampleRate)
	total := quiet + int(tone.Seconds()*sampleRate)
	samples := make([]float64, total)
	for i := quiet; i < total; i++ {
		samples[i] = 0.5 * math.Sin(2*math.Pi*2500*float64(i)/sampleRate)
	}
	return &media.Clip{Name: "race.wav", Samples: samples, SampleRate: sampleRate}
}

func newTestController(t *testing.T, enabled bool) (*Controller, *frameloop.ManualClock) {
	t.Helper()
	store := settings.New(storage.NewMemory(nil), nil)
	store.Load()
	store.SetEnabled(enabled)
	clock := frameloop.NewManualClock(time.Unix(1000, 0))
	ctrl := New(store, Options{SampleRate: sampleRate, Clock: clock}, nil)
	t.Cleanup(func() { _ = ctrl.Close() })
	return ctrl, clock
}

func stepFrames(ctrl *Controller, clock *frameloop.ManualClock, frames int) {
	for i := 0; i < frames; i++ {
		clock.Advance(time.Second / 60)
		ctrl.Scheduler().Step()
	}
}

func TestToneAutoStartsStopwatchOnce(t *testing.T) {
	ctrl, clock := newTestController(t, true)
	events := ctrl.Stopwatch().Subscribe(256)
	var firedAt time.Time
	ctrl.OnAutoStart(func(at time.Time) { firedAt = at })

	ctrl.LoadClip(raceClip(500*time.Millisecond, 2*time.Second))
	begin := clock.Now()
	ctrl.TogglePlay()
	stepFrames(ctrl, clock, 90)

	if !ctrl.Stopwatch().Running() {
		t.Fatal("stopwatch not started by tone")
	}
	hold := ctrl.Settings().Settings().Hold()
	offset := firedAt.Sub(begin)
	if offset < 500*time.Millisecond+hold || offset > 500*time.Millisecond+hold+100*time.Millisecond {
		t.Fatalf("auto-start at %v, expected shortly after onset plus hold", offset)
	}
	if ctrl.DetectorState() != onset.StateFired {
		t.Fatalf("detector state %s", ctrl.DetectorState())
	}

	starts := 0
	for len(events) > 0 {
		if event := <-events; event.Type == stopwatch.EventStart {
			starts++
		}
	}
	if starts != 1 {
		t.Fatalf("expected one start event, got %d", starts)
	}
}

func TestManualStopDoesNotRetrigger(t *testing.T) {
	ctrl, clock := newTestController(t, true)
	ctrl.LoadClip(raceClip(100*time.Millisecond, 2*time.Second))
	ctrl.TogglePlay()
	stepFrames(ctrl, clock, 30)
	if !ctrl.Stopwatch().Running() {
		t.Fatal("expected auto-start")
	}

	ctrl.StopTimer()
	stepFrames(ctrl, clock, 30)
	if ctrl.Stopwatch().Running() {
		t.Fatal("detector fired twice for one load")
	}

	ctrl.LoadClip(raceClip(100*time.Millisecond, 2*time.Second))
	if ctrl.DetectorState() != onset.StateIdle {
		t.Fatalf("new load should reset detector, got %s", ctrl.DetectorState())
	}
	if !ctrl.ResetTimer() {
		t.Fatal("reset refused on stopped stopwatch")
	}
	ctrl.TogglePlay()
	stepFrames(ctrl, clock, 30)
	if !ctrl.Stopwatch().Running() {
		t.Fatal("expected auto-start on the new clip")
	}
}

func TestDisabledDetectorLeavesStopwatchIdle(t *testing.T) {
	ctrl, clock := newTestController(t, false)
	var readings []level.Reading
	ctrl.OnLevel(func(reading level.Reading) { readings = append(readings, reading) })

	ctrl.LoadClip(raceClip(0, time.Second))
	ctrl.TogglePlay()
	stepFrames(ctrl, clock, 20)

	if ctrl.Stopwatch().Running() {
		t.Fatal("disabled detector started the stopwatch")
	}
	if len(readings) != 20 {
		t.Fatalf("level meter should run while disabled, got %d readings", len(readings))
	}
	if readings[len(readings)-1].Percent <= 50 {
		t.Fatalf("meter too low: %+v", readings[len(readings)-1])
	}

	ctrl.TogglePlay()
	if active := ctrl.Scheduler().Active(); active != 0 {
		t.Fatalf("pause left %d loops running", active)
	}
}

func TestEnablingWhilePlayingStartsDetector(t *testing.T) {
	ctrl, clock := newTestController(t, false)
	ctrl.LoadClip(raceClip(0, 2*time.Second))
	ctrl.TogglePlay()
	stepFrames(ctrl, clock, 10)

	ctrl.Settings().SetEnabled(true)
	stepFrames(ctrl, clock, 20)
	if !ctrl.Stopwatch().Running() {
		t.Fatal("enabling mid-playback did not arm the detector")
	}
}

func TestRetargetMovesMeterBin(t *testing.T) {
	ctrl, clock := newTestController(t, false)
	var last level.Reading
	ctrl.OnLevel(func(reading level.Reading) { last = reading })

	ctrl.LoadClip(raceClip(0, time.Second))
	ctrl.TogglePlay()
	stepFrames(ctrl, clock, 2)
	if last.Bin != 107 {
		t.Fatalf("unexpected initial bin %d", last.Bin)
	}

	ctrl.Settings().SetFrequency(4000)
	stepFrames(ctrl, clock, 1)
	if last.Bin != 171 {
		t.Fatalf("bin not retargeted: %d", last.Bin)
	}
}

func TestStartTimerStartsPausedPlayback(t *testing.T) {
	ctrl, _ := newTestController(t, false)
	ctrl.StartTimer()
	if !ctrl.Stopwatch().Running() {
		t.Fatal("timer should start without media")
	}
	ctrl.StopTimer()

	ctrl.LoadClip(raceClip(0, time.Second))
	ctrl.StartTimer()
	if ctrl.Player().Paused() {
		t.Fatal("start should also play a paused clip")
	}
}

func TestRestartReplaysFromTop(t *testing.T) {
	ctrl, clock := newTestController(t, false)
	ctrl.LoadClip(raceClip(0, time.Second))
	ctrl.TogglePlay()
	stepFrames(ctrl, clock, 30)

	ctrl.Restart()
	if ctrl.Player().Paused() || ctrl.Player().Position() != 0 {
		t.Fatalf("restart should play from zero, at %v", ctrl.Player().Position())
	}
}

func TestClipWithoutAudioDegrades(t *testing.T) {
	ctrl, clock := newTestController(t, true)
	ctrl.LoadClip(&media.Clip{Name: "mute", SampleRate: sampleRate})
	ctrl.TogglePlay()
	stepFrames(ctrl, clock, 5)
	if ctrl.AnalysisError() == nil {
		t.Fatal("expected analysis error for a clip without audio")
	}
	if ctrl.Stopwatch().Running() {
		t.Fatal("stopwatch started without audio")
	}
}

func TestPauseMidHoldKeepsToneOnset(t *testing.T) {
	ctrl, clock := newTestController(t, true)
	ctrl.Settings().SetHold(300)
	ctrl.LoadClip(raceClip(0, 3*time.Second))
	ctrl.TogglePlay()

	for i := 0; i < 60 && ctrl.DetectorState() != onset.StateAbove; i++ {
		stepFrames(ctrl, clock, 1)
	}
	if ctrl.DetectorState() != onset.StateAbove {
		t.Fatalf("tone never crossed the threshold, state %s", ctrl.DetectorState())
	}
	stepFrames(ctrl, clock, 3)

	ctrl.TogglePlay()
	if !ctrl.Player().Paused() {
		t.Fatal("expected paused playback")
	}
	if active := ctrl.Scheduler().Active(); active != 0 {
		t.Fatalf("pause left %d loops running", active)
	}
	if ctrl.DetectorState() != onset.StateAbove {
		t.Fatalf("pause dropped the hold, state %s", ctrl.DetectorState())
	}
	stepFrames(ctrl, clock, 60)
	if ctrl.Stopwatch().Running() || ctrl.DetectorState() != onset.StateAbove {
		t.Fatalf("detector advanced while paused, state %s", ctrl.DetectorState())
	}

	ctrl.TogglePlay()
	for i := 0; i < 30 && !ctrl.Stopwatch().Running(); i++ {
		stepFrames(ctrl, clock, 1)
	}
	if !ctrl.Stopwatch().Running() {
		t.Fatal("resumed tone did not start the stopwatch")
	}
	if ctrl.DetectorState() != onset.StateFired {
		t.Fatalf("detector state %s after firing", ctrl.DetectorState())
	}

	ctrl.Seek(0)
	stepFrames(ctrl, clock, 30)
	if ctrl.DetectorState() != onset.StateFired {
		t.Fatalf("seek cleared the fired flag, state %s", ctrl.DetectorState())
	}
}

func TestObserversAddedDuringPublishWaitForNextReading(t *testing.T) {
	ctrl, clock := newTestController(t, false)
	var first, second, late int
	ctrl.OnLevel(func(level.Reading) {
		first++
		if first == 1 {
			ctrl.OnLevel(func(level.Reading) { late++ })
		}
	})
	ctrl.OnLevel(func(level.Reading) { second++ })

	ctrl.LoadClip(raceClip(0, time.Second))
	ctrl.TogglePlay()
	stepFrames(ctrl, clock, 1)
	if first != 1 || second != 1 || late != 0 {
		t.Fatalf("first frame: first=%d second=%d late=%d", first, second, late)
	}
	stepFrames(ctrl, clock, 1)
	if first != 2 || second != 2 || late != 1 {
		t.Fatalf("second frame: first=%d second=%d late=%d", first, second, late)
	}
}

func TestEveryAutoStartObserverIsNotified(t *testing.T) {
	ctrl, clock := newTestController(t, true)
	var fired []time.Time
	ctrl.OnAutoStart(func(at time.Time) { fired = append(fired, at) })
	ctrl.OnAutoStart(func(at time.Time) { fired = append(fired, at) })

	ctrl.LoadClip(raceClip(0, 2*time.Second))
	ctrl.TogglePlay()
	stepFrames(ctrl, clock, 30)

	if len(fired) != 2 || !fired[0].Equal(fired[1]) {
		t.Fatalf("expected both observers once with the same instant, got %v", fired)
	}
}
