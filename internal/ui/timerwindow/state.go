package timerwindow

import (
	"racetimer/internal/core/onset"
	"racetimer/internal/core/stopwatch"
)

// Controls reports which timer buttons accept input.
type Controls struct {
	Start bool
	Stop  bool
	Reset bool
}

// ControlsFor returns the button states for a stopwatch phase. Reset is
// offered only once the watch has stopped, so it can never interrupt a run.
func ControlsFor(phase stopwatch.Phase) Controls {
	switch phase {
	case stopwatch.PhaseRunning:
		return Controls{Stop: true}
	case stopwatch.PhaseStopped:
		return Controls{Start: true, Reset: true}
	default:
		return Controls{Start: true}
	}
}

// StatusText describes what the auto-start detector is doing.
func StatusText(loaded, enabled bool, state onset.State, analysisErr error) string {
	switch {
	case !loaded:
		return "Open a race clip to begin"
	case analysisErr != nil:
		return "No usable audio track, start the timer manually"
	case !enabled:
		return "Auto-start off"
	case state == onset.StateFired:
		return "Auto-started on tone"
	case state == onset.StateAbove:
		return "Tone detected, holding"
	default:
		return "Listening for the start tone"
	}
}
