package stopwatch

import "time"

// Phase represents the current stopwatch mode.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseStopped Phase = "stopped"
)

// EventType defines the type of stopwatch event.
type EventType string

const (
	EventStart EventType = "start"
	EventStop  EventType = "stop"
	EventReset EventType = "reset"
	EventTick  EventType = "tick"
)

// Event represents a stopwatch update for observers.
type Event struct {
	Type    EventType
	Phase   Phase
	Elapsed time.Duration
	Display string
	At      time.Time
}

// State is a point-in-time copy of the stopwatch.
type State struct {
	Phase   Phase
	Elapsed time.Duration
	// Anchor is the instant matching Elapsed == 0 for the current run.
	// Zero unless Phase is PhaseRunning.
	Anchor time.Time
}
