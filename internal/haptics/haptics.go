package haptics

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"racetimer/internal/audio/graph"
	"racetimer/internal/core/stopwatch"
)

// Kind names a feedback cue.
type Kind string

const (
	KindStart   Kind = "start"
	KindStop    Kind = "stop"
	KindRestart Kind = "restart"
	KindReset   Kind = "reset"
)

// Pattern returns the pulse pattern for kind in milliseconds. Even indices
// are pulses, odd indices are gaps.
func Pattern(kind Kind) []int {
	switch kind {
	case KindStart:
		return []int{40}
	case KindStop:
		return []int{50, 40, 50}
	case KindRestart:
		return []int{30, 30, 30}
	case KindReset:
		return []int{20}
	default:
		return nil
	}
}

// Vibrator drives a physical vibration motor.
type Vibrator interface {
	Vibrate(pattern []int) error
}

// Buzz parameters.
const (
	BuzzFrequencyHz = 120
	BuzzPeakGain    = 0.25
	buzzAttack      = 5 * time.Millisecond
	buzzTail        = 20 * time.Millisecond
	buzzFloor       = 0.0001
)

// RenderPattern synthesises pattern as square-wave buzzes: a 5 ms linear
// attack to the peak gain, then an exponential decay over the pulse length.
func RenderPattern(pattern []int, sampleRate int) []float32 {
	if len(pattern) == 0 || sampleRate <= 0 {
		return nil
	}
	perMs := float64(sampleRate) / 1000
	total := 0
	for _, segment := range pattern {
		total += max(segment, 0)
	}
	tail := int(buzzTail.Seconds() * float64(sampleRate))
	out := make([]float32, int(float64(total)*perMs)+tail)

	offsetMs := 0
	for i, segment := range pattern {
		segment = max(segment, 0)
		if i%2 == 0 && segment > 0 {
			renderPulse(out[int(float64(offsetMs)*perMs):], segment, sampleRate)
		}
		offsetMs += segment
	}
	return out
}

func renderPulse(dst []float32, durationMs, sampleRate int) {
	attack := buzzAttack.Seconds()
	length := float64(durationMs) / 1000
	period := 1.0 / BuzzFrequencyHz
	count := min(len(dst), int((length+buzzTail.Seconds())*float64(sampleRate)))
	for n := 0; n < count; n++ {
		t := float64(n) / float64(sampleRate)
		var gain float64
		switch {
		case t < attack:
			gain = BuzzPeakGain * t / attack
		case t < length:
			progress := (t - attack) / (length - attack)
			gain = BuzzPeakGain * math.Pow(buzzFloor/BuzzPeakGain, progress)
		default:
			gain = 0
		}
		wave := 1.0
		if math.Mod(t, period) >= period/2 {
			wave = -1
		}
		dst[n] += float32(wave * gain)
	}
}

// Haptics renders feedback cues on the best available output.
type Haptics struct {
	mu       sync.Mutex
	vibrator Vibrator
	shared   *graph.Shared
	logger   *slog.Logger
	enabled  bool
}

// New creates haptics. A nil vibrator falls back to buzzing through the
// shared audio context; with neither available cues are dropped.
func New(vibrator Vibrator, shared *graph.Shared, logger *slog.Logger) *Haptics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Haptics{vibrator: vibrator, shared: shared, logger: logger, enabled: true}
}

// SetEnabled toggles feedback.
func (haptics *Haptics) SetEnabled(enabled bool) {
	haptics.mu.Lock()
	defer haptics.mu.Unlock()
	haptics.enabled = enabled
}

// Feedback plays the cue for kind.
func (haptics *Haptics) Feedback(kind Kind) {
	pattern := Pattern(kind)
	haptics.mu.Lock()
	enabled := haptics.enabled
	haptics.mu.Unlock()
	if !enabled || pattern == nil {
		return
	}

	if haptics.vibrator != nil {
		err := haptics.vibrator.Vibrate(pattern)
		if err == nil {
			return
		}
		haptics.logger.Debug("vibration failed, falling back to buzz", slog.String("error", err.Error()))
	}
	if haptics.shared == nil {
		return
	}
	audio := haptics.shared.Context()
	sink, err := audio.Destination()
	if err != nil {
		haptics.logger.Debug("no audible output for haptics", slog.String("error", err.Error()))
		return
	}
	sink.Enqueue(RenderPattern(pattern, audio.SampleRate()))
}

// Follow plays cues for stopwatch transitions until events closes or ctx ends.
func (haptics *Haptics) Follow(ctx context.Context, events <-chan stopwatch.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if kind, ok := kindFor(event.Type); ok {
				haptics.Feedback(kind)
			}
		}
	}
}

func kindFor(eventType stopwatch.EventType) (Kind, bool) {
	switch eventType {
	case stopwatch.EventStart:
		return KindStart, true
	case stopwatch.EventStop:
		return KindStop, true
	case stopwatch.EventReset:
		return KindReset, true
	default:
		return "", false
	}
}
