package media

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"racetimer/internal/audio/graph"
	"racetimer/internal/core/frameloop"
)

// ErrNoMedia is returned by Play when nothing is loaded.
var ErrNoMedia = errors.New("no media loaded")

// EventType names a playback event.
type EventType string

const (
	EventPlay           EventType = "play"
	EventPause          EventType = "pause"
	EventEnded          EventType = "ended"
	EventLoadedMetadata EventType = "loadedmetadata"
	EventError          EventType = "error"
)

// Event describes a playback transition.
type Event struct {
	Type     EventType
	Position time.Duration
	Duration time.Duration
	Name     string
	Err      error
}

// Listener receives playback events.
type Listener func(Event)

// Options configures a player.
type Options struct {
	// SampleRate is the rate clips are decoded to. It should match the
	// analysis context.
	SampleRate int
	// FFmpegPath locates ffmpeg for non-WAV files.
	FFmpegPath string
}

var playerSeq atomic.Uint64

// Player is a headless media element: it owns a decoded audio track and a
// playback clock driven by the frame scheduler.
type Player struct {
	mu        sync.Mutex
	id        string
	scheduler *frameloop.Scheduler
	options   Options
	logger    *slog.Logger

	clip     *Clip
	playing  bool
	base     time.Duration
	anchor   time.Time
	handle   *frameloop.Handle
	output   graph.Sink
	rendered int

	listeners map[EventType]map[uint64]Listener
	nextSub   uint64
}

// NewPlayer creates an empty player.
func NewPlayer(scheduler *frameloop.Scheduler, options Options, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	if options.SampleRate <= 0 {
		options.SampleRate = graph.DefaultSampleRate
	}
	return &Player{
		id:        "player-" + strconv.FormatUint(playerSeq.Add(1), 10),
		scheduler: scheduler,
		options:   options,
		logger:    logger,
		listeners: make(map[EventType]map[uint64]Listener),
	}
}

// ID identifies the player as a media element.
func (player *Player) ID() string {
	return player.id
}

// Subscribe registers fn for kind and returns a function that removes it.
func (player *Player) Subscribe(kind EventType, fn Listener) func() {
	player.mu.Lock()
	defer player.mu.Unlock()
	player.nextSub++
	id := player.nextSub
	if player.listeners[kind] == nil {
		player.listeners[kind] = make(map[uint64]Listener)
	}
	player.listeners[kind][id] = fn
	return func() {
		player.mu.Lock()
		defer player.mu.Unlock()
		delete(player.listeners[kind], id)
	}
}

// SetOutput routes played samples to an audible sink. Nil mutes playback.
func (player *Player) SetOutput(sink graph.Sink) {
	player.mu.Lock()
	defer player.mu.Unlock()
	player.output = sink
}

// Load decodes path and replaces the current clip. On failure an error event
// is emitted and the previous clip stays loaded.
func (player *Player) Load(ctx context.Context, path string) error {
	clip, err := LoadFile(ctx, path, player.options.FFmpegPath, player.options.SampleRate)
	if err != nil {
		player.logger.Warn("media load failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		player.emit(Event{Type: EventError, Err: err})
		return err
	}
	player.LoadClip(clip)
	return nil
}

// LoadClip installs an already decoded clip, stopping any playback.
func (player *Player) LoadClip(clip *Clip) {
	player.mu.Lock()
	player.handle.Cancel()
	player.handle = nil
	player.clip = clip
	player.playing = false
	player.base = 0
	player.anchor = time.Time{}
	player.rendered = 0
	event := Event{Type: EventLoadedMetadata, Duration: clip.Duration(), Name: clip.Name}
	player.mu.Unlock()

	player.logger.Info("media loaded",
		slog.String("name", clip.Name),
		slog.Duration("duration", event.Duration),
		slog.Int("sample_rate", clip.SampleRate),
	)
	player.emit(event)
}

// Loaded reports whether a clip is loaded.
func (player *Player) Loaded() bool {
	player.mu.Lock()
	defer player.mu.Unlock()
	return player.clip != nil
}

// HasAudio reports whether the loaded clip has any samples.
func (player *Player) HasAudio() bool {
	player.mu.Lock()
	defer player.mu.Unlock()
	return player.clip != nil && len(player.clip.Samples) > 0
}

// Play starts playback. Playing an ended clip restarts it from the top.
func (player *Player) Play() error {
	now := player.scheduler.Clock().Now()

	player.mu.Lock()
	if player.clip == nil {
		player.mu.Unlock()
		return ErrNoMedia
	}
	if player.playing {
		player.mu.Unlock()
		return nil
	}
	if player.base >= player.clip.Duration() {
		player.base = 0
	}
	player.playing = true
	player.anchor = now
	player.rendered = player.sampleAt(player.base)
	player.handle = player.scheduler.Request(player.frame)
	event := player.eventLocked(EventPlay, player.base)
	player.mu.Unlock()

	player.emit(event)
	return nil
}

// Pause freezes the playhead. Pausing a paused player is a no-op.
func (player *Player) Pause() {
	now := player.scheduler.Clock().Now()

	player.mu.Lock()
	if !player.playing {
		player.mu.Unlock()
		return
	}
	player.base = player.positionLocked(now)
	player.stopLocked()
	event := player.eventLocked(EventPause, player.base)
	player.mu.Unlock()

	player.emit(event)
}

// Restart seeks to the start and plays.
func (player *Player) Restart() error {
	player.Seek(0)
	return player.Play()
}

// Seek moves the playhead, clamped to the clip.
func (player *Player) Seek(position time.Duration) {
	now := player.scheduler.Clock().Now()

	player.mu.Lock()
	defer player.mu.Unlock()
	if player.clip == nil {
		return
	}
	if position < 0 {
		position = 0
	}
	if duration := player.clip.Duration(); position > duration {
		position = duration
	}
	player.base = position
	player.rendered = player.sampleAt(position)
	if player.playing {
		player.anchor = now
	}
}

// Position returns the current playhead.
func (player *Player) Position() time.Duration {
	now := player.scheduler.Clock().Now()
	player.mu.Lock()
	defer player.mu.Unlock()
	return player.positionLocked(now)
}

// Duration returns the clip length, or zero when nothing is loaded.
func (player *Player) Duration() time.Duration {
	player.mu.Lock()
	defer player.mu.Unlock()
	return player.clip.Duration()
}

// Paused reports whether playback is stopped.
func (player *Player) Paused() bool {
	player.mu.Lock()
	defer player.mu.Unlock()
	return !player.playing
}

// Name returns the loaded clip name.
func (player *Player) Name() string {
	player.mu.Lock()
	defer player.mu.Unlock()
	if player.clip == nil {
		return ""
	}
	return player.clip.Name
}

// PlayheadSample returns the index of the next sample to be played.
func (player *Player) PlayheadSample() int {
	now := player.scheduler.Clock().Now()
	player.mu.Lock()
	defer player.mu.Unlock()
	if player.clip == nil {
		return 0
	}
	return player.sampleAt(player.positionLocked(now))
}

// CopySamples copies decoded samples starting at from.
func (player *Player) CopySamples(dst []float64, from int) int {
	player.mu.Lock()
	defer player.mu.Unlock()
	if player.clip == nil || from < 0 || from >= len(player.clip.Samples) {
		return 0
	}
	return copy(dst, player.clip.Samples[from:])
}

func (player *Player) frame(now time.Time) {
	player.mu.Lock()
	if !player.playing || player.clip == nil {
		player.mu.Unlock()
		return
	}
	position := player.positionLocked(now)
	player.renderLocked(player.sampleAt(position))

	if position < player.clip.Duration() {
		player.mu.Unlock()
		return
	}
	player.base = player.clip.Duration()
	player.stopLocked()
	event := player.eventLocked(EventEnded, player.base)
	player.mu.Unlock()

	player.emit(event)
}

func (player *Player) renderLocked(upTo int) {
	if player.output == nil || upTo <= player.rendered {
		player.rendered = upTo
		return
	}
	block := player.clip.Samples[player.rendered:min(upTo, len(player.clip.Samples))]
	out := make([]float32, len(block))
	for i, v := range block {
		out[i] = float32(v)
	}
	player.output.Stream(out)
	player.rendered = upTo
}

func (player *Player) stopLocked() {
	player.playing = false
	player.anchor = time.Time{}
	player.handle.Cancel()
	player.handle = nil
}

func (player *Player) positionLocked(now time.Time) time.Duration {
	if player.clip == nil {
		return 0
	}
	position := player.base
	if player.playing {
		position += now.Sub(player.anchor)
	}
	if duration := player.clip.Duration(); position > duration {
		return duration
	}
	if position < 0 {
		return 0
	}
	return position
}

func (player *Player) sampleAt(position time.Duration) int {
	if player.clip == nil {
		return 0
	}
	index := int(math.Round(position.Seconds() * float64(player.clip.SampleRate)))
	if index > len(player.clip.Samples) {
		return len(player.clip.Samples)
	}
	return index
}

func (player *Player) eventLocked(kind EventType, position time.Duration) Event {
	event := Event{Type: kind, Position: position}
	if player.clip != nil {
		event.Duration = player.clip.Duration()
		event.Name = player.clip.Name
	}
	return event
}

func (player *Player) emit(event Event) {
	player.mu.Lock()
	listeners := make([]Listener, 0, len(player.listeners[event.Type]))
	ids := make([]uint64, 0, len(player.listeners[event.Type]))
	for id := range player.listeners[event.Type] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, player.listeners[event.Type][id])
	}
	player.mu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}
