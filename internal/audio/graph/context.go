package graph

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnsupported indicates no audio processing is available.
	ErrUnsupported = errors.New("audio processing unsupported")
	// ErrSourceAlreadyBound indicates a media element already feeds a source node.
	ErrSourceAlreadyBound = errors.New("media element already bound to a source node")
	// ErrNoAudio indicates the media element carries no audio track.
	ErrNoAudio = errors.New("media has no audio track")
)

// DefaultSampleRate is used when the context options leave it unset.
const DefaultSampleRate = 48000

// Sink renders audible samples. Stream continues the playback track after
// the previously streamed block; Enqueue starts a one-shot sound mixed over it.
type Sink interface {
	Stream(samples []float32)
	Enqueue(samples []float32)
	Close() error
}

// SinkFactory opens the audible output for a sample rate.
type SinkFactory func(sampleRate int) (Sink, error)

// ContextOptions configures a processing context.
type ContextOptions struct {
	SampleRate int
	// Output opens the audible destination on first use. Nil means the
	// platform has no audio output.
	Output SinkFactory
}

// Context is the processing context shared by analysis and sound generation.
type Context struct {
	mu         sync.Mutex
	sampleRate int
	output     SinkFactory
	sinkOnce   sync.Once
	sink       Sink
	sinkErr    error
	bound      map[string]*SourceNode
}

// NewContext creates a processing context.
func NewContext(options ContextOptions) *Context {
	if options.SampleRate <= 0 {
		options.SampleRate = DefaultSampleRate
	}
	return &Context{
		sampleRate: options.SampleRate,
		output:     options.Output,
		bound:      make(map[string]*SourceNode),
	}
}

// SampleRate returns the context sample rate in Hz.
func (audioCtx *Context) SampleRate() int {
	return audioCtx.sampleRate
}

// Destination opens the audible output once and returns it on every call.
func (audioCtx *Context) Destination() (Sink, error) {
	audioCtx.sinkOnce.Do(func() {
		if audioCtx.output == nil {
			audioCtx.sinkErr = ErrUnsupported
			return
		}
		sink, err := audioCtx.output(audioCtx.sampleRate)
		if err != nil {
			audioCtx.sinkErr = fmt.Errorf("open audio output: %w", err)
			return
		}
		audioCtx.mu.Lock()
		audioCtx.sink = sink
		audioCtx.mu.Unlock()
	})
	return audioCtx.sink, audioCtx.sinkErr
}

// CreateMediaSource binds a media element to a new source node. A media
// element may be bound only once for the lifetime of the context.
func (audioCtx *Context) CreateMediaSource(media MediaElement) (*SourceNode, error) {
	audioCtx.mu.Lock()
	defer audioCtx.mu.Unlock()
	if _, ok := audioCtx.bound[media.ID()]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceAlreadyBound, media.ID())
	}
	source := newSourceNode(media)
	audioCtx.bound[media.ID()] = source
	return source, nil
}

// CreateBandpass creates a band-pass biquad centred on hz.
func (audioCtx *Context) CreateBandpass(hz, q float64) *BiquadFilter {
	return newBandpass(float64(audioCtx.sampleRate), hz, q)
}

// CreateAnalyzer creates a spectrum analyzer.
func (audioCtx *Context) CreateAnalyzer(fftSize int, smoothing float64) *Analyzer {
	return newAnalyzer(fftSize, smoothing)
}

// Close releases the audible output if it was opened.
func (audioCtx *Context) Close() error {
	audioCtx.mu.Lock()
	sink := audioCtx.sink
	audioCtx.mu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.Close()
}

// Shared creates one Context on first use and hands out the same instance afterwards.
type Shared struct {
	mu       sync.Mutex
	options  ContextOptions
	audioCtx *Context
}

// NewShared prepares a lazily created context.
func NewShared(options ContextOptions) *Shared {
	return &Shared{options: options}
}

// Context returns the shared context, creating it on first call.
func (shared *Shared) Context() *Context {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.audioCtx == nil {
		shared.audioCtx = NewContext(shared.options)
	}
	return shared.audioCtx
}

// Created reports whether the context exists yet.
func (shared *Shared) Created() bool {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	return shared.audioCtx != nil
}

// Close releases the context if it was created.
func (shared *Shared) Close() error {
	shared.mu.Lock()
	audioCtx := shared.audioCtx
	shared.mu.Unlock()
	if audioCtx == nil {
		return nil
	}
	return audioCtx.Close()
}
