package graph

import (
	"fmt"
	"math"
	"sync"
)

// DefaultQ is the band-pass quality factor.
const DefaultQ = 10

// BuilderOptions configures the analysis chain.
type BuilderOptions struct {
	CenterHz  float64
	Q         float64
	FFTSize   int
	Smoothing float64
}

// Builder lazily constructs the single analysis chain
// source -> band-pass -> analyzer for one media element. The chain is never
// connected to the audible destination.
type Builder struct {
	mu       sync.Mutex
	audioCtx *Context
	media    MediaElement
	options  BuilderOptions
	source   *SourceNode
	filter   *BiquadFilter
	analyzer *Analyzer
}

// NewBuilder creates a builder for media. A nil context means the platform
// has no audio processing and EnsureGraph always fails with ErrUnsupported.
func NewBuilder(audioCtx *Context, media MediaElement, options BuilderOptions) *Builder {
	if options.Q <= 0 {
		options.Q = DefaultQ
	}
	if options.FFTSize <= 0 {
		options.FFTSize = DefaultFFTSize
	}
	if options.Smoothing <= 0 {
		options.Smoothing = DefaultSmoothing
	}
	return &Builder{audioCtx: audioCtx, media: media, options: options}
}

// EnsureGraph creates whatever nodes are missing and rewires the chain. It
// is safe to call on every playback start.
func (builder *Builder) EnsureGraph() (*Graph, error) {
	builder.mu.Lock()
	defer builder.mu.Unlock()

	if builder.audioCtx == nil || builder.media == nil {
		return nil, ErrUnsupported
	}
	if reporter, ok := builder.media.(AudioTrackReporter); ok && !reporter.HasAudio() {
		return nil, ErrNoAudio
	}
	if builder.source == nil {
		source, err := builder.audioCtx.CreateMediaSource(builder.media)
		if err != nil {
			return nil, fmt.Errorf("bind media source: %w", err)
		}
		builder.source = source
	}
	if builder.filter == nil {
		builder.filter = builder.audioCtx.CreateBandpass(builder.options.CenterHz, builder.options.Q)
	}
	if builder.analyzer == nil {
		builder.analyzer = builder.audioCtx.CreateAnalyzer(builder.options.FFTSize, builder.options.Smoothing)
	}

	builder.source.Disconnect()
	builder.filter.Disconnect()
	builder.source.Connect(builder.filter)
	builder.filter.Connect(builder.analyzer)

	return &Graph{
		Source:     builder.source,
		Filter:     builder.filter,
		Analyzer:   builder.analyzer,
		SampleRate: builder.audioCtx.SampleRate(),
	}, nil
}

// Retarget moves the band-pass centre. Running monitors must be restarted
// so they pick up the new target bin.
func (builder *Builder) Retarget(hz float64) {
	builder.mu.Lock()
	defer builder.mu.Unlock()
	builder.options.CenterHz = hz
	if builder.filter != nil {
		builder.filter.SetFrequency(hz)
	}
}

// Flush clears filter and analyzer history so a new clip starts from silence.
func (builder *Builder) Flush() {
	builder.mu.Lock()
	defer builder.mu.Unlock()
	if builder.filter != nil {
		builder.filter.Reset()
	}
	if builder.analyzer != nil {
		builder.analyzer.Reset()
	}
}

// CenterHz returns the configured band-pass centre.
func (builder *Builder) CenterHz() float64 {
	builder.mu.Lock()
	defer builder.mu.Unlock()
	return builder.options.CenterHz
}

// Bound reports whether the media source has been bound.
func (builder *Builder) Bound() bool {
	builder.mu.Lock()
	defer builder.mu.Unlock()
	return builder.source != nil
}

// Graph is a wired analysis chain.
type Graph struct {
	Source     *SourceNode
	Filter     *BiquadFilter
	Analyzer   *Analyzer
	SampleRate int
}

// Pump moves newly played samples through the chain.
func (graph *Graph) Pump() int {
	return graph.Source.Pump()
}

// TargetBin returns the analyzer bin nearest hz.
func (graph *Graph) TargetBin(hz float64) int {
	return TargetBin(hz, graph.SampleRate, graph.Analyzer.FFTSize())
}

// LevelAt pumps the chain and returns the dB value at bin.
func (graph *Graph) LevelAt(bin int) float64 {
	graph.Pump()
	return graph.Analyzer.BinDecibels(bin)
}

// TargetBin computes round(hz / (sampleRate / fftSize)) clamped to
// [0, fftSize/2-1].
func TargetBin(hz float64, sampleRate, fftSize int) int {
	if sampleRate <= 0 || fftSize < 2 || math.IsNaN(hz) {
		return 0
	}
	binWidth := float64(sampleRate) / float64(fftSize)
	bin := int(math.Round(hz / binWidth))
	if bin < 0 {
		return 0
	}
	if last := fftSize/2 - 1; bin > last {
		return last
	}
	return bin
}
