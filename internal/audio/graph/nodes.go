package graph

import (
	"math"
	"sync"
)

// MediaElement is the audio side of a media player.
type MediaElement interface {
	// ID identifies the element for the lifetime of the process.
	ID() string
	// PlayheadSample is the index of the next sample to be played.
	PlayheadSample() int
	// CopySamples copies decoded mono samples starting at from and returns
	// the number copied.
	CopySamples(dst []float64, from int) int
}

// AudioTrackReporter is implemented by media elements that know whether the
// loaded clip has audio.
type AudioTrackReporter interface {
	HasAudio() bool
}

// Receiver accepts blocks of samples from an upstream node.
type Receiver interface {
	Receive(block []float64)
}

type outputs struct {
	linkMu    sync.Mutex
	receivers []Receiver
}

func (out *outputs) connect(receiver Receiver) {
	out.linkMu.Lock()
	defer out.linkMu.Unlock()
	for _, existing := range out.receivers {
		if existing == receiver {
			return
		}
	}
	out.receivers = append(out.receivers, receiver)
}

func (out *outputs) disconnect() {
	out.linkMu.Lock()
	out.receivers = nil
	out.linkMu.Unlock()
}

func (out *outputs) count() int {
	out.linkMu.Lock()
	defer out.linkMu.Unlock()
	return len(out.receivers)
}

func (out *outputs) push(block []float64) {
	out.linkMu.Lock()
	receivers := append([]Receiver(nil), out.receivers...)
	out.linkMu.Unlock()
	for _, receiver := range receivers {
		receiver.Receive(block)
	}
}

// SourceNode pulls played samples out of a media element.
type SourceNode struct {
	outputs
	media  MediaElement
	mu     sync.Mutex
	cursor int
	block  []float64
	// window bounds how much history is replayed after a seek.
	window int
}

func newSourceNode(media MediaElement) *SourceNode {
	return &SourceNode{media: media, window: DefaultFFTSize}
}

// Connect routes this node's output to receiver.
func (source *SourceNode) Connect(receiver Receiver) {
	source.connect(receiver)
}

// Disconnect removes every outgoing connection.
func (source *SourceNode) Disconnect() {
	source.disconnect()
}

// Outputs returns the number of connected receivers.
func (source *SourceNode) Outputs() int {
	return source.count()
}

// Pump pushes every sample played since the previous call downstream and
// returns the sample count. A seek restarts from one analysis window before
// the new playhead.
func (source *SourceNode) Pump() int {
	source.mu.Lock()
	playhead := source.media.PlayheadSample()
	if playhead < source.cursor || playhead-source.cursor > 4*source.window {
		source.cursor = playhead - source.window
		if source.cursor < 0 {
			source.cursor = 0
		}
	}
	pending := playhead - source.cursor
	if pending <= 0 {
		source.mu.Unlock()
		return 0
	}
	if cap(source.block) < pending {
		source.block = make([]float64, pending)
	}
	block := source.block[:pending]
	copied := source.media.CopySamples(block, source.cursor)
	source.cursor += copied
	source.mu.Unlock()

	if copied > 0 {
		source.push(block[:copied])
	}
	return copied
}

// BiquadFilter is a band-pass section with constant 0 dB peak gain.
type BiquadFilter struct {
	outputs
	mu         sync.Mutex
	sampleRate float64
	frequency  float64
	q          float64
	b          [3]float64
	a          [3]float64
	x          [2]float64
	y          [2]float64
	scratch    []float64
}

func newBandpass(sampleRate, frequency, q float64) *BiquadFilter {
	filter := &BiquadFilter{sampleRate: sampleRate, q: q}
	filter.SetFrequency(frequency)
	return filter
}

// SetFrequency moves the centre frequency in place, keeping filter state.
func (filter *BiquadFilter) SetFrequency(hz float64) {
	filter.mu.Lock()
	defer filter.mu.Unlock()
	nyquist := filter.sampleRate / 2
	if hz <= 0 {
		hz = 1
	}
	if hz >= nyquist {
		hz = nyquist - 1
	}
	filter.frequency = hz

	omega := 2 * math.Pi * hz / filter.sampleRate
	alpha := math.Sin(omega) / (2 * filter.q)
	a0 := 1 + alpha
	filter.b = [3]float64{alpha / a0, 0, -alpha / a0}
	filter.a = [3]float64{1, -2 * math.Cos(omega) / a0, (1 - alpha) / a0}
}

// Reset clears the filter history.
func (filter *BiquadFilter) Reset() {
	filter.mu.Lock()
	defer filter.mu.Unlock()
	filter.x = [2]float64{}
	filter.y = [2]float64{}
}

// Frequency returns the centre frequency in Hz.
func (filter *BiquadFilter) Frequency() float64 {
	filter.mu.Lock()
	defer filter.mu.Unlock()
	return filter.frequency
}

// Q returns the quality factor.
func (filter *BiquadFilter) Q() float64 {
	return filter.q
}

// Connect routes the filtered output to receiver.
func (filter *BiquadFilter) Connect(receiver Receiver) {
	filter.connect(receiver)
}

// Disconnect removes every outgoing connection.
func (filter *BiquadFilter) Disconnect() {
	filter.disconnect()
}

// Outputs returns the number of connected receivers.
func (filter *BiquadFilter) Outputs() int {
	return filter.count()
}

// Receive filters a block and forwards it.
func (filter *BiquadFilter) Receive(block []float64) {
	filter.mu.Lock()
	if cap(filter.scratch) < len(block) {
		filter.scratch = make([]float64, len(block))
	}
	out := filter.scratch[:len(block)]
	for i, x := range block {
		y := filter.b[0]*x + filter.b[1]*filter.x[0] + filter.b[2]*filter.x[1] - filter.a[1]*filter.y[0] - filter.a[2]*filter.y[1]
		filter.x[1], filter.x[0] = filter.x[0], x
		filter.y[1], filter.y[0] = filter.y[0], y
		out[i] = y
	}
	filter.mu.Unlock()

	filter.push(out)
}
