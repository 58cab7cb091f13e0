package graph

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	DefaultFFTSize   = 2048
	DefaultSmoothing = 0.2
	// MinDecibels replaces -Inf for silent bins.
	MinDecibels = -100.0
)

// Analyzer keeps the most recent FFT window of samples and reports a
// smoothed magnitude spectrum in decibels.
type Analyzer struct {
	mu        sync.Mutex
	fftSize   int
	smoothing float64
	ring      []float64
	head      int
	filled    int
	dirty     bool
	fft       *fourier.FFT
	frame     []float64
	coeffs    []complex128
	smoothed  []float64
	decibels  []float64
}

func newAnalyzer(fftSize int, smoothing float64) *Analyzer {
	if fftSize < 32 || fftSize&(fftSize-1) != 0 {
		fftSize = DefaultFFTSize
	}
	if smoothing < 0 || smoothing >= 1 || math.IsNaN(smoothing) {
		smoothing = DefaultSmoothing
	}
	bins := fftSize / 2
	decibels := make([]float64, bins)
	for i := range decibels {
		decibels[i] = MinDecibels
	}
	return &Analyzer{
		fftSize:   fftSize,
		smoothing: smoothing,
		ring:      make([]float64, fftSize),
		fft:       fourier.NewFFT(fftSize),
		frame:     make([]float64, fftSize),
		coeffs:    make([]complex128, fftSize/2+1),
		smoothed:  make([]float64, bins),
		decibels:  decibels,
	}
}

// FFTSize returns the analysis window length.
func (analyzer *Analyzer) FFTSize() int {
	return analyzer.fftSize
}

// FrequencyBinCount returns fftSize/2.
func (analyzer *Analyzer) FrequencyBinCount() int {
	return analyzer.fftSize / 2
}

// Smoothing returns the averaging time constant.
func (analyzer *Analyzer) Smoothing() float64 {
	return analyzer.smoothing
}

// Receive appends samples to the analysis window.
func (analyzer *Analyzer) Receive(block []float64) {
	analyzer.mu.Lock()
	defer analyzer.mu.Unlock()
	if len(block) >= analyzer.fftSize {
		copy(analyzer.ring, block[len(block)-analyzer.fftSize:])
		analyzer.head = 0
		analyzer.filled = analyzer.fftSize
		analyzer.dirty = true
		return
	}
	for _, sample := range block {
		analyzer.ring[analyzer.head] = sample
		analyzer.head = (analyzer.head + 1) % analyzer.fftSize
	}
	analyzer.filled += len(block)
	if analyzer.filled > analyzer.fftSize {
		analyzer.filled = analyzer.fftSize
	}
	analyzer.dirty = len(block) > 0 || analyzer.dirty
}

// Reset clears the sample window and the smoothing history.
func (analyzer *Analyzer) Reset() {
	analyzer.mu.Lock()
	defer analyzer.mu.Unlock()
	for i := range analyzer.ring {
		analyzer.ring[i] = 0
	}
	for i := range analyzer.smoothed {
		analyzer.smoothed[i] = 0
		analyzer.decibels[i] = MinDecibels
	}
	analyzer.head = 0
	analyzer.filled = 0
	analyzer.dirty = false
}

// FloatFrequencyData copies the spectrum in dB into dst and returns the
// number of bins written. The spectrum is recomputed only when new samples
// arrived since the previous call, so several readers in one frame share a
// single smoothing step.
func (analyzer *Analyzer) FloatFrequencyData(dst []float64) int {
	analyzer.mu.Lock()
	defer analyzer.mu.Unlock()
	if analyzer.dirty {
		analyzer.computeLocked()
		analyzer.dirty = false
	}
	return copy(dst, analyzer.decibels)
}

// BinDecibels returns the dB value of a single bin.
func (analyzer *Analyzer) BinDecibels(bin int) float64 {
	analyzer.mu.Lock()
	defer analyzer.mu.Unlock()
	if analyzer.dirty {
		analyzer.computeLocked()
		analyzer.dirty = false
	}
	if bin < 0 || bin >= len(analyzer.decibels) {
		return MinDecibels
	}
	return analyzer.decibels[bin]
}

func (analyzer *Analyzer) computeLocked() {
	n := analyzer.fftSize
	// Oldest sample first.
	for i := 0; i < n; i++ {
		analyzer.frame[i] = analyzer.ring[(analyzer.head+i)%n]
	}
	window.Blackman(analyzer.frame)
	analyzer.coeffs = analyzer.fft.Coefficients(analyzer.coeffs, analyzer.frame)

	tau := analyzer.smoothing
	for k := range analyzer.smoothed {
		magnitude := cmplx.Abs(analyzer.coeffs[k]) / float64(n)
		analyzer.smoothed[k] = tau*analyzer.smoothed[k] + (1-tau)*magnitude
		analyzer.decibels[k] = toDecibels(analyzer.smoothed[k])
	}
}

func toDecibels(magnitude float64) float64 {
	if magnitude <= 0 {
		return MinDecibels
	}
	db := 20 * math.Log10(magnitude)
	if db < MinDecibels {
		return MinDecibels
	}
	return db
}
