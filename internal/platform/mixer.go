package platform

import (
	"encoding/binary"
	"math"
	"sync"
)

// Mixer sums a continuous playback stream and queued one-shot sounds into a
// little-endian float32 stream.
type Mixer struct {
	mu     sync.Mutex
	stream []float32
	voices [][]float32
}

// Stream appends samples to the tail of the playback stream, so consecutive
// blocks play back to back.
func (mixer *Mixer) Stream(samples []float32) {
	if len(samples) == 0 {
		return
	}
	mixer.mu.Lock()
	mixer.stream = append(mixer.stream, samples...)
	mixer.mu.Unlock()
}

// Enqueue adds a sound that starts on the next read.
func (mixer *Mixer) Enqueue(samples []float32) {
	if len(samples) == 0 {
		return
	}
	mixer.mu.Lock()
	mixer.voices = append(mixer.voices, samples)
	mixer.mu.Unlock()
}

// Pending returns the number of one-shot sounds still playing.
func (mixer *Mixer) Pending() int {
	mixer.mu.Lock()
	defer mixer.mu.Unlock()
	return len(mixer.voices)
}

// Buffered returns the number of stream samples not yet read.
func (mixer *Mixer) Buffered() int {
	mixer.mu.Lock()
	defer mixer.mu.Unlock()
	return len(mixer.stream)
}

// Read fills p with mixed samples and silence once everything is drained.
func (mixer *Mixer) Read(p []byte) (int, error) {
	frames := len(p) / 4

	mixer.mu.Lock()
	defer mixer.mu.Unlock()
	for i := 0; i < frames; i++ {
		var sum float32
		if i < len(mixer.stream) {
			sum = mixer.stream[i]
		}
		for _, voice := range mixer.voices {
			if i < len(voice) {
				sum += voice[i]
			}
		}
		if sum > 1 {
			sum = 1
		} else if sum < -1 {
			sum = -1
		}
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(sum))
	}

	if frames >= len(mixer.stream) {
		mixer.stream = mixer.stream[:0]
	} else {
		mixer.stream = append(mixer.stream[:0], mixer.stream[frames:]...)
	}
	kept := mixer.voices[:0]
	for _, voice := range mixer.voices {
		if len(voice) > frames {
			kept = append(kept, voice[frames:])
		}
	}
	mixer.voices = kept
	return frames * 4, nil
}
