//go:build !headless

package platform

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"

	"racetimer/internal/audio/graph"
)

// OtoSink plays mixed sounds through the system output.
type OtoSink struct {
	Mixer
	mu     sync.Mutex
	player *oto.Player
}

// OpenSound opens the sound card. oto allows one context per process, so
// callers go through graph.Context.Destination which opens it once.
func OpenSound(sampleRate int) (graph.Sink, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("open oto context: %w", err)
	}
	<-ready

	sink := &OtoSink{}
	sink.player = ctx.NewPlayer(&sink.Mixer)
	sink.player.Play()
	return sink, nil
}

// Close stops playback.
func (sink *OtoSink) Close() error {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.player == nil {
		return nil
	}
	err := sink.player.Close()
	sink.player = nil
	return err
}
