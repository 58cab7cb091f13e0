//go:build headless

package platform

import "racetimer/internal/audio/graph"

// OpenSound reports that headless builds have no sound card.
func OpenSound(sampleRate int) (graph.Sink, error) {
	return nil, graph.ErrUnsupported
}
