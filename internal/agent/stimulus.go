package agent

import (
	"fmt"
	"math"

	"bayescortex/internal/nn"
)

const (
	DefaultStimulusDecay = 0.03
	DefaultStimulusSpeed = 0.1
)

// SineStimulus drags the chance of each target node toward a travelling sine
// wave. Node k of len(Nodes) sits at phase 2πk/len(Nodes).
type SineStimulus struct {
	Nodes []nn.NodeID
	Decay float64
	Speed float64
}

func (s SineStimulus) Apply(step int, net *nn.Network) error {
	if len(s.Nodes) == 0 {
		return nil
	}
	decay := s.Decay
	if decay == 0 {
		decay = DefaultStimulusDecay
	}
	speed := s.Speed
	if speed == 0 {
		speed = DefaultStimulusSpeed
	}
	wave := speed * float64(step)
	for k, id := range s.Nodes {
		target := 0.5 + 0.5*math.Sin(wave+2*math.Pi*float64(k)/float64(len(s.Nodes)))
		if err := net.BlendChance(id, clamp01(target), decay); err != nil {
			return fmt.Errorf("node %d: %w", id, err)
		}
	}
	return nil
}

// LeafStimulus targets every leaf of net.
func LeafStimulus(net *nn.Network, decay, speed float64) SineStimulus {
	var leaves []nn.NodeID
	for _, view := range net.Nodes() {
		if view.IsLeaf() {
			leaves = append(leaves, view.ID)
		}
	}
	return SineStimulus{Nodes: leaves, Decay: decay, Speed: speed}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}
