package agent

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"bayescortex/internal/nn"
)

func TestSineStimulusBlendsTowardWave(t *testing.T) {
	net := testNetwork(t)
	stimulus := SineStimulus{Nodes: []nn.NodeID{0, 1}, Decay: 0.5, Speed: 0.1}

	require.NoError(t, stimulus.Apply(0, net))

	leaf0, err := net.Node(0)
	require.NoError(t, err)
	require.InDelta(t, 0.1*0.5+0.5*0.5, leaf0.Chance, 1e-12)

	leaf1, err := net.Node(1)
	require.NoError(t, err)
	target := 0.5 + 0.5*math.Sin(math.Pi)
	require.InDelta(t, 0.6*0.5+0.5*target, leaf1.Chance, 1e-12)

	leaf2, err := net.Node(2)
	require.NoError(t, err)
	require.Equal(t, 0.9, leaf2.Chance, "untargeted nodes are left alone")
}

func TestSineStimulusRejectsUnknownNode(t *testing.T) {
	net := testNetwork(t)
	require.ErrorIs(t, SineStimulus{Nodes: []nn.NodeID{99}}.Apply(0, net), nn.ErrUnknownNode)
	require.NoError(t, SineStimulus{}.Apply(3, net))
}

func TestLeafStimulusDrivesCortex(t *testing.T) {
	net := testNetwork(t)
	stimulus := LeafStimulus(net, 0, 0)
	require.Equal(t, []nn.NodeID{0, 1, 2}, stimulus.Nodes)

	c, err := NewCortex("c", net, WithLogger(zerolog.Nop()), WithStimulus(stimulus))
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background(), 200, nil))

	require.NoError(t, c.Do(func(net *nn.Network) error {
		for _, view := range net.Nodes() {
			require.GreaterOrEqual(t, view.Chance, 0.0)
			require.LessOrEqual(t, view.Chance, 1.0)
			require.InDelta(t, 1, view.Table.Sum(), 1e-9)
		}
		leaf, err := net.Node(0)
		require.NoError(t, err)
		require.NotEqual(t, 0.1, leaf.Chance)
		return nil
	}))
}

type stepRecorder struct {
	steps *[]int
}

func (r stepRecorder) Apply(step int, _ *nn.Network) error {
	*r.steps = append(*r.steps, step)
	return nil
}

func TestStartStepContinuesNumbering(t *testing.T) {
	var seen []int
	c, err := NewCortex("resumed", testNetwork(t), WithLogger(zerolog.Nop()), WithStimulus(stepRecorder{steps: &seen}), WithStartStep(7))
	require.NoError(t, err)
	require.Equal(t, 7, c.StepCount())

	var reported []int
	require.NoError(t, c.Run(context.Background(), 2, func(report StepReport) error {
		reported = append(reported, report.Step)
		return nil
	}))
	require.Equal(t, []int{7, 8}, seen, "stimulus phase continues from the start step")
	require.Equal(t, []int{8, 9}, reported)

	_, err = NewCortex("bad", testNetwork(t), WithStartStep(-1))
	require.Error(t, err)
}
