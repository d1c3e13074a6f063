package stats

import (
	"math"

	"bayescortex/internal/bayes"
	"bayescortex/internal/model"
	"bayescortex/internal/nn"
)

// Summarize reduces a step's node views to means. MaxTableDrift is left at
// zero; use a Tracker to measure it across steps.
func Summarize(step int, nodes []nn.NodeView) model.StepStats {
	out := model.StepStats{Step: step}
	if len(nodes) == 0 {
		return out
	}
	for _, node := range nodes {
		out.MeanChance += node.Chance
		out.MeanAttention += node.Attention
		out.MeanAccuracy += node.Accuracy
		out.MeanStdDev += node.ChanceStdDev
	}
	n := float64(len(nodes))
	out.MeanChance /= n
	out.MeanAttention /= n
	out.MeanAccuracy /= n
	out.MeanStdDev /= n
	return out
}

// Tracker remembers the tables seen at the previous step.
type Tracker struct {
	prev map[nn.NodeID]bayes.Table
}

func NewTracker() *Tracker {
	return &Tracker{prev: make(map[nn.NodeID]bayes.Table)}
}

// Observe summarizes nodes and records the largest L1 distance any table
// moved since the last call. Nodes seen for the first time do not drift.
func (t *Tracker) Observe(step int, nodes []nn.NodeView) model.StepStats {
	out := Summarize(step, nodes)
	for _, node := range nodes {
		if prev, ok := t.prev[node.ID]; ok {
			out.MaxTableDrift = math.Max(out.MaxTableDrift, tableDistance(prev, node.Table))
		}
		t.prev[node.ID] = node.Table
	}
	return out
}

func tableDistance(a, b bayes.Table) float64 {
	var d float64
	for i := range a {
		d += math.Abs(a[i] - b[i])
	}
	return d
}
