package stats

import (
	"math"
	"testing"

	"bayescortex/internal/bayes"
	"bayescortex/internal/nn"
)

func TestSummarizeMeans(t *testing.T) {
	nodes := []nn.NodeView{
		{ID: 0, Chance: 0.2, Attention: 0.5, Accuracy: 1, ChanceStdDev: 0.1},
		{ID: 1, Chance: 0.6, Attention: 0.6, Accuracy: 0, ChanceStdDev: 0.3},
	}
	got := Summarize(4, nodes)
	if got.Step != 4 {
		t.Fatalf("unexpected step: %d", got.Step)
	}
	for name, pair := range map[string][2]float64{
		"chance":    {got.MeanChance, 0.4},
		"attention": {got.MeanAttention, 0.55},
		"accuracy":  {got.MeanAccuracy, 0.5},
		"stddev":    {got.MeanStdDev, 0.2},
	} {
		if math.Abs(pair[0]-pair[1]) > 1e-12 {
			t.Fatalf("mean %s: got %v want %v", name, pair[0], pair[1])
		}
	}
	if got.MaxTableDrift != 0 {
		t.Fatalf("expected no drift, got %v", got.MaxTableDrift)
	}

	if empty := Summarize(1, nil); empty.MeanChance != 0 || empty.Step != 1 {
		t.Fatalf("unexpected empty summary: %+v", empty)
	}
}

func TestTrackerMeasuresDrift(t *testing.T) {
	tracker := NewTracker()
	first := bayes.UniformTable()
	if s := tracker.Observe(1, []nn.NodeView{{ID: 0, Table: first}}); s.MaxTableDrift != 0 {
		t.Fatalf("first observation drifted: %v", s.MaxTableDrift)
	}

	moved := first
	moved[0] += 0.05
	moved[7] -= 0.05
	s := tracker.Observe(2, []nn.NodeView{{ID: 0, Table: moved}, {ID: 1, Table: first}})
	if math.Abs(s.MaxTableDrift-0.1) > 1e-12 {
		t.Fatalf("unexpected drift: %v", s.MaxTableDrift)
	}
}
