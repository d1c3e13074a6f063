package nn

import (
	"fmt"
	"math"

	"bayescortex/internal/bayes"
)

const (
	// Decay is the blend rate for attention, chanceStdDev and the table.
	Decay = 0.1
	// ObservationMix is the share of a child's observed chance in the smoothed
	// observation the table learns from; the rest is the cross-prediction.
	ObservationMix = 0.02
	StdDevScale    = 1.5
	// MinStdDev floors the divisor of the normalized observation.
	MinStdDev = 1e-12

	accuracyScale   = 0.1
	attentionBase   = 0.5
	attentionWeight = 0.1
)

// Tick runs one update of a node. Neighbour state is read from view; the
// node's own state and memory chain are read and written directly. On error
// the node is left as it was.
func (n *Network) Tick(id NodeID, view View) error {
	nd, err := n.get(id)
	if err != nil {
		return err
	}
	next := *nd

	if len(nd.axon) > 0 {
		if err := n.observeParents(id, &next, view); err != nil {
			return err
		}
	}

	if len(nd.children) > 0 {
		if err := n.learnChildren(&next, view); err != nil {
			return err
		}
	}

	target := attentionBase + attentionWeight*next.accuracy
	next.attention = next.attention*(1-Decay) + Decay*target
	if next.attention <= 0 || math.IsNaN(next.attention) {
		return fmt.Errorf("%w: node %s reached attention=%v", ErrInvalidAttention, nd.name, next.attention)
	}

	next.memory = append([]MemoryLevel(nil), nd.memory...)
	if err := syncMemory(&next.table, &next.attention, next.memory); err != nil {
		return fmt.Errorf("node %s memory: %w", nd.name, err)
	}
	if err := next.table.Normalize(); err != nil {
		return fmt.Errorf("node %s: %w", nd.name, err)
	}

	*nd = next
	return nil
}

// observeParents reads what every axon parent infers about this node, updates
// chanceStdDev from their spread and sets accuracy to the parents' weighted
// accuracy.
func (n *Network) observeParents(id NodeID, nd *node, view View) error {
	observations := make([]float64, len(nd.axon))
	weights := make([]float64, len(nd.axon))
	var sum, accuracySum, totalAttention float64

	for i, parentID := range nd.axon {
		parent, err := n.get(parentID)
		if err != nil {
			return err
		}
		slot := childSlot(parent, id)
		if slot < 0 {
			return &BrokenLinkError{Node: id, NodeName: nd.name, Parent: parentID, ParentName: parent.name}
		}
		published, ok := view.State(parentID)
		if !ok {
			return fmt.Errorf("%w: %d missing from view", ErrUnknownNode, parentID)
		}
		chances, err := n.childChances(view, parent)
		if err != nil {
			return err
		}
		inferred, err := crossPredict(published.Table, chances, slot)
		if err != nil {
			return fmt.Errorf("parent %s predicting %s: %w", parent.name, nd.name, err)
		}

		observation := normalizedObservation(inferred, nd.chance, nd.chanceStdDev)
		observations[i] = observation
		weights[i] = published.Attention
		sum += observation * published.Attention
		totalAttention += published.Attention
		accuracySum += published.Accuracy * published.Attention
	}

	if len(nd.axon) > 1 {
		mean := sum / totalAttention
		sumOfSquares := 0.0
		for i, observation := range observations {
			diff := observation - mean
			sumOfSquares += weights[i] * diff * diff
		}
		stdDev := math.Sqrt(sumOfSquares / totalAttention)
		nd.chanceStdDev = nd.chanceStdDev*(1-Decay) + Decay*stdDev
	}

	if nd.chance < 0 || nd.chance > 1 {
		return fmt.Errorf("%w: node %s chance=%v", ErrInvalidChance, nd.name, nd.chance)
	}
	nd.accuracy = accuracySum / totalAttention
	return nil
}

// learnChildren scores how well the table predicts the children and blends the
// table toward their smoothed observations.
func (n *Network) learnChildren(nd *node, view View) error {
	observed, err := n.childChances(view, nd)
	if err != nil {
		return err
	}

	var smoothed [bayes.Children]float64
	totalDiff := 0.0
	for child := 0; child < bayes.Children; child++ {
		p, err := crossPredict(nd.table, observed, child)
		if err != nil {
			return fmt.Errorf("node %s predicting child %d: %w", nd.name, child, err)
		}
		totalDiff += math.Abs(observed[child] - p)
		smoothed[child] = observed[child]*ObservationMix + (1-ObservationMix)*p
	}
	meanDiff := totalDiff / bayes.Children
	nd.accuracy = math.Min(accuracyScale/(meanDiff+accuracyScale), 1)

	target := bayes.IndependentTable(smoothed[0], smoothed[1], smoothed[2])
	nd.table.BlendToward(target, Decay)
	return nil
}

// crossPredict forces the marginals of the other two children to their
// observed chances and reads off the marginal of child. Forcing is done in both
// orders and averaged since sequential forcing is order dependent. table is a
// copy, so the caller's table is never changed.
func crossPredict(table bayes.Table, chances [bayes.Children]float64, child int) (float64, error) {
	if child < 0 || child >= bayes.Children {
		return 0, fmt.Errorf("%w: %d", ErrInvalidIndex, child)
	}
	a, b := otherChildren(child)

	first, err := forceThenPredict(table, chances, a, b, child)
	if err != nil {
		return 0, err
	}
	second, err := forceThenPredict(table, chances, b, a, child)
	if err != nil {
		return 0, err
	}
	return (first + second) / 2, nil
}

func forceThenPredict(table bayes.Table, chances [bayes.Children]float64, first, second, child int) (float64, error) {
	if err := table.SetMarginal(first, chances[first]); err != nil {
		return 0, err
	}
	if err := table.SetMarginal(second, chances[second]); err != nil {
		return 0, err
	}
	return table.Marginal(child)
}

func otherChildren(child int) (int, int) {
	switch child {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	default:
		return 0, 1
	}
}

func normalizedObservation(inferred, chance, chanceStdDev float64) float64 {
	spread := math.Max(chanceStdDev*StdDevScale, MinStdDev)
	observation := 0.5 + 0.5*(inferred-chance)/spread
	return math.Max(0, math.Min(observation, 1))
}

func childSlot(parent *node, child NodeID) int {
	for i, c := range parent.children {
		if c == child {
			return i
		}
	}
	return -1
}

func (n *Network) childChances(view View, nd *node) ([bayes.Children]float64, error) {
	var chances [bayes.Children]float64
	if len(nd.children) != bayes.Children {
		return chances, fmt.Errorf("%w: node %s has %d children", ErrInvalidArgument, nd.name, len(nd.children))
	}
	for i, child := range nd.children {
		st, ok := view.State(child)
		if !ok {
			return chances, fmt.Errorf("%w: %d missing from view", ErrUnknownNode, child)
		}
		chances[i] = st.Chance
	}
	return chances, nil
}
