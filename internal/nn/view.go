package nn

import "bayescortex/internal/bayes"

// State is the part of a node its neighbours read during a tick.
type State struct {
	Chance    float64
	Attention float64
	Accuracy  float64
	Table     bayes.Table
}

// View is the source of neighbour state for a tick. A Generation gives every
// tick in a step the same published state; Live reads whatever is stored.
type View interface {
	State(id NodeID) (State, bool)
}

// Generation is a copy of every node's published state, indexed by NodeID.
type Generation []State

func (g Generation) State(id NodeID) (State, bool) {
	if id < 0 || int(id) >= len(g) {
		return State{}, false
	}
	return g[id], true
}

// Publish copies the current state of every node.
func (n *Network) Publish() Generation {
	g := make(Generation, len(n.nodes))
	for i, nd := range n.nodes {
		g[i] = nd.state()
	}
	return g
}

// PublishInto reuses buf when it is large enough.
func (n *Network) PublishInto(buf Generation) Generation {
	if cap(buf) < len(n.nodes) {
		return n.Publish()
	}
	buf = buf[:len(n.nodes)]
	for i, nd := range n.nodes {
		buf[i] = nd.state()
	}
	return buf
}

type liveView struct {
	n *Network
}

// Live is a View over the network's current state.
func (n *Network) Live() View {
	return liveView{n: n}
}

func (v liveView) State(id NodeID) (State, bool) {
	nd, err := v.n.get(id)
	if err != nil {
		return State{}, false
	}
	return nd.state(), true
}

func (nd *node) state() State {
	return State{
		Chance:    nd.chance,
		Attention: nd.attention,
		Accuracy:  nd.accuracy,
		Table:     nd.table,
	}
}
