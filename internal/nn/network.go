// Package nn is the arena of probabilistic nodes and the per-node update.
//
// Nodes are addressed by NodeID handles into a Network; children and axon
// parents are handles, so nothing in the graph owns anything else. A Network is
// not safe for concurrent use: the driver must serialize ticks and mutations.
package nn

import (
	"fmt"
	"math"

	"bayescortex/internal/bayes"
)

const (
	DefaultAttention    = 0.5
	DefaultChance       = 0.5
	InitialChanceStdDev = 0.01
)

type NodeID int

type NodeConfig struct {
	Name string
	// Attention and Chance default to DefaultAttention and DefaultChance
	// when nil.
	Attention *float64
	Chance    *float64
	Children  []NodeID
	// Table defaults to a uniform table when nil.
	Table *bayes.Table
}

type node struct {
	name         string
	chance       float64
	attention    float64
	chanceStdDev float64
	accuracy     float64
	children     []NodeID
	axon         []NodeID
	table        bayes.Table
	memory       []MemoryLevel
}

// NodeView is a copy of one node's state.
type NodeView struct {
	ID           NodeID
	Name         string
	Chance       float64
	Attention    float64
	ChanceStdDev float64
	Accuracy     float64
	Table        bayes.Table
	Children     []NodeID
	Axon         []NodeID
	ChainDepth   int
}

func (v NodeView) IsLeaf() bool {
	return len(v.Children) == 0
}

type Network struct {
	nodes  []*node
	byName map[string]NodeID
}

func NewNetwork() *Network {
	return &Network{byName: make(map[string]NodeID)}
}

func (n *Network) Len() int {
	return len(n.nodes)
}

func (n *Network) Lookup(name string) (NodeID, bool) {
	id, ok := n.byName[name]
	return id, ok
}

// Add creates a node and returns its handle. It does not connect the node to
// the axon lists of its children; see ConnectChildren.
func (n *Network) Add(cfg NodeConfig) (NodeID, error) {
	if cfg.Name == "" {
		return 0, fmt.Errorf("%w: node name is required", ErrInvalidArgument)
	}
	if _, exists := n.byName[cfg.Name]; exists {
		return 0, fmt.Errorf("%w: duplicate node name %q", ErrInvalidArgument, cfg.Name)
	}

	attention := DefaultAttention
	if cfg.Attention != nil {
		attention = *cfg.Attention
	}
	if err := checkAttention(attention); err != nil {
		return 0, err
	}
	chance := DefaultChance
	if cfg.Chance != nil {
		chance = *cfg.Chance
	}
	if err := checkChance(chance); err != nil {
		return 0, err
	}

	if len(cfg.Children) != 0 && len(cfg.Children) != bayes.Children {
		return 0, fmt.Errorf("%w: %d children, want 0 or %d", ErrInvalidArgument, len(cfg.Children), bayes.Children)
	}
	for _, child := range cfg.Children {
		if _, err := n.get(child); err != nil {
			return 0, err
		}
	}

	table := bayes.UniformTable()
	if cfg.Table != nil {
		if err := cfg.Table.Validate(); err != nil {
			return 0, err
		}
		table = *cfg.Table
	}

	id := NodeID(len(n.nodes))
	n.nodes = append(n.nodes, &node{
		name:         cfg.Name,
		chance:       chance,
		attention:    attention,
		chanceStdDev: InitialChanceStdDev,
		children:     append([]NodeID(nil), cfg.Children...),
		table:        table,
	})
	n.byName[cfg.Name] = id
	return id, nil
}

// Connect appends parent to the axon list of child. Duplicates are kept and
// membership is only checked when child ticks.
func (n *Network) Connect(child, parent NodeID) error {
	c, err := n.get(child)
	if err != nil {
		return err
	}
	if _, err := n.get(parent); err != nil {
		return err
	}
	c.axon = append(c.axon, parent)
	return nil
}

// ConnectChildren adds parent to the axon list of each of its children.
func (n *Network) ConnectChildren(parent NodeID) error {
	p, err := n.get(parent)
	if err != nil {
		return err
	}
	for _, child := range p.children {
		if err := n.Connect(child, parent); err != nil {
			return err
		}
	}
	return nil
}

func (n *Network) SetChance(id NodeID, chance float64) error {
	nd, err := n.get(id)
	if err != nil {
		return err
	}
	if err := checkChance(chance); err != nil {
		return err
	}
	nd.chance = chance
	return nil
}

// BlendChance moves a node's chance decay of the way toward target.
func (n *Network) BlendChance(id NodeID, target, decay float64) error {
	nd, err := n.get(id)
	if err != nil {
		return err
	}
	if decay < 0 || decay > 1 {
		return fmt.Errorf("%w: decay %v not in range 0 to 1", ErrInvalidArgument, decay)
	}
	if err := checkChance(target); err != nil {
		return err
	}
	nd.chance = nd.chance*(1-decay) + decay*target
	return nil
}

func (n *Network) SetAttention(id NodeID, attention float64) error {
	nd, err := n.get(id)
	if err != nil {
		return err
	}
	if err := checkAttention(attention); err != nil {
		return err
	}
	nd.attention = attention
	return nil
}

func (n *Network) Node(id NodeID) (NodeView, error) {
	nd, err := n.get(id)
	if err != nil {
		return NodeView{}, err
	}
	return NodeView{
		ID:           id,
		Name:         nd.name,
		Chance:       nd.chance,
		Attention:    nd.attention,
		ChanceStdDev: nd.chanceStdDev,
		Accuracy:     nd.accuracy,
		Table:        nd.table,
		Children:     append([]NodeID(nil), nd.children...),
		Axon:         append([]NodeID(nil), nd.axon...),
		ChainDepth:   1 + len(nd.memory),
	}, nil
}

// Nodes returns a view of every node in handle order.
func (n *Network) Nodes() []NodeView {
	out := make([]NodeView, 0, len(n.nodes))
	for i := range n.nodes {
		view, _ := n.Node(NodeID(i))
		out = append(out, view)
	}
	return out
}

func (n *Network) Chance(id NodeID) (float64, error) {
	nd, err := n.get(id)
	if err != nil {
		return 0, err
	}
	return nd.chance, nil
}

func (n *Network) Attention(id NodeID) (float64, error) {
	nd, err := n.get(id)
	if err != nil {
		return 0, err
	}
	return nd.attention, nil
}

func (n *Network) ChanceStdDev(id NodeID) (float64, error) {
	nd, err := n.get(id)
	if err != nil {
		return 0, err
	}
	return nd.chanceStdDev, nil
}

func (n *Network) Accuracy(id NodeID) (float64, error) {
	nd, err := n.get(id)
	if err != nil {
		return 0, err
	}
	return nd.accuracy, nil
}

func (n *Network) Children(id NodeID) ([]NodeID, error) {
	nd, err := n.get(id)
	if err != nil {
		return nil, err
	}
	return append([]NodeID(nil), nd.children...), nil
}

// Axon lists the parents that hold id as a child, duplicates included.
func (n *Network) Axon(id NodeID) ([]NodeID, error) {
	nd, err := n.get(id)
	if err != nil {
		return nil, err
	}
	return append([]NodeID(nil), nd.axon...), nil
}

// ChainDepth counts the node itself plus its memory levels.
func (n *Network) ChainDepth(id NodeID) (int, error) {
	nd, err := n.get(id)
	if err != nil {
		return 0, err
	}
	return 1 + len(nd.memory), nil
}

// PredictChance is the unconditional marginal of one child in a node's table.
func (n *Network) PredictChance(id NodeID, child int) (float64, error) {
	nd, err := n.get(id)
	if err != nil {
		return 0, err
	}
	return nd.table.Marginal(child)
}

// CrossPredict infers the chance of one child from the node's table and the
// current chances of the other two children.
func (n *Network) CrossPredict(id NodeID, child int) (float64, error) {
	nd, err := n.get(id)
	if err != nil {
		return 0, err
	}
	if len(nd.children) == 0 {
		return 0, fmt.Errorf("%w: node %s has no children", ErrInvalidArgument, nd.name)
	}
	chances, err := n.childChances(n.Live(), nd)
	if err != nil {
		return 0, err
	}
	return crossPredict(nd.table, chances, child)
}

func (n *Network) String(id NodeID) string {
	nd, err := n.get(id)
	if err != nil {
		return fmt.Sprintf("[Node_? id=%d]", id)
	}
	return fmt.Sprintf("[Node_%s weights=%s chance=%v attention=%v chanceStdDev=%v accuracy=%v halfSpeedDepth=%d]",
		nd.name, nd.table, nd.chance, nd.attention, nd.chanceStdDev, nd.accuracy, 1+len(nd.memory))
}

func (n *Network) get(id NodeID) (*node, error) {
	if id < 0 || int(id) >= len(n.nodes) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return n.nodes[id], nil
}

func checkChance(c float64) error {
	if math.IsNaN(c) || c < 0 || c > 1 {
		return fmt.Errorf("%w: %w: chance=%v not in range 0 to 1", ErrInvalidArgument, ErrInvalidChance, c)
	}
	return nil
}

func checkAttention(a float64) error {
	if math.IsNaN(a) || math.IsInf(a, 0) || a <= 0 {
		return fmt.Errorf("%w: %w: attention=%v must be positive", ErrInvalidArgument, ErrInvalidAttention, a)
	}
	return nil
}
