package bayescortex

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"golang.org/x/exp/rand"

	"bayescortex/internal/agent"
	"bayescortex/internal/bayes"
	"bayescortex/internal/model"
	"bayescortex/internal/nn"
)

const (
	TableUniform     = "uniform"
	TableRandom      = "random"
	TableIndependent = "independent"
)

// NetworkSpec describes a network in TOML. Explicit nodes are added first in
// file order, then any generated layer.
type NetworkSpec struct {
	Name     string        `toml:"name"`
	Nodes    []NodeSpec    `toml:"node"`
	Generate *GenerateSpec `toml:"generate"`
	Stimulus *StimulusSpec `toml:"stimulus"`
}

type NodeSpec struct {
	Name      string    `toml:"name"`
	Chance    *float64  `toml:"chance"`
	Attention *float64  `toml:"attention"`
	Children  []string  `toml:"children"`
	Weights   []float64 `toml:"weights"`
	// Table picks the initial table when Weights is empty: uniform, random,
	// or independent (product of the children's chances).
	Table  string `toml:"table"`
	Memory int    `toml:"memory"`
}

// GenerateSpec builds a random two-layer network: Leaves input nodes and
// Leaves*PerLeaf inner nodes, each with three distinct children drawn from
// the leaves or, once MinInner inner nodes exist, from earlier inner nodes
// half of the time.
type GenerateSpec struct {
	Leaves   int    `toml:"leaves"`
	PerLeaf  int    `toml:"per_leaf"`
	MinInner int    `toml:"min_inner"`
	Prefix   string `toml:"prefix"`
}

type StimulusSpec struct {
	Decay float64  `toml:"decay"`
	Speed float64  `toml:"speed"`
	Nodes []string `toml:"nodes"`
	Off   bool     `toml:"off"`
}

// DefaultNetworkSpec is the built-in demo network.
func DefaultNetworkSpec() NetworkSpec {
	return NetworkSpec{
		Name:     "demo",
		Generate: &GenerateSpec{Leaves: 64, PerLeaf: 2, MinInner: 10, Prefix: "pixel"},
		Stimulus: &StimulusSpec{Decay: agent.DefaultStimulusDecay, Speed: agent.DefaultStimulusSpeed},
	}
}

func LoadNetworkSpec(path string) (NetworkSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NetworkSpec{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	spec, err := ParseNetworkSpec(data)
	if err != nil {
		return NetworkSpec{}, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return spec, nil
}

func ParseNetworkSpec(data []byte) (NetworkSpec, error) {
	var spec NetworkSpec
	md, err := toml.Decode(string(data), &spec)
	if err != nil {
		return NetworkSpec{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return NetworkSpec{}, fmt.Errorf("unknown keys: %v", undecoded)
	}
	if err := spec.Validate(); err != nil {
		return NetworkSpec{}, err
	}
	return spec, nil
}

func (s NetworkSpec) Validate() error {
	if s.Name == "" {
		return errors.New("network name is required")
	}
	if len(s.Nodes) == 0 && s.Generate == nil {
		return errors.New("network needs nodes or a generate section")
	}
	for _, node := range s.Nodes {
		switch node.Table {
		case "", TableUniform, TableRandom, TableIndependent:
		default:
			return fmt.Errorf("node %s: unknown table kind %q", node.Name, node.Table)
		}
		if node.Memory < 0 {
			return fmt.Errorf("node %s: memory must be >= 0", node.Name)
		}
	}
	if g := s.Generate; g != nil {
		if g.Leaves < bayes.Children {
			return fmt.Errorf("generate: leaves must be >= %d", bayes.Children)
		}
		if g.PerLeaf < 0 || g.MinInner < 0 {
			return errors.New("generate: per_leaf and min_inner must be >= 0")
		}
	}
	return nil
}

// Build creates the network and the stimulus that drives it. rng seeds
// random tables and generated wiring.
func (s NetworkSpec) Build(rng *rand.Rand) (*nn.Network, agent.Stimulus, error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	net := nn.NewNetwork()
	for _, node := range s.Nodes {
		if err := addNode(net, node, rng); err != nil {
			return nil, nil, fmt.Errorf("node %s: %w", node.Name, err)
		}
	}
	if s.Generate != nil {
		if err := generate(net, *s.Generate, rng); err != nil {
			return nil, nil, err
		}
	}

	stimulus, err := s.Stimulus.build(net)
	if err != nil {
		return nil, nil, err
	}
	return net, stimulus, nil
}

// build returns nil when the section is absent or switched off. Nodes
// defaults to every leaf.
func (s *StimulusSpec) build(net *nn.Network) (agent.Stimulus, error) {
	if s == nil || s.Off {
		return nil, nil
	}
	if len(s.Nodes) == 0 {
		return agent.LeafStimulus(net, s.Decay, s.Speed), nil
	}
	stimulus := agent.SineStimulus{Decay: s.Decay, Speed: s.Speed}
	for _, name := range s.Nodes {
		id, ok := net.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("stimulus: %w: %s", nn.ErrUnknownNode, name)
		}
		stimulus.Nodes = append(stimulus.Nodes, id)
	}
	return stimulus, nil
}

func (s *StimulusSpec) record() *model.StimulusRecord {
	if s == nil {
		return &model.StimulusRecord{Off: true}
	}
	return &model.StimulusRecord{Decay: s.Decay, Speed: s.Speed, Nodes: append([]string(nil), s.Nodes...), Off: s.Off}
}

// stimulusFromRecord reverses record. A missing record means the default
// leaf stimulus.
func stimulusFromRecord(r *model.StimulusRecord) *StimulusSpec {
	if r == nil {
		return &StimulusSpec{}
	}
	return &StimulusSpec{Decay: r.Decay, Speed: r.Speed, Nodes: append([]string(nil), r.Nodes...), Off: r.Off}
}

func addNode(net *nn.Network, spec NodeSpec, rng *rand.Rand) error {
	children := make([]nn.NodeID, 0, len(spec.Children))
	for _, name := range spec.Children {
		id, ok := net.Lookup(name)
		if !ok {
			return fmt.Errorf("child %s: %w", name, nn.ErrUnknownNode)
		}
		children = append(children, id)
	}

	cfg := nn.NodeConfig{Name: spec.Name, Attention: spec.Attention, Chance: spec.Chance, Children: children}
	if len(children) > 0 {
		table, err := initialTable(net, spec, children, rng)
		if err != nil {
			return err
		}
		cfg.Table = &table
	}
	id, err := net.Add(cfg)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		if err := net.ConnectChildren(id); err != nil {
			return err
		}
	}
	for i := 0; i < spec.Memory; i++ {
		if err := net.GrowMemory(id); err != nil {
			return err
		}
	}
	return nil
}

func initialTable(net *nn.Network, spec NodeSpec, children []nn.NodeID, rng *rand.Rand) (bayes.Table, error) {
	if len(spec.Weights) > 0 {
		return bayes.NewTable(spec.Weights)
	}
	switch spec.Table {
	case TableRandom:
		return bayes.RandomTable(rng), nil
	case TableIndependent:
		if len(children) != bayes.Children {
			return bayes.Table{}, fmt.Errorf("%w: need %d children", nn.ErrInvalidArgument, bayes.Children)
		}
		var p [bayes.Children]float64
		for i, child := range children {
			view, err := net.Node(child)
			if err != nil {
				return bayes.Table{}, err
			}
			p[i] = view.Chance
		}
		return bayes.IndependentTable(p[0], p[1], p[2]), nil
	default:
		return bayes.UniformTable(), nil
	}
}

func generate(net *nn.Network, g GenerateSpec, rng *rand.Rand) error {
	prefix := g.Prefix
	if prefix == "" {
		prefix = "leaf"
	}
	leaves := make([]nn.NodeID, 0, g.Leaves)
	for i := 0; i < g.Leaves; i++ {
		id, err := net.Add(nn.NodeConfig{Name: fmt.Sprintf("%s%d", prefix, i)})
		if err != nil {
			return err
		}
		leaves = append(leaves, id)
	}

	var inner []nn.NodeID
	for i := 0; i < g.Leaves; i++ {
		for j := 0; j < g.PerLeaf; j++ {
			children := make([]nn.NodeID, 0, bayes.Children)
			for len(children) < bayes.Children {
				pool := leaves
				if len(inner) >= g.MinInner && len(inner) > 0 && rng.Intn(2) == 0 {
					pool = inner
				}
				candidate := pool[rng.Intn(len(pool))]
				if !containsID(children, candidate) {
					children = append(children, candidate)
				}
			}
			table := bayes.RandomTable(rng)
			id, err := net.Add(nn.NodeConfig{
				Name:     fmt.Sprintf("inner_%d_%d", i, j),
				Children: children,
				Table:    &table,
			})
			if err != nil {
				return err
			}
			if err := net.ConnectChildren(id); err != nil {
				return err
			}
			inner = append(inner, id)
		}
	}
	return nil
}

func containsID(ids []nn.NodeID, id nn.NodeID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
