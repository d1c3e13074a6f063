package nn

import "bayescortex/internal/bayes"

// MemoryLevel is one duplicate in a node's half-speed memory chain. Level 0
// syncs with the node itself, level i with level i-1, so each level further
// out changes at roughly half the rate of the one before it.
type MemoryLevel struct {
	Name      string
	Children  []NodeID
	Table     bayes.Table
	Chance    float64
	Attention float64
}

// GrowMemory appends one level at the end of a node's memory chain,
// duplicating the current tail.
func (n *Network) GrowMemory(id NodeID) error {
	nd, err := n.get(id)
	if err != nil {
		return err
	}
	tail := MemoryLevel{
		Name:     nd.name,
		Children: nd.children,
		Table:    nd.table,
		Chance:   nd.chance,
	}
	if len(nd.memory) > 0 {
		tail = nd.memory[len(nd.memory)-1]
	}
	nd.memory = append(nd.memory, MemoryLevel{
		Name:      tail.Name + "+",
		Children:  append([]NodeID(nil), tail.Children...),
		Table:     tail.Table,
		Chance:    tail.Chance,
		Attention: DefaultAttention,
	})
	return nil
}

// Memory returns a copy of a node's memory chain, nearest level first.
func (n *Network) Memory(id NodeID) ([]MemoryLevel, error) {
	nd, err := n.get(id)
	if err != nil {
		return nil, err
	}
	out := make([]MemoryLevel, len(nd.memory))
	for i, level := range nd.memory {
		level.Children = append([]NodeID(nil), level.Children...)
		out[i] = level
	}
	return out, nil
}

// syncMemory averages each linked pair starting from the far end of the chain.
// Both members of a pair end up with the same normalized table and attention.
func syncMemory(table *bayes.Table, attention *float64, levels []MemoryLevel) error {
	for i := len(levels) - 1; i >= 0; i-- {
		upper := &levels[i]
		lowerTable, lowerAttention := table, attention
		if i > 0 {
			lowerTable, lowerAttention = &levels[i-1].Table, &levels[i-1].Attention
		}

		lowerTable.AverageWith(upper.Table)
		*lowerAttention = (*lowerAttention + upper.Attention) / 2
		if err := lowerTable.Normalize(); err != nil {
			return err
		}
		upper.Table = *lowerTable
		upper.Attention = *lowerAttention
	}
	return nil
}
