package nn

import (
	"fmt"
	"math"

	"bayescortex/internal/bayes"
	"bayescortex/internal/model"
)

// Export records every node in handle order. A record's index is its NodeID.
func (n *Network) Export() []model.NodeRecord {
	records := make([]model.NodeRecord, len(n.nodes))
	for i, nd := range n.nodes {
		record := model.NodeRecord{
			Name:         nd.name,
			Chance:       nd.chance,
			Attention:    nd.attention,
			ChanceStdDev: nd.chanceStdDev,
			Accuracy:     nd.accuracy,
			Weights:      nd.table,
			Children:     idsToInts(nd.children),
			Axon:         idsToInts(nd.axon),
		}
		for _, level := range nd.memory {
			record.Memory = append(record.Memory, model.MemoryRecord{
				Name:      level.Name,
				Chance:    level.Chance,
				Attention: level.Attention,
				Weights:   level.Table,
			})
		}
		records[i] = record
	}
	return records
}

// FromRecords rebuilds a network exported by Export. Children must refer to
// earlier records; axon entries may refer to any record.
func FromRecords(records []model.NodeRecord) (*Network, error) {
	n := NewNetwork()
	for i, record := range records {
		table := bayes.Table(record.Weights)
		chance, attention := record.Chance, record.Attention
		id, err := n.Add(NodeConfig{
			Name:      record.Name,
			Attention: &attention,
			Chance:    &chance,
			Children:  intsToIDs(record.Children),
			Table:     &table,
		})
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if math.IsNaN(record.ChanceStdDev) || math.IsInf(record.ChanceStdDev, 0) || record.ChanceStdDev < 0 {
			return nil, fmt.Errorf("record %d: %w: chance std dev %v", i, ErrInvalidArgument, record.ChanceStdDev)
		}
		if math.IsNaN(record.Accuracy) || record.Accuracy < 0 || record.Accuracy > 1 {
			return nil, fmt.Errorf("record %d: %w: accuracy %v not in range 0 to 1", i, ErrInvalidArgument, record.Accuracy)
		}
		nd := n.nodes[id]
		nd.chanceStdDev = record.ChanceStdDev
		nd.accuracy = record.Accuracy
		for _, level := range record.Memory {
			levelTable := bayes.Table(level.Weights)
			if err := levelTable.Validate(); err != nil {
				return nil, fmt.Errorf("record %d memory %s: %w", i, level.Name, err)
			}
			if err := checkAttention(level.Attention); err != nil {
				return nil, fmt.Errorf("record %d memory %s: %w", i, level.Name, err)
			}
			nd.memory = append(nd.memory, MemoryLevel{
				Name:      level.Name,
				Children:  append([]NodeID(nil), nd.children...),
				Table:     levelTable,
				Chance:    level.Chance,
				Attention: level.Attention,
			})
		}
	}
	for i, record := range records {
		for _, parent := range record.Axon {
			if err := n.Connect(NodeID(i), NodeID(parent)); err != nil {
				return nil, fmt.Errorf("record %d axon: %w", i, err)
			}
		}
	}
	return n, nil
}

func idsToInts(ids []NodeID) []int {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}

func intsToIDs(values []int) []NodeID {
	if len(values) == 0 {
		return nil
	}
	out := make([]NodeID, len(values))
	for i, v := range values {
		out[i] = NodeID(v)
	}
	return out
}
