package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version" cbor:"schema_version"`
	CodecVersion  int `json:"codec_version" cbor:"codec_version"`
}

// NetworkSnapshot is the full state of a node network after a given step.
type NetworkSnapshot struct {
	VersionedRecord
	ID    string       `json:"id" cbor:"id"`
	RunID string       `json:"run_id" cbor:"run_id"`
	Step  int          `json:"step" cbor:"step"`
	Nodes []NodeRecord `json:"nodes" cbor:"nodes"`
}

type NodeRecord struct {
	Name         string         `json:"name" cbor:"name"`
	Chance       float64        `json:"chance" cbor:"chance"`
	Attention    float64        `json:"attention" cbor:"attention"`
	ChanceStdDev float64        `json:"chance_std_dev" cbor:"chance_std_dev"`
	Accuracy     float64        `json:"accuracy" cbor:"accuracy"`
	Weights      [8]float64     `json:"weights" cbor:"weights"`
	Children     []int          `json:"children,omitempty" cbor:"children,omitempty"`
	Axon         []int          `json:"axon,omitempty" cbor:"axon,omitempty"`
	Memory       []MemoryRecord `json:"memory,omitempty" cbor:"memory,omitempty"`
}

// MemoryRecord is one level of a node's half-speed memory chain.
type MemoryRecord struct {
	Name      string     `json:"name" cbor:"name"`
	Chance    float64    `json:"chance" cbor:"chance"`
	Attention float64    `json:"attention" cbor:"attention"`
	Weights   [8]float64 `json:"weights" cbor:"weights"`
}

type StepStats struct {
	Step          int     `json:"step" cbor:"step"`
	MeanChance    float64 `json:"mean_chance" cbor:"mean_chance"`
	MeanAttention float64 `json:"mean_attention" cbor:"mean_attention"`
	MeanAccuracy  float64 `json:"mean_accuracy" cbor:"mean_accuracy"`
	MeanStdDev    float64 `json:"mean_std_dev" cbor:"mean_std_dev"`
	MaxTableDrift float64 `json:"max_table_drift" cbor:"max_table_drift"`
}

// RunRecord summarizes one simulation run.
type RunRecord struct {
	VersionedRecord
	ID           string `json:"id" cbor:"id"`
	Network      string `json:"network" cbor:"network"`
	CreatedAtUTC string `json:"created_at_utc" cbor:"created_at_utc"`
	Seed         int64  `json:"seed" cbor:"seed"`
	Steps        int    `json:"steps" cbor:"steps"`
	Consistency  string `json:"consistency" cbor:"consistency"`
	// FromSnapshot is set when the run resumed a stored snapshot.
	FromSnapshot string          `json:"from_snapshot,omitempty" cbor:"from_snapshot,omitempty"`
	Stimulus     *StimulusRecord `json:"stimulus,omitempty" cbor:"stimulus,omitempty"`
	SnapshotIDs  []string        `json:"snapshot_ids,omitempty" cbor:"snapshot_ids,omitempty"`
	Stats        []StepStats     `json:"stats,omitempty" cbor:"stats,omitempty"`
}

// StimulusRecord keeps the stimulus settings a run was driven with so a
// resumed run can rebuild them. Empty Nodes means every leaf.
type StimulusRecord struct {
	Decay float64  `json:"decay" cbor:"decay"`
	Speed float64  `json:"speed" cbor:"speed"`
	Nodes []string `json:"nodes,omitempty" cbor:"nodes,omitempty"`
	Off   bool     `json:"off,omitempty" cbor:"off,omitempty"`
}
