package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"bayescortex/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	snapshots   map[string]model.NetworkSnapshot
	runs        map[string]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.snapshots = make(map[string]model.NetworkSnapshot)
	s.runs = make(map[string]model.RunRecord)
	return nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snapshot model.NetworkSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.snapshots[snapshot.ID] = cloneSnapshot(snapshot)
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, id string) (model.NetworkSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[id]
	if !ok {
		return model.NetworkSnapshot{}, false, nil
	}
	return cloneSnapshot(snapshot), true, nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context, runID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []model.NetworkSnapshot
	for _, snapshot := range s.snapshots {
		if snapshot.RunID == runID {
			matches = append(matches, snapshot)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Step != matches[j].Step {
			return matches[i].Step < matches[j].Step
		}
		return matches[i].ID < matches[j].ID
	})
	ids := make([]string, len(matches))
	for i, snapshot := range matches {
		ids[i] = snapshot.ID
	}
	return ids, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	run.SnapshotIDs = append([]string(nil), run.SnapshotIDs...)
	run.Stats = append([]model.StepStats(nil), run.Stats...)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sortRunsNewestFirst(runs)
	return runs, nil
}

func sortRunsNewestFirst(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC > runs[j].CreatedAtUTC
		}
		return runs[i].ID < runs[j].ID
	})
}

func cloneSnapshot(snapshot model.NetworkSnapshot) model.NetworkSnapshot {
	nodes := make([]model.NodeRecord, len(snapshot.Nodes))
	for i, record := range snapshot.Nodes {
		record.Children = append([]int(nil), record.Children...)
		record.Axon = append([]int(nil), record.Axon...)
		record.Memory = append([]model.MemoryRecord(nil), record.Memory...)
		nodes[i] = record
	}
	snapshot.Nodes = nodes
	return snapshot
}
