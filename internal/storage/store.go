package storage

import (
	"context"

	"bayescortex/internal/model"
)

// Store persists network snapshots and run records.
type Store interface {
	Init(ctx context.Context) error
	SaveSnapshot(ctx context.Context, snapshot model.NetworkSnapshot) error
	GetSnapshot(ctx context.Context, id string) (model.NetworkSnapshot, bool, error)
	// ListSnapshots returns the snapshot ids of a run ordered by step.
	ListSnapshots(ctx context.Context, runID string) ([]string, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns run records newest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
}
