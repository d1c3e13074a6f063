package storage

import (
	"context"
	"reflect"
	"testing"

	"bayescortex/internal/model"
)

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), model.RunRecord{ID: "run-1"}); err == nil {
		t.Fatal("expected error before init")
	}
}

func TestMemoryStoreSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := sampleSnapshot()
	if err := store.SaveSnapshot(ctx, input); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	input.Nodes[0].Axon[0] = 42

	output, ok, err := store.GetSnapshot(ctx, "snap-1")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted snapshot")
	}
	if !reflect.DeepEqual(output, sampleSnapshot()) {
		t.Fatalf("stored snapshot aliased caller memory: %+v", output)
	}

	if _, ok, err := store.GetSnapshot(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing snapshot, ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreListsSnapshotsByStep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, s := range []struct {
		id, run string
		step    int
	}{{"c", "run-1", 30}, {"a", "run-1", 10}, {"b", "run-1", 20}, {"z", "run-2", 5}} {
		snapshot := model.NetworkSnapshot{VersionedRecord: Versioned(), ID: s.id, RunID: s.run, Step: s.step}
		if err := store.SaveSnapshot(ctx, snapshot); err != nil {
			t.Fatalf("save snapshot: %v", err)
		}
	}

	ids, err := store.ListSnapshots(ctx, "run-1")
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected snapshot order: %v", ids)
	}
}

func TestMemoryStoreRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, run := range []model.RunRecord{
		{VersionedRecord: Versioned(), ID: "old", CreatedAtUTC: "2026-01-01T00:00:00Z"},
		{VersionedRecord: Versioned(), ID: "new", CreatedAtUTC: "2026-03-01T00:00:00Z", Stats: []model.StepStats{{Step: 1}}},
	} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "old" {
		t.Fatalf("unexpected run order: %+v", runs)
	}

	run, ok, err := store.GetRun(ctx, "new")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if len(run.Stats) != 1 {
		t.Fatalf("unexpected stats: %+v", run.Stats)
	}
}
