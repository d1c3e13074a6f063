package bayescortex

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"bayescortex/internal/model"
	"bayescortex/internal/stats"
	"bayescortex/internal/storage"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	logger := zerolog.Nop()
	client, err := New(Options{
		ArtifactsDir: filepath.Join(t.TempDir(), "runs"),
		ExportsDir:   filepath.Join(t.TempDir(), "exports"),
		Logger:       &logger,
	})
	require.NoError(t, err)
	require.NoError(t, client.Init(context.Background()))
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func smallSpec() *NetworkSpec {
	spec, err := ParseNetworkSpec([]byte(triangleSpec))
	if err != nil {
		panic(err)
	}
	return &spec
}

func TestClientRunStoresRunAndSnapshots(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	summary, err := client.Run(ctx, RunRequest{Spec: smallSpec(), RunID: "run-a", Steps: 20, SnapshotEvery: 5, Seed: 3})
	require.NoError(t, err)
	require.Equal(t, "run-a", summary.RunID)
	require.Equal(t, "triangle", summary.Network)
	require.Equal(t, 5, summary.Nodes)
	require.Equal(t, 20, summary.Final.Step)
	require.Equal(t, "previous", summary.Consistency)
	require.Equal(t, []string{"run-a-step-5", "run-a-step-10", "run-a-step-15", "run-a-step-20"}, summary.SnapshotIDs)

	run, err := client.GetRun(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, run.Stats, 20)
	for i, s := range run.Stats {
		require.Equal(t, i+1, s.Step)
		require.GreaterOrEqual(t, s.MeanChance, 0.0)
		require.LessOrEqual(t, s.MeanChance, 1.0)
	}

	ids, err := client.Snapshots(ctx, "run-a")
	require.NoError(t, err)
	require.Equal(t, summary.SnapshotIDs, ids)

	snapshot, err := client.Snapshot(ctx, "run-a-step-10")
	require.NoError(t, err)
	require.Equal(t, 10, snapshot.Step)
	require.Len(t, snapshot.Nodes, 5)
	require.Len(t, snapshot.Nodes[3].Memory, 2)

	for _, file := range []string{"run.json", "steps.csv"} {
		_, err := os.Stat(filepath.Join(summary.Directory, file))
		require.NoError(t, err)
	}
	steps, ok, err := stats.ReadSteps(filepath.Dir(summary.Directory), "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, run.Stats, steps)
}

func TestClientRunIsReproducibleForSeed(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	spec := NetworkSpec{Name: "gen", Generate: &GenerateSpec{Leaves: 6, PerLeaf: 2, MinInner: 3}, Stimulus: &StimulusSpec{}}

	a, err := client.Run(ctx, RunRequest{Spec: &spec, Steps: 15, Seed: 11})
	require.NoError(t, err)
	b, err := client.Run(ctx, RunRequest{Spec: &spec, Steps: 15, Seed: 11})
	require.NoError(t, err)
	require.NotEqual(t, a.RunID, b.RunID)
	require.Equal(t, a.Final, b.Final)

	runs, err := client.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	limited, err := client.Runs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	index, err := client.RunIndex(0)
	require.NoError(t, err)
	require.Len(t, index, 2)
}

func TestClientResumesFromSnapshot(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.Run(ctx, RunRequest{Spec: smallSpec(), RunID: "first", Steps: 10, SnapshotEvery: 10})
	require.NoError(t, err)

	resumed, err := client.Run(ctx, RunRequest{FromSnapshot: "first-step-10", RunID: "second", Steps: 5, Consistency: "live"})
	require.NoError(t, err)
	require.Equal(t, "triangle", resumed.Network)
	require.Equal(t, 5, resumed.Nodes)
	require.Equal(t, "live", resumed.Consistency)
	require.Equal(t, 15, resumed.Final.Step)

	_, err = client.Run(ctx, RunRequest{FromSnapshot: "nope"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClientResumeContinuesStimulus(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.Run(ctx, RunRequest{Spec: smallSpec(), RunID: "straight", Steps: 15, SnapshotEvery: 15})
	require.NoError(t, err)
	_, err = client.Run(ctx, RunRequest{Spec: smallSpec(), RunID: "first", Steps: 10, SnapshotEvery: 10})
	require.NoError(t, err)
	resumed, err := client.Run(ctx, RunRequest{FromSnapshot: "first-step-10", RunID: "second", Steps: 5, SnapshotEvery: 5})
	require.NoError(t, err)
	require.Equal(t, []string{"second-step-15"}, resumed.SnapshotIDs)

	straight, err := client.Snapshot(ctx, "straight-step-15")
	require.NoError(t, err)
	continued, err := client.Snapshot(ctx, "second-step-15")
	require.NoError(t, err)
	require.Equal(t, straight.Nodes, continued.Nodes)

	run, err := client.GetRun(ctx, "second")
	require.NoError(t, err)
	require.Equal(t, "first-step-10", run.FromSnapshot)
	require.Equal(t, &model.StimulusRecord{Decay: 0.1, Nodes: []string{"x", "z"}}, run.Stimulus)
	require.Equal(t, 11, run.Stats[0].Step)
}

func TestClientResumeKeepsStimulusOff(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	spec := smallSpec()
	spec.Stimulus = &StimulusSpec{Off: true}

	_, err := client.Run(ctx, RunRequest{Spec: spec, RunID: "quiet", Steps: 4, SnapshotEvery: 4})
	require.NoError(t, err)
	_, err = client.Run(ctx, RunRequest{FromSnapshot: "quiet-step-4", RunID: "quiet-2", Steps: 2})
	require.NoError(t, err)

	run, err := client.GetRun(ctx, "quiet-2")
	require.NoError(t, err)
	require.True(t, run.Stimulus.Off)
}

type failingRunStore struct {
	storage.Store
	failGetRun bool
}

func (s *failingRunStore) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	if s.failGetRun {
		return model.RunRecord{}, false, errors.New("disk on fire")
	}
	return s.Store.GetRun(ctx, id)
}

func TestClientResumeLogsSourceRunError(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	store := &failingRunStore{Store: storage.NewMemoryStore()}
	client := &Client{
		store:        store,
		logger:       zerolog.New(&logs),
		artifactsDir: filepath.Join(t.TempDir(), "runs"),
		exportsDir:   filepath.Join(t.TempDir(), "exports"),
	}
	require.NoError(t, client.Init(ctx))

	_, err := client.Run(ctx, RunRequest{Spec: smallSpec(), RunID: "first", Steps: 3, SnapshotEvery: 3})
	require.NoError(t, err)

	store.failGetRun = true
	resumed, err := client.Run(ctx, RunRequest{FromSnapshot: "first-step-3", RunID: "second", Steps: 1})
	require.NoError(t, err)
	require.Equal(t, "snapshot:first-step-3", resumed.Network)
	require.Contains(t, logs.String(), `"level":"warn"`)
	require.Contains(t, logs.String(), "disk on fire")
}

func TestClientGetRunFallsBackToArtifacts(t *testing.T) {
	ctx := context.Background()
	artifacts := filepath.Join(t.TempDir(), "runs")
	logger := zerolog.Nop()

	writer, err := New(Options{ArtifactsDir: artifacts, Logger: &logger})
	require.NoError(t, err)
	require.NoError(t, writer.Init(ctx))
	_, err = writer.Run(ctx, RunRequest{Spec: smallSpec(), RunID: "kept", Steps: 2})
	require.NoError(t, err)

	reader, err := New(Options{ArtifactsDir: artifacts, Logger: &logger})
	require.NoError(t, err)
	require.NoError(t, reader.Init(ctx))
	run, err := reader.GetRun(ctx, "kept")
	require.NoError(t, err)
	require.Equal(t, "triangle", run.Network)
	require.Len(t, run.Stats, 2)

	_, err = reader.GetRun(ctx, "../kept")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClientRunValidatesRequest(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.Run(ctx, RunRequest{Steps: -1})
	require.Error(t, err)
	_, err = client.Run(ctx, RunRequest{SnapshotEvery: -1})
	require.Error(t, err)
	_, err = client.Run(ctx, RunRequest{Consistency: "eventual"})
	require.Error(t, err)
	_, err = client.Run(ctx, RunRequest{SpecPath: filepath.Join(t.TempDir(), "missing.toml")})
	require.Error(t, err)
	for _, id := range []string{"..", "../outside", "a/b"} {
		_, err = client.Run(ctx, RunRequest{Spec: smallSpec(), RunID: id, Steps: 1})
		require.ErrorIs(t, err, stats.ErrInvalidRunID, id)
	}

	_, err = client.GetRun(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = client.Snapshot(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClientExportLatest(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.Export(ctx, "", "")
	require.Error(t, err)

	_, err = client.Run(ctx, RunRequest{Spec: smallSpec(), RunID: "only", Steps: 3})
	require.NoError(t, err)

	exported, err := client.Export(ctx, "", "")
	require.NoError(t, err)
	require.Equal(t, "only", exported.RunID)
	_, err = os.Stat(filepath.Join(exported.Directory, "steps.csv"))
	require.NoError(t, err)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New(Options{StoreKind: "postgres"})
	require.Error(t, err)
	_, err = New(Options{Codec: "xml"})
	require.Error(t, err)
}
