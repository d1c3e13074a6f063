package bayescortex

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"

	"bayescortex/internal/agent"
	"bayescortex/internal/model"
	"bayescortex/internal/nn"
	"bayescortex/internal/stats"
	"bayescortex/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "bayescortex.db"
	defaultSteps        = 100
)

var ErrNotFound = errors.New("not found")

type Options struct {
	StoreKind    string
	DBPath       string
	Codec        string
	ArtifactsDir string
	ExportsDir   string
	Logger       *zerolog.Logger
}

type Client struct {
	store  storage.Store
	logger zerolog.Logger

	artifactsDir string
	exportsDir   string
}

type RunRequest struct {
	// Spec wins over SpecPath; with neither the demo network is used.
	Spec     *NetworkSpec
	SpecPath string
	// FromSnapshot resumes from a stored snapshot instead of building a
	// network. Step numbering and the stimulus carry on from the run that
	// stored it.
	FromSnapshot  string
	RunID         string
	Steps         int
	Seed          int64
	Consistency   string
	SnapshotEvery int
}

type RunSummary struct {
	RunID       string
	Network     string
	Nodes       int
	Steps       int
	Consistency string
	SnapshotIDs []string
	Final       model.StepStats
	Directory   string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	store, err := storage.NewStore(storeKind, dbPath, opts.Codec)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		logger:       logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Steps < 0 {
		return RunSummary{}, errors.New("steps must be >= 0")
	}
	if req.Steps == 0 {
		req.Steps = defaultSteps
	}
	if req.SnapshotEvery < 0 {
		return RunSummary{}, errors.New("snapshot interval must be >= 0")
	}
	consistency, err := agent.ParseConsistency(req.Consistency)
	if err != nil {
		return RunSummary{}, err
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	if err := stats.ValidateRunID(runID); err != nil {
		return RunSummary{}, err
	}

	resolved, err := c.resolveNetwork(ctx, req)
	if err != nil {
		return RunSummary{}, err
	}
	networkName, net := resolved.name, resolved.net

	logger := c.logger.With().Str("run", runID).Str("network", networkName).Logger()
	opts := []agent.Option{agent.WithConsistency(consistency), agent.WithLogger(logger), agent.WithStartStep(resolved.startStep)}
	if resolved.stimulus != nil {
		opts = append(opts, agent.WithStimulus(resolved.stimulus))
	}
	cortex, err := agent.NewCortex(runID, net, opts...)
	if err != nil {
		return RunSummary{}, err
	}

	run := model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              runID,
		Network:         networkName,
		CreatedAtUTC:    time.Now().UTC().Format(time.RFC3339Nano),
		Seed:            req.Seed,
		Steps:           req.Steps,
		Consistency:     string(consistency),
		FromSnapshot:    req.FromSnapshot,
		Stimulus:        resolved.stimulusRecord,
		Stats:           make([]model.StepStats, 0, req.Steps),
	}
	tracker := stats.NewTracker()

	logger.Info().Int("nodes", net.Len()).Int("steps", req.Steps).Str("consistency", string(consistency)).Msg("run started")
	err = cortex.Run(ctx, req.Steps, func(report agent.StepReport) error {
		var (
			summary  model.StepStats
			snapshot *model.NetworkSnapshot
		)
		if err := cortex.Do(func(net *nn.Network) error {
			summary = tracker.Observe(report.Step, net.Nodes())
			if req.SnapshotEvery > 0 && report.Step%req.SnapshotEvery == 0 {
				snapshot = &model.NetworkSnapshot{
					VersionedRecord: storage.Versioned(),
					ID:              fmt.Sprintf("%s-step-%d", runID, report.Step),
					RunID:           runID,
					Step:            report.Step,
					Nodes:           net.Export(),
				}
			}
			return nil
		}); err != nil {
			return err
		}
		run.Stats = append(run.Stats, summary)
		if snapshot != nil {
			if err := c.store.SaveSnapshot(ctx, *snapshot); err != nil {
				return fmt.Errorf("save snapshot %s: %w", snapshot.ID, err)
			}
			run.SnapshotIDs = append(run.SnapshotIDs, snapshot.ID)
		}
		return nil
	})
	if err != nil {
		return RunSummary{}, fmt.Errorf("run %s: %w", runID, err)
	}

	if err := c.store.SaveRun(ctx, run); err != nil {
		return RunSummary{}, err
	}
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, run)
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.IndexEntry(run)); err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{
		RunID:       runID,
		Network:     networkName,
		Nodes:       net.Len(),
		Steps:       req.Steps,
		Consistency: string(consistency),
		SnapshotIDs: run.SnapshotIDs,
		Directory:   runDir,
	}
	if n := len(run.Stats); n > 0 {
		summary.Final = run.Stats[n-1]
	}
	logger.Info().Float64("mean_accuracy", summary.Final.MeanAccuracy).Int("snapshots", len(run.SnapshotIDs)).Msg("run stored")
	return summary, nil
}

// Runs lists stored runs newest first, at most limit when limit > 0.
func (c *Client) Runs(ctx context.Context, limit int) ([]model.RunRecord, error) {
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// RunIndex reads the on-disk run index, which outlives in-memory stores.
func (c *Client) RunIndex(limit int) ([]stats.RunIndexEntry, error) {
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// GetRun reads a run from the store, then from its run.json artifact, which
// outlives in-memory stores.
func (c *Client) GetRun(ctx context.Context, id string) (model.RunRecord, error) {
	run, ok, err := c.store.GetRun(ctx, id)
	if err != nil {
		return model.RunRecord{}, err
	}
	if ok {
		return run, nil
	}
	if stats.ValidateRunID(id) == nil {
		run, ok, err = stats.ReadRun(c.artifactsDir, id)
		if err != nil {
			return model.RunRecord{}, err
		}
		if ok {
			return run, nil
		}
	}
	return model.RunRecord{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
}

func (c *Client) Snapshot(ctx context.Context, id string) (model.NetworkSnapshot, error) {
	snapshot, ok, err := c.store.GetSnapshot(ctx, id)
	if err != nil {
		return model.NetworkSnapshot{}, err
	}
	if !ok {
		return model.NetworkSnapshot{}, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	return snapshot, nil
}

// Snapshots lists the snapshot ids of a run in step order.
func (c *Client) Snapshots(ctx context.Context, runID string) ([]string, error) {
	return c.store.ListSnapshots(ctx, runID)
}

// Export copies a run's artifacts into outDir, or the client's exports
// directory when outDir is empty. An empty runID picks the latest run.
func (c *Client) Export(_ context.Context, runID, outDir string) (ExportSummary, error) {
	if outDir == "" {
		outDir = c.exportsDir
	}
	if runID == "" {
		entries, err := stats.ListRunIndex(c.artifactsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}
	dir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, outDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(dir)}, nil
}

type resolvedNetwork struct {
	name           string
	net            *nn.Network
	stimulus       agent.Stimulus
	stimulusRecord *model.StimulusRecord
	startStep      int
}

func (c *Client) resolveNetwork(ctx context.Context, req RunRequest) (resolvedNetwork, error) {
	if req.FromSnapshot != "" {
		return c.resumeNetwork(ctx, req.FromSnapshot)
	}

	spec := DefaultNetworkSpec()
	switch {
	case req.Spec != nil:
		spec = *req.Spec
	case req.SpecPath != "":
		loaded, err := LoadNetworkSpec(req.SpecPath)
		if err != nil {
			return resolvedNetwork{}, err
		}
		spec = loaded
	}
	net, stimulus, err := spec.Build(rand.New(rand.NewSource(uint64(req.Seed))))
	if err != nil {
		return resolvedNetwork{}, err
	}
	return resolvedNetwork{name: spec.Name, net: net, stimulus: stimulus, stimulusRecord: spec.Stimulus.record()}, nil
}

// resumeNetwork restores a snapshot and rebuilds the stimulus of the run that
// stored it. Without that run the leaves get the default stimulus.
func (c *Client) resumeNetwork(ctx context.Context, snapshotID string) (resolvedNetwork, error) {
	snapshot, err := c.Snapshot(ctx, snapshotID)
	if err != nil {
		return resolvedNetwork{}, err
	}
	net, err := nn.FromRecords(snapshot.Nodes)
	if err != nil {
		return resolvedNetwork{}, fmt.Errorf("restore snapshot %s: %w", snapshot.ID, err)
	}

	name := "snapshot:" + snapshot.ID
	var stimulusRecord *model.StimulusRecord
	prior, err := c.GetRun(ctx, snapshot.RunID)
	switch {
	case err == nil:
		name = prior.Network
		stimulusRecord = prior.Stimulus
	case errors.Is(err, ErrNotFound):
	default:
		c.logger.Warn().Err(err).Str("snapshot", snapshot.ID).Str("run", snapshot.RunID).Msg("cannot read source run; using defaults")
	}

	stimulusSpec := stimulusFromRecord(stimulusRecord)
	stimulus, err := stimulusSpec.build(net)
	if err != nil {
		return resolvedNetwork{}, fmt.Errorf("restore stimulus for %s: %w", snapshot.ID, err)
	}
	return resolvedNetwork{
		name:           name,
		net:            net,
		stimulus:       stimulus,
		stimulusRecord: stimulusSpec.record(),
		startStep:      snapshot.Step,
	}, nil
}
