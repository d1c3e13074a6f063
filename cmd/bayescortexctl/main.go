package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"bayescortex/internal/nn"
	"bayescortex/internal/stats"
	"bayescortex/internal/storage"
	api "bayescortex/pkg/bayescortex"
)

const (
	artifactsDir = "runs"
	exportsDir   = "exports"
	dbPath       = "bayescortex.db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:], out)
	case "run":
		return runRun(ctx, args[1:], out)
	case "runs":
		return runRuns(ctx, args[1:], out)
	case "snapshots":
		return runSnapshots(ctx, args[1:], out)
	case "show":
		return runShow(ctx, args[1:], out)
	case "export":
		return runExport(ctx, args[1:], out)
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type storeFlags struct {
	kind         *string
	dbPath       *string
	codec        *string
	artifactsDir *string
	logLevel     *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind:         fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:       fs.String("db-path", dbPath, "sqlite database path"),
		codec:        fs.String("codec", "json", "record codec: json|cbor"),
		artifactsDir: fs.String("artifacts-dir", artifactsDir, "directory for run artifacts"),
		logLevel:     fs.String("log-level", "info", "log level: debug|info|warn|error|disabled"),
	}
}

func (f storeFlags) client() (*api.Client, error) {
	logger, err := newLogger(*f.logLevel)
	if err != nil {
		return nil, err
	}
	return api.New(api.Options{
		StoreKind:    *f.kind,
		DBPath:       *f.dbPath,
		Codec:        *f.codec,
		ArtifactsDir: *f.artifactsDir,
		ExportsDir:   exportsDir,
		Logger:       &logger,
	})
}

func newLogger(level string) (zerolog.Logger, error) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(parsed)
	return logger, nil
}

func openClient(ctx context.Context, f storeFlags) (*api.Client, error) {
	client, err := f.client()
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func runInit(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(ctx, sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	fmt.Fprintf(out, "initialized store=%s codec=%s\n", *sf.kind, *sf.codec)
	return nil
}

func runRun(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	configPath := fs.String("config", "", "optional run config TOML path")
	networkPath := fs.String("network", "", "network spec TOML path (default: built-in demo)")
	fromSnapshot := fs.String("from-snapshot", "", "resume from a stored snapshot id")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	steps := fs.Int("steps", 100, "number of steps")
	seed := fs.Int64("seed", 1, "rng seed for generated wiring and random tables")
	consistency := fs.String("consistency", "previous", "neighbour reads: previous|live")
	snapshotEvery := fs.Int("snapshot-every", 0, "store a snapshot every N steps (0 disables)")
	jsonOut := fs.Bool("json", false, "emit the run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req := api.RunRequest{
		RunID:         *runID,
		SpecPath:      *networkPath,
		FromSnapshot:  *fromSnapshot,
		Steps:         *steps,
		Seed:          *seed,
		Consistency:   *consistency,
		SnapshotEvery: *snapshotEvery,
	}
	if *configPath != "" {
		cfg, err := loadRunConfig(*configPath)
		if err != nil {
			return err
		}
		req = cfg.merge(req, setFlags)
		cfg.Store.apply(sf, setFlags)
	}

	client, err := openClient(ctx, sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		if nn.IsFatal(err) {
			return fmt.Errorf("network integrity violated: %w", err)
		}
		return err
	}

	if *jsonOut {
		return writeJSON(out, summary)
	}
	fmt.Fprintf(out, "run_id=%s network=%s nodes=%d steps=%d consistency=%s snapshots=%d\n",
		summary.RunID, summary.Network, summary.Nodes, summary.Steps, summary.Consistency, len(summary.SnapshotIDs))
	fmt.Fprintf(out, "mean_chance=%.6f mean_attention=%.6f mean_accuracy=%.6f max_table_drift=%.6g\n",
		summary.Final.MeanChance, summary.Final.MeanAttention, summary.Final.MeanAccuracy, summary.Final.MaxTableDrift)
	fmt.Fprintf(out, "artifacts=%s\n", summary.Directory)
	return nil
}

func runRuns(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	source := fs.String("source", "index", "where to list runs from: index|store")
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	var (
		client *api.Client
		err    error
	)
	switch *source {
	case "index":
		client, err = sf.client()
	case "store":
		client, err = openClient(ctx, sf)
	default:
		return fmt.Errorf("unsupported runs source: %s", *source)
	}
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	var entries []stats.RunIndexEntry
	if *source == "store" {
		runs, err := client.Runs(ctx, *limit)
		if err != nil {
			return err
		}
		entries = make([]stats.RunIndexEntry, 0, len(runs))
		for _, run := range runs {
			entries = append(entries, stats.IndexEntry(run))
		}
	} else {
		entries, err = client.RunIndex(*limit)
		if err != nil {
			return err
		}
	}
	if *jsonOut {
		return writeJSON(out, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "run_id=%s created_at=%s network=%s steps=%d consistency=%s final_mean_accuracy=%.6f\n",
			e.RunID, e.CreatedAtUTC, e.Network, e.Steps, e.Consistency, e.FinalMeanAccuracy)
	}
	return nil
}

func runSnapshots(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("snapshots", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("snapshots requires --run-id")
	}

	client, err := openClient(ctx, sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	ids, err := client.Snapshots(ctx, *runID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "no snapshots found")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

func runShow(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	snapshotID := fs.String("snapshot", "", "snapshot id")
	node := fs.String("node", "", "only show the named node")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *snapshotID == "" {
		return errors.New("show requires --snapshot")
	}

	client, err := openClient(ctx, sf)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	snapshot, err := client.Snapshot(ctx, *snapshotID)
	if err != nil {
		return err
	}
	net, err := nn.FromRecords(snapshot.Nodes)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "snapshot=%s run_id=%s step=%d nodes=%d\n", snapshot.ID, snapshot.RunID, snapshot.Step, net.Len())
	for _, view := range net.Nodes() {
		if *node != "" && view.Name != *node {
			continue
		}
		fmt.Fprintln(out, net.String(view.ID))
	}
	return nil
}

func runExport(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, *runID, *outDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func writeJSON(out io.Writer, value any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: bayescortexctl <init|run|runs|snapshots|show|export> [flags]", msg)
}
