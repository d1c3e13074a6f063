package stats

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"bayescortex/internal/model"
)

func sampleRun(id, created string) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: 1, CodecVersion: 1},
		ID:              id,
		Network:         "demo",
		CreatedAtUTC:    created,
		Seed:            3,
		Steps:           2,
		Consistency:     "previous",
		Stats: []model.StepStats{
			{Step: 1, MeanChance: 0.5, MeanAttention: 0.5, MeanAccuracy: 0.25, MeanStdDev: 0.01},
			{Step: 2, MeanChance: 0.4, MeanAttention: 0.55, MeanAccuracy: 0.75, MeanStdDev: 0.02, MaxTableDrift: 0.003},
		},
	}
}

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")
	run := sampleRun("run-123", "2026-05-01T00:00:00Z")

	runDir, err := WriteRunArtifacts(baseDir, run)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, file := range []string{runFile, stepsFile} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	loaded, ok, err := ReadRun(baseDir, run.ID)
	if err != nil || !ok {
		t.Fatalf("read run: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(loaded, run) {
		t.Fatalf("unexpected run: %+v", loaded)
	}

	steps, ok, err := ReadSteps(baseDir, run.ID)
	if err != nil || !ok {
		t.Fatalf("read steps: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(steps, run.Stats) {
		t.Fatalf("unexpected steps: %+v", steps)
	}

	exported, err := ExportRunArtifacts(baseDir, run.ID, outDir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exported, stepsFile)); err != nil {
		t.Fatalf("expected exported steps: %v", err)
	}
}

func TestWriteRunArtifactsRequiresID(t *testing.T) {
	if _, err := WriteRunArtifacts(t.TempDir(), model.RunRecord{}); err == nil {
		t.Fatal("expected missing run id error")
	}
	if _, ok, err := ReadSteps(t.TempDir(), "missing"); ok || err != nil {
		t.Fatalf("expected missing steps, ok=%v err=%v", ok, err)
	}
}

func TestRunIDsStayInsideBaseDir(t *testing.T) {
	root := t.TempDir()
	baseDir := filepath.Join(root, "runs")
	for _, id := range []string{"..", ".", "../escape", "a/b", `a\b`} {
		run := sampleRun(id, "2026-01-01T00:00:00Z")
		if _, err := WriteRunArtifacts(baseDir, run); !errors.Is(err, ErrInvalidRunID) {
			t.Fatalf("write %q: expected ErrInvalidRunID, got %v", id, err)
		}
		if _, _, err := ReadRun(baseDir, id); !errors.Is(err, ErrInvalidRunID) {
			t.Fatalf("read %q: expected ErrInvalidRunID, got %v", id, err)
		}
		if _, err := ExportRunArtifacts(baseDir, id, filepath.Join(root, "out")); !errors.Is(err, ErrInvalidRunID) {
			t.Fatalf("export %q: expected ErrInvalidRunID, got %v", id, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "escape")); !os.IsNotExist(err) {
		t.Fatalf("expected nothing written outside base dir, stat err=%v", err)
	}
	if err := ValidateRunID("run-1.v2"); err != nil {
		t.Fatalf("expected plain id to pass: %v", err)
	}
}

func TestRunIndexNewestFirst(t *testing.T) {
	baseDir := t.TempDir()
	for _, run := range []model.RunRecord{
		sampleRun("a", "2026-01-01T00:00:00Z"),
		sampleRun("b", "2026-02-01T00:00:00Z"),
	} {
		if err := AppendRunIndex(baseDir, IndexEntry(run)); err != nil {
			t.Fatalf("append index: %v", err)
		}
	}
	updated := IndexEntry(sampleRun("a", "2026-03-01T00:00:00Z"))
	if err := AppendRunIndex(baseDir, updated); err != nil {
		t.Fatalf("append index: %v", err)
	}

	entries, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(entries) != 2 || entries[0].RunID != "a" || entries[1].RunID != "b" {
		t.Fatalf("unexpected index: %+v", entries)
	}
	if entries[0].FinalMeanAccuracy != 0.75 {
		t.Fatalf("unexpected final accuracy: %v", entries[0].FinalMeanAccuracy)
	}
}
