package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"bayescortex/internal/model"
)

const (
	runIndexFile = "run_index.json"
	runFile      = "run.json"
	stepsFile    = "steps.csv"
)

var ErrInvalidRunID = errors.New("invalid run id")

var stepsHeader = []string{"step", "mean_chance", "mean_attention", "mean_accuracy", "mean_std_dev", "max_table_drift"}

type RunIndexEntry struct {
	RunID             string  `json:"run_id"`
	Network           string  `json:"network"`
	CreatedAtUTC      string  `json:"created_at_utc"`
	Steps             int     `json:"steps"`
	Consistency       string  `json:"consistency"`
	FinalMeanAccuracy float64 `json:"final_mean_accuracy"`
}

// IndexEntry derives the index line for a run.
func IndexEntry(run model.RunRecord) RunIndexEntry {
	entry := RunIndexEntry{
		RunID:        run.ID,
		Network:      run.Network,
		CreatedAtUTC: run.CreatedAtUTC,
		Steps:        run.Steps,
		Consistency:  run.Consistency,
	}
	if n := len(run.Stats); n > 0 {
		entry.FinalMeanAccuracy = run.Stats[n-1].MeanAccuracy
	}
	return entry
}

// WriteRunArtifacts writes run.json and steps.csv under baseDir/<run id> and
// returns that directory.
// ValidateRunID accepts ids that name exactly one directory under the
// artifacts root.
func ValidateRunID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, id)
	}
	return nil
}

func WriteRunArtifacts(baseDir string, run model.RunRecord) (string, error) {
	if err := ValidateRunID(run.ID); err != nil {
		return "", err
	}

	runDir := filepath.Join(baseDir, run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, runFile), run); err != nil {
		return "", err
	}
	if err := writeSteps(filepath.Join(runDir, stepsFile), run.Stats); err != nil {
		return "", err
	}
	return runDir, nil
}

func ReadRun(baseDir, runID string) (model.RunRecord, bool, error) {
	if err := ValidateRunID(runID); err != nil {
		return model.RunRecord{}, false, err
	}
	data, err := os.ReadFile(filepath.Join(baseDir, runID, runFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, false, err
	}
	return run, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

// ExportRunArtifacts copies a run directory's artifacts to outDir/<run id>.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if err := ValidateRunID(runID); err != nil {
		return "", err
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}
	for _, file := range []string{runFile, stepsFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func writeSteps(path string, steps []model.StepStats) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(stepsHeader); err != nil {
		return err
	}
	for _, s := range steps {
		if err := writer.Write([]string{
			strconv.Itoa(s.Step),
			formatFloat(s.MeanChance),
			formatFloat(s.MeanAttention),
			formatFloat(s.MeanAccuracy),
			formatFloat(s.MeanStdDev),
			formatFloat(s.MaxTableDrift),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadSteps parses a run's steps.csv.
func ReadSteps(baseDir, runID string) ([]model.StepStats, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, stepsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.StepStats{}, true, nil
		}
		return nil, false, err
	}
	if len(header) != len(stepsHeader) {
		return nil, false, fmt.Errorf("steps header must have %d columns", len(stepsHeader))
	}

	steps := make([]model.StepStats, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		step, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, false, err
		}
		values := make([]float64, len(record)-1)
		for i, field := range record[1:] {
			if values[i], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, false, err
			}
		}
		steps = append(steps, model.StepStats{
			Step:          step,
			MeanChance:    values[0],
			MeanAttention: values[1],
			MeanAccuracy:  values[2],
			MeanStdDev:    values[3],
			MaxTableDrift: values[4],
		})
	}
	return steps, true, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
