package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	api "bayescortex/pkg/bayescortex"
)

// runConfig is the TOML form of a run. Flags given on the command line win
// over values from the file.
type runConfig struct {
	RunID         string      `toml:"run_id"`
	Network       string      `toml:"network"`
	FromSnapshot  string      `toml:"from_snapshot"`
	Steps         int         `toml:"steps"`
	Seed          int64       `toml:"seed"`
	Consistency   string      `toml:"consistency"`
	SnapshotEvery int         `toml:"snapshot_every"`
	Store         storeConfig `toml:"store"`
}

type storeConfig struct {
	Kind         string `toml:"kind"`
	DBPath       string `toml:"db_path"`
	Codec        string `toml:"codec"`
	ArtifactsDir string `toml:"artifacts_dir"`
}

func loadRunConfig(path string) (runConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runConfig{}, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var cfg runConfig
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return runConfig{}, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return runConfig{}, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
	}
	if cfg.Steps < 0 {
		return runConfig{}, fmt.Errorf("%s: steps must be >= 0", path)
	}
	if cfg.SnapshotEvery < 0 {
		return runConfig{}, fmt.Errorf("%s: snapshot_every must be >= 0", path)
	}
	// Network paths are relative to the config file.
	if cfg.Network != "" && !filepath.IsAbs(cfg.Network) {
		cfg.Network = filepath.Join(filepath.Dir(path), cfg.Network)
	}
	return cfg, nil
}

func (c runConfig) merge(req api.RunRequest, setFlags map[string]bool) api.RunRequest {
	if c.RunID != "" && !setFlags["run-id"] {
		req.RunID = c.RunID
	}
	if c.Network != "" && !setFlags["network"] {
		req.SpecPath = c.Network
	}
	if c.FromSnapshot != "" && !setFlags["from-snapshot"] {
		req.FromSnapshot = c.FromSnapshot
	}
	if c.Steps > 0 && !setFlags["steps"] {
		req.Steps = c.Steps
	}
	if c.Seed != 0 && !setFlags["seed"] {
		req.Seed = c.Seed
	}
	if c.Consistency != "" && !setFlags["consistency"] {
		req.Consistency = c.Consistency
	}
	if c.SnapshotEvery > 0 && !setFlags["snapshot-every"] {
		req.SnapshotEvery = c.SnapshotEvery
	}
	return req
}

func (c storeConfig) apply(sf storeFlags, setFlags map[string]bool) {
	if c.Kind != "" && !setFlags["store"] {
		*sf.kind = c.Kind
	}
	if c.DBPath != "" && !setFlags["db-path"] {
		*sf.dbPath = c.DBPath
	}
	if c.Codec != "" && !setFlags["codec"] {
		*sf.codec = c.Codec
	}
	if c.ArtifactsDir != "" && !setFlags["artifacts-dir"] {
		*sf.artifactsDir = c.ArtifactsDir
	}
}
