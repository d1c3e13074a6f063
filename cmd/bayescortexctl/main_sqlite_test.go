//go:build sqlite

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"bayescortex/internal/stats"
)

func TestSnapshotsAndShowAcrossCommands(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db := filepath.Join(dir, "bayescortex.db")
	network := writeFile(t, dir, "net.toml", testNetwork)
	common := []string{"-log-level", "disabled", "-store", "sqlite", "-db-path", db, "-codec", "cbor", "-artifacts-dir", filepath.Join(dir, "runs")}

	var out bytes.Buffer
	require.NoError(t, run(ctx, append([]string{"run", "-network", network, "-steps", "6", "-snapshot-every", "3", "-run-id", "sq"}, common...), &out))

	out.Reset()
	require.NoError(t, run(ctx, append([]string{"snapshots", "-run-id", "sq"}, common...), &out))
	require.Equal(t, "sq-step-3\nsq-step-6\n", out.String())

	out.Reset()
	require.NoError(t, run(ctx, append([]string{"show", "-snapshot", "sq-step-6", "-node", "pixel0"}, common...), &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "snapshot=sq-step-6 run_id=sq step=6 nodes=18", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "[Node_pixel0 "))

	out.Reset()
	require.NoError(t, run(ctx, append([]string{"run", "-from-snapshot", "sq-step-6", "-steps", "2", "-run-id", "resumed"}, common...), &out))
	require.Contains(t, out.String(), "run_id=resumed network=cli nodes=18")

	out.Reset()
	require.NoError(t, run(ctx, append([]string{"runs", "-source", "store", "-json"}, common...), &out))
	var entries []stats.RunIndexEntry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	require.Len(t, entries, 2)
	require.Equal(t, "resumed", entries[0].RunID)
	require.Equal(t, "sq", entries[1].RunID)
}
