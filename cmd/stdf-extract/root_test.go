package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/stdf-plugin/testutil"
)

func writeSampleLot(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "lot42.stdf")
	require.NoError(t, os.WriteFile(path, testutil.SampleLot(t), 0o644))
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetOut(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stderr.String(), err
}

func TestRootCmd_WritesAllOutputs(t *testing.T) {
	dir := t.TempDir()
	inPath := writeSampleLot(t, dir)
	outDir := filepath.Join(dir, "out")

	_, err := runCommand(t, "--out", outDir, inPath)
	require.NoError(t, err)

	wide, err := os.ReadFile(filepath.Join(outDir, "lot42.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(wide)), "\n")
	require.Len(t, lines, 3) // header + two parts
	assert.Contains(t, lines[0], "Vcc")
	assert.Contains(t, lines[1], "P1")

	limits, err := os.ReadFile(filepath.Join(outDir, "lot42-limits.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(limits), "final_test")

	metaRaw, err := os.ReadFile(filepath.Join(outDir, "lot42-meta.json"))
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(metaRaw, &meta))
	assert.Equal(t, "LOT42", meta["lot_id"])
	assert.Equal(t, "lot42", meta["filename"])
}

func TestRootCmd_FilterFlag(t *testing.T) {
	dir := t.TempDir()
	inPath := writeSampleLot(t, dir)
	outDir := filepath.Join(dir, "out")

	_, err := runCommand(t, "--out", outDir, "--filter", "passed", inPath)
	require.NoError(t, err)

	wide, err := os.ReadFile(filepath.Join(outDir, "lot42.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(wide)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "P1")
}

func TestRootCmd_ConfigFileWithFlagOverride(t *testing.T) {
	dir := t.TempDir()
	inPath := writeSampleLot(t, dir)
	cfgPath := filepath.Join(dir, "extract.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("output_dir: "+filepath.Join(dir, "from-config")+"\n"), 0o644))
	outDir := filepath.Join(dir, "from-flag")

	_, err := runCommand(t, "--config", cfgPath, "--out", outDir, inPath)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(outDir, "lot42.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "from-config"))
	assert.True(t, os.IsNotExist(err))
}

func TestRootCmd_RejectsBadPolicy(t *testing.T) {
	dir := t.TempDir()
	inPath := writeSampleLot(t, dir)

	_, err := runCommand(t, "--orphan-policy", "keep", inPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orphan_policy")
}

func TestRootCmd_MissingInput(t *testing.T) {
	_, err := runCommand(t, filepath.Join(t.TempDir(), "absent.stdf"))
	require.Error(t, err)
}

func TestRootCmd_TruncatedInputFailsWithoutOutput(t *testing.T) {
	dir := t.TempDir()
	data := testutil.SampleLot(t)
	data = append(data, 20, 0, 15, 10, 1, 2, 3) // header declares more than remains
	inPath := filepath.Join(dir, "broken.stdf")
	require.NoError(t, os.WriteFile(inPath, data, 0o644))
	outDir := filepath.Join(dir, "out")

	_, err := runCommand(t, "--out", outDir, inPath)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(outDir, "broken.csv"))
	assert.True(t, os.IsNotExist(statErr))
}
