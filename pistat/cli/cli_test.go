package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pistat/pistat/branchstats"
	"github.com/ZanzyTHEbar/pistat/pistat/transfer"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("session: cli-test\nworker: tester\nlogging:\n  level: error\nledger:\n  inMemory: true\n"), 0o644))

	cmd := NewRootCmd("test", "abc", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeRecord(t *testing.T, dir, name string, rec *branchstats.Record) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, transfer.PersistRecord(path, rec))
	return path
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	rec := branchstats.New()
	rec.MaxDepth = 4
	rec.MaxTotalDepth = 10
	rec.Put(branchstats.Down, 1, branchstats.VarStats{Branchings: 3, Pseudocost: 2})
	rec.Put(branchstats.Up, 1, branchstats.VarStats{Branchings: 1, Pseudocost: 6})
	rec.Put(branchstats.Up, 2, branchstats.VarStats{Branchings: 1})
	path := writeRecord(t, dir, "a.pist", rec)

	out, err := runCLI(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "maxDepth=4 maxTotalDepth=10")
	assert.Contains(t, out, "both ways: 1 of 2")

	env := transfer.NewEnvelope("s", "memory", "w", rec)
	data, err := env.Seal()
	require.NoError(t, err)
	envPath := filepath.Join(dir, "a.piev")
	require.NoError(t, os.WriteFile(envPath, data, 0o644))

	out, err = runCLI(t, "inspect", "-v", envPath)
	require.NoError(t, err)
	assert.Contains(t, out, env.ID.String())
	assert.Contains(t, out, "x2 n=1")
}

func TestInspectRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pist")
	require.NoError(t, os.WriteFile(path, []byte("PIST\x01"), 0o644))
	_, err := runCLI(t, "inspect", path)
	assert.ErrorIs(t, err, branchstats.ErrTruncated)
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	base := branchstats.New()
	base.MaxTotalDepth = 5
	base.Put(branchstats.Up, 3, branchstats.VarStats{Branchings: 3, Pseudocost: 2})
	inc := branchstats.New()
	inc.MaxTotalDepth = 12
	inc.Put(branchstats.Up, 3, branchstats.VarStats{Branchings: 1, Pseudocost: 6})
	inc.Put(branchstats.Down, 8, branchstats.VarStats{Branchings: 2, Pseudocost: 1})

	basePath := writeRecord(t, dir, "base.pist", base)
	incPath := writeRecord(t, dir, "inc.pist", inc)
	outPath := filepath.Join(dir, "out.pist")

	_, err := runCLI(t, "merge", basePath, incPath, "-o", outPath)
	require.NoError(t, err)

	merged, err := transfer.LoadRecord(outPath)
	require.NoError(t, err)
	assert.Equal(t, 12, merged.MaxTotalDepth)
	up3, ok := merged.Get(branchstats.Up, 3)
	require.True(t, ok)
	assert.Equal(t, int64(4), up3.Branchings)
	assert.InDelta(t, 3.0, up3.Pseudocost, 1e-12)
	_, ok = merged.Get(branchstats.Down, 8)
	assert.True(t, ok)
}

func TestMergeRequiresOutput(t *testing.T) {
	dir := t.TempDir()
	p := writeRecord(t, dir, "a.pist", branchstats.New())
	_, err := runCLI(t, "merge", p, p)
	assert.Error(t, err)
}

func TestSendWithoutPeers(t *testing.T) {
	p := writeRecord(t, t.TempDir(), "a.pist", branchstats.New())
	_, err := runCLI(t, "send", p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no peers")
}
