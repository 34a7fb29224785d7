package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/housemon/internal/record"
	"codeberg.org/mutker/housemon/internal/report"
)

func readSummary(t *testing.T, path string) report.Summary {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var s report.Summary
	require.NoError(t, json.Unmarshal(data, &s))
	return s
}

func setReportPaths(t *testing.T, dir string) (string, string) {
	t.Helper()
	table := filepath.Join(dir, "table.htm")
	summary := filepath.Join(dir, "summary.json")
	t.Setenv("HOUSEMON_REPORT_TABLE", table)
	t.Setenv("HOUSEMON_REPORT_SUMMARY", summary)
	return table, summary
}

func TestRunWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "housemon.yaml")
	assert.Equal(t, 0, run([]string{"--write-config", path}))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestRunInvalidConfig(t *testing.T) {
	assert.Equal(t, 1, run([]string{"--delay", "0", "--log-file", ""}))
	assert.Equal(t, 1, run([]string{"--file", "records.txt", "--log-file", ""}))
	assert.Equal(t, 1, run([]string{"--sensor", "thermocouple", "--log-file", ""}))
}

func TestRunHelp(t *testing.T) {
	assert.Equal(t, 0, run([]string{"--help"}))
}

func TestRunSimulated(t *testing.T) {
	dir := t.TempDir()
	table, summary := setReportPaths(t, dir)
	file := filepath.Join(dir, "run.csv")

	code := run([]string{
		"--sensor", "simulated",
		"--file", file,
		"--delay", "1",
		"--count", "3",
		"--log-file", "",
	})
	require.Equal(t, 0, code)

	records, err := record.Load(file)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, err = os.Stat(table)
	assert.NoError(t, err)
	assert.Equal(t, 3, readSummary(t, summary).Count, "report saw every record")

	// A second run rotates the first file away.
	require.Equal(t, 0, run([]string{
		"--sensor", "simulated", "--file", file, "--delay", "1", "--count", "1", "--log-file", "",
	}))
	old, err := record.Load(record.RotatedPath(file))
	require.NoError(t, err)
	assert.Len(t, old, 3)
	assert.Equal(t, 1, readSummary(t, summary).Count)
}

func TestRunRenderOnce(t *testing.T) {
	dir := t.TempDir()
	_, summary := setReportPaths(t, dir)
	file := filepath.Join(dir, "records.csv")
	_, err := record.Open(file)
	require.NoError(t, err)

	require.Equal(t, 0, run([]string{"--render-once", "--file", file, "--log-file", ""}))
	_, err = os.Stat(summary)
	assert.NoError(t, err)

	assert.Equal(t, 1, run([]string{"--render-once", "--file", filepath.Join(dir, "missing.csv"), "--log-file", ""}))
}
