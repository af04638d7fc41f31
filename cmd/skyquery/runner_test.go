package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunCountQuery(t *testing.T) {
	var out bytes.Buffer
	r := &runner{out: &out}
	err := r.run([]string{
		"--num-objs", "2",
		"--query", "a",
		"--extended-price", "0.01",
		"--load-rows-per-obj", "30",
		"--quiet",
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "total result row count: 60 / 60; nrows_processed=60")
}

func TestRunRemoteCountQuery(t *testing.T) {
	var out bytes.Buffer
	r := &runner{out: &out}
	err := r.run([]string{
		"--num-objs", "2",
		"--query", "a",
		"--extended-price", "0.01",
		"--use-cls",
		"--load-rows-per-obj", "30",
		"--quiet",
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "total result row count: 60 / -1; nrows_processed=60")
}

func TestRunPointLookupPrintsRow(t *testing.T) {
	var out bytes.Buffer
	r := &runner{out: &out}
	err := r.run([]string{
		"--num-objs", "1",
		"--query", "d",
		"--order-key", "1",
		"--line-number", "2",
		"--load-rows-per-obj", "14",
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	// one result row plus the summary
	require.Equal(t, 2, len(lines))
	require.Equal(t, 7, len(strings.Split(lines[0], "|")))
}

func TestRunInvalidConfig(t *testing.T) {
	r := &runner{out: &bytes.Buffer{}}
	err := r.run([]string{"--num-objs", "0", "--query", "a"})
	require.Error(t, err)
}

func TestRunMissingQueryParam(t *testing.T) {
	r := &runner{out: &bytes.Buffer{}}
	err := r.run([]string{
		"--num-objs", "1",
		"--query", "c",
		"--load-rows-per-obj", "5",
	})
	require.Error(t, err)
}

func TestRunTimingLogFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "timings.csv")
	r := &runner{out: &bytes.Buffer{}}
	err := r.run([]string{
		"--num-objs", "3",
		"--query", "a",
		"--extended-price", "0.01",
		"--load-rows-per-obj", "10",
		"--quiet",
		"--timing-log-file", csvPath,
	})
	require.NoError(t, err)
	b, err := ioutil.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Equal(t, 4, len(lines))
	require.Equal(t, "dispatch,response,read_ns,eval_ns,eval2_ns", lines[0])
}

func TestRunFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "query.jsonc")
	confContent := `{
  // a small count query
  "pool": "tpchdata",
  "num_objs": 1,
  "query": "a",
  "extended_price": 0.01,
  "quiet": true
}`
	require.NoError(t, os.WriteFile(confPath, []byte(confContent), 0o644))

	var out bytes.Buffer
	r := &runner{out: &out}
	err := r.run([]string{
		"--conf", confPath,
		"--load-rows-per-obj", "12",
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "total result row count: 12 / 12; nrows_processed=12")
}
