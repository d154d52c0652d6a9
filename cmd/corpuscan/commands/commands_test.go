package commands

import (
	"bytes"
	stdjson "encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/corpuscan/pkg/config"
	"github.com/Sumatoshi-tech/corpuscan/pkg/dataset"
	"github.com/Sumatoshi-tech/corpuscan/pkg/report"
)

type env struct {
	input  string
	output string
	config string
}

func newEnv(t *testing.T) env {
	t.Helper()

	root := t.TempDir()
	e := env{
		input:  filepath.Join(root, "in"),
		output: filepath.Join(root, "out"),
		config: filepath.Join(root, "corpuscan.yaml"),
	}

	require.NoError(t, os.MkdirAll(e.input, 0o750))
	require.NoError(t, os.WriteFile(e.config, nil, 0o600))

	return e
}

// writeC4 writes a gzip file of n records, every record holding one email.
func (e env) writeC4(t *testing.T, id string, n int) {
	t.Helper()

	f, err := os.Create(filepath.Join(e.input, id+".json.gz"))
	require.NoError(t, err)

	zw := gzip.NewWriter(f)
	for i := range n {
		_, err = fmt.Fprintf(zw, "{\"text\":\"record %d mail user%d@example.com\"}\n", i, i)
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func (e env) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--config", e.config, "--no-color"))

	err := cmd.Execute()

	return stdout.String(), err
}

func (e env) run(t *testing.T, extra ...string) (report.RunView, error) {
	t.Helper()

	args := append([]string{"run", "-d", "c4", "-i", e.input, "-o", e.output, "-b", "2", "-w", "2", "-f", "json"}, extra...)
	out, err := e.exec(t, args...)

	var view report.RunView
	if out != "" {
		require.NoError(t, stdjson.Unmarshal([]byte(out), &view), out)
	}

	return view, err
}

func readRecord(t *testing.T, path string) map[string]any {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, stdjson.Unmarshal(data, &rec))

	return rec
}

func TestRun_ProcessesAndResumes(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.writeC4(t, "c4-train.00000-of-01024", 5)
	e.writeC4(t, "c4-train.00001-of-01024", 2)

	view, err := e.run(t)
	require.NoError(t, err)

	assert.Equal(t, 2, view.Succeeded)
	assert.Equal(t, 4, view.Batches)
	assert.Equal(t, int64(7), view.Records)
	assert.NotEmpty(t, view.RunID)

	rec := readRecord(t, filepath.Join(e.output, "c4", "c4-train.00000-of-01024.json"))
	assert.InDelta(t, 3, rec["batch_cnt"], 0)
	assert.Equal(t, true, rec["completed"])
	assert.Equal(t, map[string]any{"EMAIL_ADDRESS": float64(1)}, rec["batches"].(map[string]any)["batch_3"])

	again, err := e.run(t)
	require.NoError(t, err)
	assert.Equal(t, 2, again.AlreadyCompleted)
	assert.Zero(t, again.Attempted)
}

func TestRun_FailedFileExitsWithError(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.writeC4(t, "good", 2)
	require.NoError(t, os.WriteFile(filepath.Join(e.input, "bad.json.gz"), []byte("not gzip"), 0o600))

	view, err := e.run(t)
	require.ErrorIs(t, err, ErrFilesFailed)

	assert.Equal(t, 1, view.Failed)
	assert.Equal(t, 1, view.Succeeded)
	assert.Contains(t, err.Error(), "bad")
}

func TestRun_DebugMode(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.writeC4(t, "a", 30)
	e.writeC4(t, "b", 30)

	view, err := e.run(t, "--debug")
	require.NoError(t, err)

	assert.Equal(t, 1, view.Attempted)
	assert.Equal(t, 1, view.Batches)
	assert.Equal(t, int64(config.DefaultDebugBatchSize), view.Records)

	rec := readRecord(t, filepath.Join(e.output, "debug", "c4", "a.json"))
	assert.InDelta(t, 1, rec["batch_cnt"], 0)
	assert.Equal(t, false, rec["completed"])
	assert.NoDirExists(t, filepath.Join(e.output, "c4"))
}

func TestRun_ValidationErrors(t *testing.T) {
	t.Parallel()

	e := newEnv(t)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{name: "no dataset", args: []string{"run", "-i", e.input}, want: config.ErrMissingDataset},
		{name: "unknown dataset", args: []string{"run", "-d", "pile", "-i", e.input}, want: dataset.ErrUnknownDataset},
		{name: "no data path", args: []string{"run", "-d", "c4"}, want: ErrMissingDataPath},
		{name: "bad batch size", args: []string{"run", "-d", "c4", "-i", e.input, "-b", "0"}, want: config.ErrInvalidBatchSize},
		{name: "plot format", args: []string{"run", "-d", "c4", "-i", e.input, "-f", "plot"}, want: report.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := e.exec(t, append(tt.args, "-o", e.output)...)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPlanAndReset(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.writeC4(t, "a", 3)
	e.writeC4(t, "b", 3)

	out, err := e.exec(t, "plan", "-d", "c4", "-i", e.input, "-o", e.output)
	require.NoError(t, err)
	assert.Contains(t, out, "pending 2 | completed 0")

	_, err = e.run(t)
	require.NoError(t, err)

	out, err = e.exec(t, "plan", "-d", "c4", "-i", e.input, "-o", e.output)
	require.NoError(t, err)
	assert.Contains(t, out, "pending 0 | completed 2")

	out, err = e.exec(t, "reset", "-d", "c4", "-o", e.output, "a")
	require.NoError(t, err)
	assert.Equal(t, "reset a\n", out)

	out, err = e.exec(t, "plan", "-d", "c4", "-i", e.input, "-o", e.output, "-f", "json")
	require.NoError(t, err)

	var plan report.PlanView
	require.NoError(t, stdjson.Unmarshal([]byte(out), &plan))
	assert.Equal(t, 1, plan.Pending)
	assert.Equal(t, 1, plan.Skipped)
	assert.Equal(t, "a", plan.Tasks[0].FileID)
	assert.Equal(t, 1, plan.Tasks[0].NextBatch)

	out, err = e.exec(t, "reset", "-d", "c4", "-o", e.output)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "removed 1 checkpoint records"), out)
}

func TestReport_AggregatesLabels(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.writeC4(t, "a", 3)
	e.writeC4(t, "b", 4)

	_, err := e.run(t)
	require.NoError(t, err)

	out, err := e.exec(t, "report", "-d", "c4", "-o", e.output, "-f", "json")
	require.NoError(t, err)

	var totals report.Totals
	require.NoError(t, stdjson.Unmarshal([]byte(out), &totals))
	assert.Equal(t, 7, totals.Labels["EMAIL_ADDRESS"])
	assert.Equal(t, 2, totals.Completed)
	assert.Len(t, totals.Files, 2)

	out, err = e.exec(t, "report", "-d", "c4", "-o", e.output)
	require.NoError(t, err)
	assert.Contains(t, out, "EMAIL_ADDRESS")

	out, err = e.exec(t, "report", "-d", "c4", "-o", e.output, "-f", "plot")
	require.NoError(t, err)
	assert.Contains(t, out, "Detections by label")
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := newEnv(t).exec(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "corpuscan "), out)
}
