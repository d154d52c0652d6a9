package report

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/corpuscan/pkg/checkpoint"
	"github.com/Sumatoshi-tech/corpuscan/pkg/engine"
	"github.com/Sumatoshi-tech/corpuscan/pkg/planner"
)

func sampleRecords(t *testing.T) map[string]*checkpoint.Record {
	t.Helper()

	first := checkpoint.NewRecord()
	require.NoError(t, first.Commit(1, checkpoint.Counts{"EMAIL_ADDRESS": 3, "URL": 1}))
	require.NoError(t, first.Commit(2, checkpoint.Counts{"EMAIL_ADDRESS": 2}))
	first.Completed = true

	second := checkpoint.NewRecord()
	require.NoError(t, second.Commit(1, checkpoint.Counts{"URL": 4, "US_SSN": 1}))

	return map[string]*checkpoint.Record{
		"c4-train.00001-of-01024": second,
		"c4-train.00000-of-01024": first,
	}
}

func sampleRun() engine.Report {
	r := engine.Report{Planned: 2, AlreadyCompleted: 1, Duration: 1500 * time.Millisecond}
	r.Add(engine.Summary{FileID: "a", BatchesProcessed: 3, LastCommitted: 3, Records: 2500, Completed: true})
	r.Add(engine.Summary{FileID: "b", ResumeSeq: 1, LastCommitted: 1, Err: errors.New("records stream truncated")})

	return r
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	totals := Aggregate("c4", sampleRecords(t))

	assert.Equal(t, "c4", totals.Dataset)
	require.Len(t, totals.Files, 2)
	assert.Equal(t, "c4-train.00000-of-01024", totals.Files[0].FileID)
	assert.Equal(t, 6, totals.Files[0].Detections)
	assert.True(t, totals.Files[0].Completed)
	assert.Equal(t, 5, totals.Files[1].Detections)
	assert.Equal(t, 1, totals.Completed)
	assert.Equal(t, 3, totals.Batches)
	assert.Equal(t, 11, totals.Detections)
	assert.Equal(t, checkpoint.Counts{"EMAIL_ADDRESS": 5, "URL": 5, "US_SSN": 1}, totals.Labels)
}

func TestAggregate_Empty(t *testing.T) {
	t.Parallel()

	totals := Aggregate("dolma", nil)

	assert.Empty(t, totals.Files)
	assert.Zero(t, totals.Detections)
	assert.NotNil(t, totals.Labels)
	assert.Empty(t, totals.Ranked())
}

func TestTotals_RankedBreaksTiesByLabel(t *testing.T) {
	t.Parallel()

	ranked := Aggregate("c4", sampleRecords(t)).Ranked()

	assert.Equal(t, []LabelCount{
		{Label: "EMAIL_ADDRESS", Count: 5},
		{Label: "URL", Count: 5},
		{Label: "US_SSN", Count: 1},
	}, ranked)
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()

	got, err := ValidateFormat(" JSON ", RunFormats())
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, got)

	_, err = ValidateFormat("plot", RunFormats())
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	got, err = ValidateFormat("Plot", TotalsFormats())
	require.NoError(t, err)
	assert.Equal(t, FormatPlot, got)
}

func TestWriteTotals_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteTotals(&buf, FormatJSON, Aggregate("c4", sampleRecords(t)), true))

	var decoded Totals
	require.NoError(t, stdjson.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 11, decoded.Detections)
	assert.Equal(t, 5, decoded.Labels["URL"])
	assert.Contains(t, buf.String(), `"file_id": "c4-train.00000-of-01024"`)
}

func TestWriteTotals_YAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteTotals(&buf, FormatYAML, Aggregate("c4", sampleRecords(t)), true))

	var decoded Totals
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 11, decoded.Detections)
	assert.Equal(t, "c4", decoded.Dataset)
	assert.Contains(t, buf.String(), "detections: 11")
}

func TestWriteTotals_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteTotals(&buf, FormatText, Aggregate("c4", sampleRecords(t)), true))

	out := buf.String()
	assert.Contains(t, out, "=== DETECTIONS C4 ===")
	assert.Contains(t, out, "detections 11")
	assert.Contains(t, out, "EMAIL_ADDRESS")
	assert.Contains(t, out, "45.5%")
	assert.Contains(t, out, "Total: 2 files")
	assert.NotContains(t, out, "TOTAL: 2 FILES")
	assert.NotContains(t, out, "\x1b[")
}

func TestWriteTotals_TextWithoutDetections(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteTotals(&buf, FormatText, Aggregate("c4", nil), true))

	assert.Contains(t, buf.String(), "No detections recorded")
}

func TestWriteTotals_Plot(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteTotals(&buf, FormatPlot, Aggregate("c4", sampleRecords(t)), true))

	out := buf.String()
	assert.Contains(t, out, "<html")
	assert.Contains(t, out, "Detections by label")
	assert.Contains(t, out, "Detections by file")
	assert.Contains(t, out, "EMAIL_ADDRESS")
}

func TestFileChart_KeepsTopFiles(t *testing.T) {
	t.Parallel()

	records := make(map[string]*checkpoint.Record)

	for i := range topFilesLimit + 5 {
		rec := checkpoint.NewRecord()
		require.NoError(t, rec.Commit(1, checkpoint.Counts{"URL": i}))
		records[strings.Repeat("f", i+1)] = rec
	}

	top := topFiles(Aggregate("c4", records).Files, topFilesLimit)

	require.Len(t, top, topFilesLimit)
	assert.Equal(t, topFilesLimit+4, top[0].Detections)
	assert.Equal(t, 5, top[topFilesLimit-1].Detections)
}

func TestNewRunView(t *testing.T) {
	t.Parallel()

	view := NewRunView("c4", "run-1", sampleRun())

	assert.Equal(t, 2, view.Attempted)
	assert.Equal(t, 1, view.Succeeded)
	assert.Equal(t, 1, view.Failed)
	assert.Equal(t, int64(1500), view.DurationMs)
	require.Len(t, view.Files, 2)
	assert.Equal(t, "succeeded", view.Files[0].Status)
	assert.Empty(t, view.Files[0].Error)
	assert.Equal(t, "failed", view.Files[1].Status)
	assert.Equal(t, "records stream truncated", view.Files[1].Error)
}

func TestWriteRun_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteRun(&buf, FormatText, NewRunView("c4", "run-1", sampleRun()), true))

	out := buf.String()
	assert.Contains(t, out, "=== RUN C4 (run-1) ===")
	assert.Contains(t, out, "records 2,500")
	assert.Contains(t, out, "Failures:")
	assert.Contains(t, out, "  - b: records stream truncated")
}

func TestWriteRun_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteRun(&buf, FormatJSON, NewRunView("c4", "", sampleRun()), true))

	var decoded map[string]any
	require.NoError(t, stdjson.Unmarshal(buf.Bytes(), &decoded))
	assert.InDelta(t, 1, decoded["failed"], 0)
	assert.NotContains(t, decoded, "run_id")
}

func TestWriteRun_RejectsPlot(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := WriteRun(&buf, FormatPlot, NewRunView("c4", "", sampleRun()), true)

	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Zero(t, buf.Len())
}

func TestWritePlan_Text(t *testing.T) {
	t.Parallel()

	plan := planner.Plan{
		Tasks:   []planner.Task{{FileID: "a", Path: "/in/a.json.gz", ResumeSeq: 2}},
		Skipped: 3,
		Corrupt: []string{"a"},
	}

	var buf bytes.Buffer
	require.NoError(t, WritePlan(&buf, FormatText, NewPlanView("c4", plan), true))

	out := buf.String()
	assert.Contains(t, out, "=== PLAN C4 ===")
	assert.Contains(t, out, "pending 1 | completed 3")
	assert.Contains(t, out, "/in/a.json.gz")
	assert.Contains(t, out, "Corrupt records restart from batch 1:")
}

func TestWritePlan_JSON(t *testing.T) {
	t.Parallel()

	plan := planner.Plan{Tasks: []planner.Task{{FileID: "a", Path: "a.json.gz", ResumeSeq: 4}}}

	var buf bytes.Buffer
	require.NoError(t, WritePlan(&buf, FormatJSON, NewPlanView("c4", plan), true))

	var decoded PlanView
	require.NoError(t, stdjson.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Tasks, 1)
	assert.Equal(t, 5, decoded.Tasks[0].NextBatch)
	assert.Empty(t, decoded.Orphans)
}
