package report

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/corpuscan/pkg/engine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const jsonIndent = "  "

// FileView is the serializable outcome of one file.
type FileView struct {
	FileID        string `json:"file_id"             yaml:"file_id"`
	Status        string `json:"status"              yaml:"status"`
	ResumeSeq     int    `json:"resume_seq"          yaml:"resume_seq"`
	LastCommitted int    `json:"last_committed"      yaml:"last_committed"`
	Batches       int    `json:"batches"             yaml:"batches"`
	BatchFailures int    `json:"batch_failures"      yaml:"batch_failures"`
	Records       int64  `json:"records"             yaml:"records"`
	Skipped       int64  `json:"skipped"             yaml:"skipped"`
	Completed     bool   `json:"completed"           yaml:"completed"`
	DurationMs    int64  `json:"duration_ms"         yaml:"duration_ms"`
	Error         string `json:"error,omitempty"     yaml:"error,omitempty"`
}

// RunView is the serializable form of engine.Report.
type RunView struct {
	Dataset          string     `json:"dataset"           yaml:"dataset"`
	RunID            string     `json:"run_id,omitempty"  yaml:"run_id,omitempty"`
	Planned          int        `json:"planned"           yaml:"planned"`
	AlreadyCompleted int        `json:"already_completed" yaml:"already_completed"`
	Attempted        int        `json:"attempted"         yaml:"attempted"`
	Succeeded        int        `json:"succeeded"         yaml:"succeeded"`
	NoWork           int        `json:"no_work"           yaml:"no_work"`
	Failed           int        `json:"failed"            yaml:"failed"`
	Interrupted      int        `json:"interrupted"       yaml:"interrupted"`
	Batches          int        `json:"batches"           yaml:"batches"`
	BatchFailures    int        `json:"batch_failures"    yaml:"batch_failures"`
	Records          int64      `json:"records"           yaml:"records"`
	Skipped          int64      `json:"skipped"           yaml:"skipped"`
	DurationMs       int64      `json:"duration_ms"       yaml:"duration_ms"`
	Files            []FileView `json:"files"             yaml:"files"`
}

// NewRunView converts a run report for serialization.
func NewRunView(datasetName, runID string, r engine.Report) RunView {
	view := RunView{
		Dataset:          datasetName,
		RunID:            runID,
		Planned:          r.Planned,
		AlreadyCompleted: r.AlreadyCompleted,
		Attempted:        r.Attempted,
		Succeeded:        r.Succeeded,
		NoWork:           r.NoWork,
		Failed:           r.Failed,
		Interrupted:      r.Interrupted,
		Batches:          r.Batches,
		BatchFailures:    r.BatchFailures,
		Records:          r.Records,
		Skipped:          r.Skipped,
		DurationMs:       r.Duration.Milliseconds(),
		Files:            make([]FileView, 0, len(r.Summaries)),
	}

	for _, s := range r.Summaries {
		file := FileView{
			FileID:        s.FileID,
			Status:        string(s.Status()),
			ResumeSeq:     s.ResumeSeq,
			LastCommitted: s.LastCommitted,
			Batches:       s.BatchesProcessed,
			BatchFailures: s.BatchFailures,
			Records:       s.Records,
			Skipped:       s.Skipped,
			Completed:     s.Completed,
			DurationMs:    s.Duration.Milliseconds(),
		}

		if s.Err != nil {
			file.Error = s.Err.Error()
		}

		view.Files = append(view.Files, file)
	}

	return view
}

// WriteRun writes view in the given format. Plot output is not available for
// run reports.
func WriteRun(w io.Writer, format string, view RunView, noColor bool) error {
	normalized, err := ValidateFormat(format, RunFormats())
	if err != nil {
		return err
	}

	switch normalized {
	case FormatJSON:
		return writeJSON(w, view)
	case FormatYAML:
		return writeYAML(w, view)
	default:
		return NewTextRenderer(w, noColor).Run(view)
	}
}

// WriteTotals writes totals in the given format.
func WriteTotals(w io.Writer, format string, totals Totals, noColor bool) error {
	normalized, err := ValidateFormat(format, TotalsFormats())
	if err != nil {
		return err
	}

	switch normalized {
	case FormatJSON:
		return writeJSON(w, totals)
	case FormatYAML:
		return writeYAML(w, totals)
	case FormatPlot:
		return WritePlot(w, totals)
	default:
		return NewTextRenderer(w, noColor).Totals(totals)
	}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", jsonIndent)

	err := encoder.Encode(v)
	if err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}

	return nil
}

func writeYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(len(jsonIndent))

	err := encoder.Encode(v)
	if err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return fmt.Errorf("flush yaml report: %w", err)
	}

	return nil
}
