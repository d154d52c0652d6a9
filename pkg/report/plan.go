package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"

	"github.com/Sumatoshi-tech/corpuscan/pkg/planner"
)

// PlanTask is the serializable form of planner.Task.
type PlanTask struct {
	FileID string `json:"file_id"     yaml:"file_id"`
	Path   string `json:"path"        yaml:"path"`
	// NextBatch is the first batch the run will process.
	NextBatch int `json:"next_batch" yaml:"next_batch"`
}

// PlanView is the serializable form of planner.Plan.
type PlanView struct {
	Dataset string     `json:"dataset" yaml:"dataset"`
	Pending int        `json:"pending" yaml:"pending"`
	Skipped int        `json:"skipped" yaml:"skipped"`
	Tasks   []PlanTask `json:"tasks"   yaml:"tasks"`
	Orphans []string   `json:"orphans" yaml:"orphans"`
	Corrupt []string   `json:"corrupt" yaml:"corrupt"`
}

// NewPlanView converts a plan for serialization.
func NewPlanView(datasetName string, plan planner.Plan) PlanView {
	view := PlanView{
		Dataset: datasetName,
		Pending: plan.Pending(),
		Skipped: plan.Skipped,
		Tasks: lo.Map(plan.Tasks, func(task planner.Task, _ int) PlanTask {
			return PlanTask{FileID: task.FileID, Path: task.Path, NextBatch: task.ResumeSeq + 1}
		}),
		Orphans: append([]string{}, plan.Orphans...),
		Corrupt: append([]string{}, plan.Corrupt...),
	}

	return view
}

// WritePlan writes view in the given format.
func WritePlan(w io.Writer, format string, view PlanView, noColor bool) error {
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
		return NewTextRenderer(w, noColor).Plan(view)
	}
}

// Plan writes a resume plan.
func (r *TextRenderer) Plan(view PlanView) error {
	var b strings.Builder

	b.WriteString("=== PLAN " + strings.ToUpper(view.Dataset) + " ===\n")
	fmt.Fprintf(&b, "pending %s | completed %s | orphaned records %s | corrupt records %s\n",
		humanize.Comma(int64(view.Pending)),
		humanize.Comma(int64(view.Skipped)),
		humanize.Comma(int64(len(view.Orphans))),
		r.paintIf(len(view.Corrupt) > 0, color.FgYellow, humanize.Comma(int64(len(view.Corrupt)))),
	)

	if len(view.Tasks) > 0 {
		tbl := newTable()
		tbl.AppendHeader(table.Row{"File", "Next batch", "Path"})

		for _, task := range view.Tasks {
			tbl.AppendRow(table.Row{task.FileID, task.NextBatch, task.Path})
		}

		b.WriteString("\n" + tbl.Render() + "\n")
	}

	if len(view.Corrupt) > 0 {
		b.WriteString("\n" + r.paint(color.FgYellow, "Corrupt records restart from batch 1:") + "\n")

		for _, id := range view.Corrupt {
			b.WriteString("  - " + id + "\n")
		}
	}

	return r.flush(b.String())
}
