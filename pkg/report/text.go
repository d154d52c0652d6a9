package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/samber/lo"

	"github.com/Sumatoshi-tech/corpuscan/pkg/engine"
)

const percentageValue = 100

// TextRenderer writes human-readable reports.
type TextRenderer struct {
	w       io.Writer
	noColor bool
}

// NewTextRenderer creates a renderer writing to w. Status colouring is
// dropped when noColor is set.
func NewTextRenderer(w io.Writer, noColor bool) *TextRenderer {
	return &TextRenderer{w: w, noColor: noColor}
}

// Run writes the outcome of one run.
func (r *TextRenderer) Run(view RunView) error {
	var b strings.Builder

	header := "=== RUN " + strings.ToUpper(view.Dataset)
	if view.RunID != "" {
		header += " (" + view.RunID + ")"
	}

	b.WriteString(header + " ===\n")
	fmt.Fprintf(&b, "planned %s | already completed %s | succeeded %s | no work %s | failed %s | interrupted %s\n",
		humanize.Comma(int64(view.Planned)),
		humanize.Comma(int64(view.AlreadyCompleted)),
		r.paint(color.FgGreen, humanize.Comma(int64(view.Succeeded))),
		humanize.Comma(int64(view.NoWork)),
		r.paintIf(view.Failed > 0, color.FgRed, humanize.Comma(int64(view.Failed))),
		r.paintIf(view.Interrupted > 0, color.FgYellow, humanize.Comma(int64(view.Interrupted))),
	)
	fmt.Fprintf(&b, "batches %s (%s failed) | records %s | skipped %s | duration %s\n",
		humanize.Comma(int64(view.Batches)),
		humanize.Comma(int64(view.BatchFailures)),
		humanize.Comma(view.Records),
		humanize.Comma(view.Skipped),
		formatMillis(view.DurationMs),
	)

	if len(view.Files) > 0 {
		tbl := newTable()
		tbl.AppendHeader(table.Row{"File", "Status", "Resumed at", "Batches", "Failed batches", "Records", "Skipped", "Duration"})

		for _, f := range view.Files {
			tbl.AppendRow(table.Row{
				f.FileID,
				r.status(f.Status),
				f.ResumeSeq,
				f.Batches,
				f.BatchFailures,
				humanize.Comma(f.Records),
				humanize.Comma(f.Skipped),
				formatMillis(f.DurationMs),
			})
		}

		b.WriteString("\n" + tbl.Render() + "\n")
	}

	failures := lo.FilterMap(view.Files, func(f FileView, _ int) (string, bool) {
		return fmt.Sprintf("  - %s: %s", f.FileID, f.Error), f.Status == string(engine.StatusFailed)
	})

	if len(failures) > 0 {
		b.WriteString("\n" + r.paint(color.FgRed, "Failures:") + "\n")
		b.WriteString(strings.Join(failures, "\n") + "\n")
	}

	return r.flush(b.String())
}

// Totals writes aggregated detection counts.
func (r *TextRenderer) Totals(totals Totals) error {
	var b strings.Builder

	b.WriteString("=== DETECTIONS " + strings.ToUpper(totals.Dataset) + " ===\n")
	fmt.Fprintf(&b, "files %s (%s completed) | batches %s | detections %s\n",
		humanize.Comma(int64(len(totals.Files))),
		humanize.Comma(int64(totals.Completed)),
		humanize.Comma(int64(totals.Batches)),
		humanize.Comma(int64(totals.Detections)),
	)

	ranked := totals.Ranked()
	if len(ranked) == 0 {
		b.WriteString("\nNo detections recorded\n")

		return r.flush(b.String())
	}

	labels := newTable()
	labels.AppendHeader(table.Row{"Label", "Count", "Share"})

	for _, lc := range ranked {
		share := float64(lc.Count) / float64(totals.Detections) * percentageValue
		labels.AppendRow(table.Row{lc.Label, humanize.Comma(int64(lc.Count)), fmt.Sprintf("%.1f%%", share)})
	}

	b.WriteString("\n" + labels.Render() + "\n")

	files := newTable()
	files.AppendHeader(table.Row{"File", "Batches", "Completed", "Detections"})

	for _, f := range totals.Files {
		completed := r.paint(color.FgYellow, "no")
		if f.Completed {
			completed = r.paint(color.FgGreen, "yes")
		}

		files.AppendRow(table.Row{f.FileID, f.Batches, completed, humanize.Comma(int64(f.Detections))})
	}

	files.AppendFooter(table.Row{fmt.Sprintf("Total: %d files", len(totals.Files))})

	b.WriteString("\n" + files.Render() + "\n")

	return r.flush(b.String())
}

func (r *TextRenderer) status(status string) string {
	switch engine.Status(status) {
	case engine.StatusSucceeded:
		return r.paint(color.FgGreen, status)
	case engine.StatusFailed:
		return r.paint(color.FgRed, status)
	case engine.StatusInterrupted:
		return r.paint(color.FgYellow, status)
	default:
		return status
	}
}

func (r *TextRenderer) paint(attr color.Attribute, s string) string {
	c := color.New(attr)
	if r.noColor {
		c.DisableColor()
	}

	return c.Sprint(s)
}

func (r *TextRenderer) paintIf(cond bool, attr color.Attribute, s string) string {
	if !cond {
		return s
	}

	return r.paint(attr, s)
}

func (r *TextRenderer) flush(s string) error {
	_, err := io.WriteString(r.w, s)
	if err != nil {
		return fmt.Errorf("write text report: %w", err)
	}

	return nil
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Format.Header = text.FormatUpper
	tbl.Style().Format.Footer = text.FormatDefault

	return tbl
}

func formatMillis(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
