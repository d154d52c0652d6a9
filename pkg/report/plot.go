package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	chartWidth     = "1200px"
	chartHeight    = "500px"
	xAxisRotate    = 45
	topFilesLimit  = 30
	labelsColor    = "#5470c6"
	filesColor     = "#fac858"
	emptyChartNote = "No data"
)

// WritePlot renders totals as an HTML page with two bar charts: detections per
// label and detections per file.
func WritePlot(w io.Writer, totals Totals) error {
	page := components.NewPage()
	page.PageTitle = "corpuscan: " + totals.Dataset
	page.AddCharts(LabelChart(totals), FileChart(totals))

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}

	return nil
}

// LabelChart builds a bar chart of detections per label, largest first.
func LabelChart(totals Totals) *charts.Bar {
	ranked := totals.Ranked()

	labels := make([]string, len(ranked))
	data := make([]opts.BarData, len(ranked))

	for i, lc := range ranked {
		labels[i] = lc.Label
		data[i] = opts.BarData{Value: lc.Count}
	}

	return newBar("Detections by label", totals.Dataset, "Detections", labels, data, labelsColor)
}

// FileChart builds a bar chart of the files with the most detections.
func FileChart(totals Totals) *charts.Bar {
	files := totals.Files
	if len(files) > topFilesLimit {
		files = topFiles(files, topFilesLimit)
	}

	labels := make([]string, len(files))
	data := make([]opts.BarData, len(files))

	for i, f := range files {
		labels[i] = f.FileID
		data[i] = opts.BarData{Value: f.Detections}
	}

	return newBar("Detections by file", totals.Dataset, "Detections", labels, data, filesColor)
}

func newBar(title, subtitle, yAxis string, labels []string, data []opts.BarData, color string) *charts.Bar {
	if len(data) == 0 {
		subtitle = emptyChartNote
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle, Left: "center"}),
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: xAxisRotate, Interval: "0"}}),
		charts.WithYAxisOpts(opts.YAxis{Name: yAxis}),
	)

	bar.SetXAxis(labels)
	bar.AddSeries(yAxis, data, charts.WithItemStyleOpts(opts.ItemStyle{Color: color}))

	return bar
}

// topFiles returns the limit files with the most detections, keeping the
// input order among equals.
func topFiles(files []FileTotals, limit int) []FileTotals {
	sorted := slices.Clone(files)
	slices.SortStableFunc(sorted, func(a, b FileTotals) int {
		return cmp.Compare(b.Detections, a.Detections)
	})

	return sorted[:limit]
}
