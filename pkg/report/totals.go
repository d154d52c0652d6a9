package report

import (
	"cmp"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/corpuscan/pkg/checkpoint"
)

// FileTotals summarizes the checkpoint record of one file.
type FileTotals struct {
	FileID     string            `json:"file_id"    yaml:"file_id"`
	Batches    int               `json:"batches"    yaml:"batches"`
	Completed  bool              `json:"completed"  yaml:"completed"`
	Detections int               `json:"detections" yaml:"detections"`
	Labels     checkpoint.Counts `json:"labels"     yaml:"labels"`
}

// Totals aggregates detections across every checkpoint record of a dataset.
type Totals struct {
	Dataset    string            `json:"dataset"    yaml:"dataset"`
	Files      []FileTotals      `json:"files"      yaml:"files"`
	Completed  int               `json:"completed"  yaml:"completed"`
	Batches    int               `json:"batches"    yaml:"batches"`
	Detections int               `json:"detections" yaml:"detections"`
	Labels     checkpoint.Counts `json:"labels"     yaml:"labels"`
}

// LabelCount pairs a label with its total.
type LabelCount struct {
	Label string
	Count int
}

// Aggregate sums the per-batch counts of records. Files are ordered by ID.
func Aggregate(datasetName string, records map[string]*checkpoint.Record) Totals {
	totals := Totals{
		Dataset: datasetName,
		Files:   make([]FileTotals, 0, len(records)),
		Labels:  checkpoint.Counts{},
	}

	for id, rec := range records {
		labels := rec.Totals()

		file := FileTotals{
			FileID:     id,
			Batches:    rec.LastCommitted,
			Completed:  rec.Completed,
			Detections: labels.Total(),
			Labels:     labels,
		}

		totals.Files = append(totals.Files, file)
		totals.Batches += file.Batches
		totals.Detections += file.Detections
		totals.Labels.Add(labels)

		if file.Completed {
			totals.Completed++
		}
	}

	slices.SortFunc(totals.Files, func(a, b FileTotals) int {
		return strings.Compare(a.FileID, b.FileID)
	})

	return totals
}

// Ranked returns the label totals, largest first. Ties sort by label.
func (t Totals) Ranked() []LabelCount {
	ranked := make([]LabelCount, 0, len(t.Labels))

	for _, label := range t.Labels.Labels() {
		ranked = append(ranked, LabelCount{Label: label, Count: t.Labels[label]})
	}

	slices.SortStableFunc(ranked, func(a, b LabelCount) int {
		return cmp.Compare(b.Count, a.Count)
	})

	return ranked
}
