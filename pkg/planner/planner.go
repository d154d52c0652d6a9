// Package planner reconciles checkpoint records with the files of an input
// directory and decides where each file resumes.
package planner

import (
	"fmt"
	"path/filepath"

	"github.com/Sumatoshi-tech/corpuscan/pkg/checkpoint"
	"github.com/Sumatoshi-tech/corpuscan/pkg/dataset"
)

// ResumeCompleted marks a file that needs no further processing.
const ResumeCompleted = -1

// Task is the unit of work handed to a file worker.
type Task struct {
	// FileID names the input file and its checkpoint record.
	FileID string
	// Path is the location of the input file.
	Path string
	// ResumeSeq is the number of batches already committed. Processing
	// continues at batch ResumeSeq+1.
	ResumeSeq int
}

// Plan is the set of files still to process.
type Plan struct {
	Tasks []Task
	// Skipped counts input files whose record is completed.
	Skipped int
	// Orphans lists records without a matching input file.
	Orphans []string
	// Corrupt lists records that could not be read and restart from zero.
	Corrupt []string
}

// Limit returns a copy of the plan keeping at most n tasks. n < 0 keeps all.
func (p Plan) Limit(n int) Plan {
	if n < 0 || n >= len(p.Tasks) {
		return p
	}

	p.Tasks = p.Tasks[:n:n]

	return p
}

// Pending returns the number of files to process.
func (p Plan) Pending() int {
	return len(p.Tasks)
}

// ResumeSeq maps a checkpoint entry to the resume position of its file.
func ResumeSeq(e checkpoint.Entry) int {
	switch {
	case e.Corrupt:
		return 0
	case e.Completed:
		return ResumeCompleted
	default:
		return e.LastCommitted
	}
}

// Build lists the dataset files in inputDir and resumes each after its last
// committed batch. Completed files are excluded. Tasks are ordered by file ID.
func Build(store checkpoint.Store, ds dataset.Descriptor, inputDir string) (Plan, error) {
	entries, err := store.List()
	if err != nil {
		return Plan{}, fmt.Errorf("build plan: %w", err)
	}

	files, err := ds.ListFiles(inputDir)
	if err != nil {
		return Plan{}, fmt.Errorf("build plan: %w", err)
	}

	resume := make(map[string]int, len(entries))

	var plan Plan

	for _, e := range entries {
		resume[e.FileID] = ResumeSeq(e)

		if e.Corrupt {
			plan.Corrupt = append(plan.Corrupt, e.FileID)
		}
	}

	present := make(map[string]struct{}, len(files))

	for _, f := range files {
		present[f.ID] = struct{}{}

		seq, ok := resume[f.ID]
		if !ok {
			seq = 0
		}

		if seq == ResumeCompleted {
			plan.Skipped++

			continue
		}

		plan.Tasks = append(plan.Tasks, Task{
			FileID:    f.ID,
			Path:      filepath.Join(inputDir, f.Name),
			ResumeSeq: seq,
		})
	}

	for _, e := range entries {
		if _, ok := present[e.FileID]; !ok {
			plan.Orphans = append(plan.Orphans, e.FileID)
		}
	}

	return plan, nil
}
