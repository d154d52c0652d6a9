package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/corpuscan/pkg/analyzer"
	"github.com/Sumatoshi-tech/corpuscan/pkg/planner"
)

// Pool runs a plan over a fixed number of worker slots. Each file is handed
// to exactly one slot; files never share a worker.
type Pool struct {
	// Workers is the number of concurrent slots.
	Workers int
	// MaxTasksPerWorker recycles a slot's analyzer after that many files.
	// Zero means never.
	MaxTasksPerWorker int
	// NewAnalyzer builds the analyzer owned by one slot.
	NewAnalyzer func() (analyzer.Analyzer, error)
	// Config is shared by every file worker.
	Config Config
}

// Validate checks the pool settings.
func (p *Pool) Validate() error {
	switch {
	case p.Workers < 1:
		return fmt.Errorf("%w: workers %d", ErrInvalidConfig, p.Workers)
	case p.MaxTasksPerWorker < 0:
		return fmt.Errorf("%w: max tasks per worker %d", ErrInvalidConfig, p.MaxTasksPerWorker)
	case p.NewAnalyzer == nil:
		return fmt.Errorf("%w: no analyzer factory", ErrInvalidConfig)
	}

	return p.Config.Validate()
}

// Run processes every task of plan and returns once all slots have finished.
// Cancelling ctx lets in-flight batches commit, then remaining files are
// reported as interrupted.
func (p *Pool) Run(ctx context.Context, plan planner.Plan) Report {
	cfg := p.Config.withDefaults()
	start := time.Now()

	report := Report{Planned: len(plan.Tasks), AlreadyCompleted: plan.Skipped}

	ctx, span := cfg.Tracer.Start(ctx, spanRun, trace.WithAttributes(
		attribute.String("dataset.name", cfg.Dataset.Name),
		attribute.Int("run.files", len(plan.Tasks)),
		attribute.Int("run.workers", p.Workers),
	))
	defer span.End()

	tasks := make(chan planner.Task, len(plan.Tasks))
	for _, task := range plan.Tasks {
		tasks <- task
	}

	close(tasks)

	slots := min(max(p.Workers, 1), len(plan.Tasks))
	results := make(chan Summary, len(plan.Tasks))

	var wg conc.WaitGroup

	for slot := range slots {
		wg.Go(func() {
			p.runSlot(ctx, cfg, slot, tasks, results)
		})
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for sum := range results {
		report.Add(sum)
		cfg.Metrics.RecordFile(ctx, string(sum.Status()), sum.Skipped)

		attrs := []any{
			"file", sum.FileID,
			"status", sum.Status(),
			"batches", sum.BatchesProcessed,
			"last_batch", sum.LastCommitted,
			"duration", sum.Duration.Round(time.Millisecond),
		}

		if sum.Err != nil {
			cfg.Logger.WarnContext(ctx, fmt.Sprintf("processed %d/%d", report.Attempted, report.Planned),
				append(attrs, "error", sum.Err)...)

			continue
		}

		cfg.Logger.InfoContext(ctx, fmt.Sprintf("processed %d/%d", report.Attempted, report.Planned), attrs...)
	}

	report.Duration = time.Since(start)
	report.sort()

	span.SetAttributes(
		attribute.Int("run.failed", report.Failed),
		attribute.Int("run.batches", report.Batches),
	)

	return report
}

// runSlot consumes tasks with one analyzer, rebuilding it after
// MaxTasksPerWorker files or after a panic.
func (p *Pool) runSlot(ctx context.Context, cfg Config, slot int, tasks <-chan planner.Task, results chan<- Summary) {
	logger := cfg.Logger.With("worker", slot)
	cfg.Logger = logger

	var (
		current analyzer.Analyzer
		used    int
	)

	release := func() {
		if current == nil {
			return
		}

		err := analyzer.Close(current)
		if err != nil {
			logger.Warn("close analyzer", "error", err)
		}

		current = nil
	}
	defer release()

	for task := range tasks {
		if ctx.Err() != nil {
			results <- Summary{
				FileID:        task.FileID,
				ResumeSeq:     task.ResumeSeq,
				LastCommitted: task.ResumeSeq,
				Err:           fmt.Errorf("%w: not started: %w", ErrInterrupted, context.Cause(ctx)),
			}

			continue
		}

		if current != nil && p.MaxTasksPerWorker > 0 && used >= p.MaxTasksPerWorker {
			logger.Debug("recycling analyzer", "tasks", used)
			release()
		}

		if current == nil {
			a, err := p.NewAnalyzer()
			if err != nil {
				results <- Summary{
					FileID:        task.FileID,
					ResumeSeq:     task.ResumeSeq,
					LastCommitted: task.ResumeSeq,
					Err:           fmt.Errorf("create analyzer: %w", err),
				}

				continue
			}

			current, used = a, 0
		}

		used++

		sum, panicked := processSafely(ctx, NewFileWorker(cfg, current), task)
		if panicked {
			release()
		}

		results <- sum
	}
}

// processSafely turns a panic during processing into a file failure.
func processSafely(ctx context.Context, w *FileWorker, task planner.Task) (Summary, bool) {
	var (
		sum     Summary
		catcher panics.Catcher
	)

	catcher.Try(func() {
		w.run(ctx, task, &sum)
	})

	recovered := catcher.Recovered()
	if recovered == nil {
		return sum, false
	}

	sum.FileID = task.FileID
	sum.Completed = false
	sum.Err = fmt.Errorf("%w %s: %w", ErrPanic, task.FileID, recovered.AsError())

	w.cfg.Logger.Error("panic while processing file", "file", task.FileID, "panic", recovered.Value,
		"stack", string(recovered.Stack))

	return sum, true
}

// Report aggregates the summaries of one run.
type Report struct {
	Summaries []Summary

	// Planned is the number of files handed to the pool.
	Planned int
	// AlreadyCompleted is the number of files skipped by the plan.
	AlreadyCompleted int

	Attempted     int
	Succeeded     int
	NoWork        int
	Failed        int
	Interrupted   int
	Batches       int
	BatchFailures int
	Records       int64
	Skipped       int64
	Duration      time.Duration
}

// Add accounts for one file summary.
func (r *Report) Add(s Summary) {
	r.Summaries = append(r.Summaries, s)
	r.Attempted++
	r.Batches += s.BatchesProcessed
	r.BatchFailures += s.BatchFailures
	r.Records += s.Records
	r.Skipped += s.Skipped

	switch s.Status() {
	case StatusSucceeded:
		r.Succeeded++
	case StatusNoWork:
		r.NoWork++
	case StatusFailed:
		r.Failed++
	case StatusInterrupted:
		r.Interrupted++
	}
}

// Failures returns the summaries of failed files.
func (r Report) Failures() []Summary {
	var out []Summary

	for _, s := range r.Summaries {
		if s.Status() == StatusFailed {
			out = append(out, s)
		}
	}

	return out
}

// Err aggregates file failures. Interrupted files are not failures.
func (r Report) Err() error {
	var merr *multierror.Error

	for _, s := range r.Failures() {
		merr = multierror.Append(merr, fmt.Errorf("%s: %w", s.FileID, s.Err))
	}

	return merr.ErrorOrNil()
}

// sort orders summaries by file ID for reproducible output.
func (r *Report) sort() {
	slices.SortFunc(r.Summaries, func(a, b Summary) int {
		return strings.Compare(a.FileID, b.FileID)
	})
}

// NewRunLogger returns logger annotated with the run settings.
func NewRunLogger(logger *slog.Logger, cfg Config, workers int) *slog.Logger {
	return logger.With("dataset", cfg.Dataset.Name, "batch_size", cfg.BatchSize, "workers", workers, "debug", cfg.Debug)
}
