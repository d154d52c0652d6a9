// Package engine streams input files through an analyzer in numbered batches,
// committing every batch result to a checkpoint store so that an interrupted
// run resumes after the last committed batch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/corpuscan/pkg/analyzer"
	"github.com/Sumatoshi-tech/corpuscan/pkg/batch"
	"github.com/Sumatoshi-tech/corpuscan/pkg/checkpoint"
	"github.com/Sumatoshi-tech/corpuscan/pkg/dataset"
	"github.com/Sumatoshi-tech/corpuscan/pkg/observability"
	"github.com/Sumatoshi-tech/corpuscan/pkg/planner"
	"github.com/Sumatoshi-tech/corpuscan/pkg/records"
)

// Span names.
const (
	spanFile = "corpuscan.file"
	spanRun  = "corpuscan.run"
)

// Engine errors.
var (
	ErrInterrupted   = errors.New("interrupted")
	ErrPanic         = errors.New("panic while processing file")
	ErrInvalidConfig = errors.New("invalid engine config")
)

// State is the phase of a file worker.
type State int

// File worker states.
const (
	StateResuming State = iota
	StateStreaming
	StateCommitting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateResuming:
		return "resuming"
	case StateStreaming:
		return "streaming"
	case StateCommitting:
		return "committing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status classifies a finished file.
type Status string

// File statuses.
const (
	StatusSucceeded   Status = "succeeded"
	StatusNoWork      Status = "no_work"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// Summary describes the outcome of processing one file.
type Summary struct {
	FileID string
	// ResumeSeq is the number of batches committed before this run.
	ResumeSeq        int
	LastCommitted    int
	BatchesProcessed int
	// BatchFailures counts batches committed with an empty result because
	// the analyzer failed.
	BatchFailures int
	Records       int64
	Skipped       int64
	Completed     bool
	Err           error
	Duration      time.Duration
}

// Status classifies the summary.
func (s Summary) Status() Status {
	switch {
	case errors.Is(s.Err, ErrInterrupted):
		return StatusInterrupted
	case s.Err != nil:
		return StatusFailed
	case s.BatchesProcessed == 0:
		return StatusNoWork
	default:
		return StatusSucceeded
	}
}

// Config holds the per-file processing settings shared by all workers.
type Config struct {
	Dataset dataset.Descriptor
	Store   checkpoint.Store
	// BatchSize must stay constant across runs over the same checkpoints.
	BatchSize int
	// MaxLineBytes bounds a single input line. Zero uses the reader default.
	MaxLineBytes int
	// Debug processes at most one batch per file and never marks a file
	// completed.
	Debug bool

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.EngineMetrics
	RED     *observability.REDMetrics
}

// Validate checks the settings needed to process a file.
func (c Config) Validate() error {
	switch {
	case c.Store == nil:
		return fmt.Errorf("%w: no checkpoint store", ErrInvalidConfig)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, c.BatchSize)
	}

	return c.Dataset.Validate()
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	if c.Tracer == nil {
		c.Tracer = otel.Tracer("corpuscan")
	}

	return c
}

// FileWorker processes one file at a time with a single analyzer.
type FileWorker struct {
	cfg      Config
	analyzer analyzer.Analyzer
}

// NewFileWorker binds an analyzer to the processing settings.
func NewFileWorker(cfg Config, a analyzer.Analyzer) *FileWorker {
	return &FileWorker{cfg: cfg.withDefaults(), analyzer: a}
}

// Process streams task's file from batch ResumeSeq+1 to the end, committing
// each batch. File-level failures are reported in the summary.
func (w *FileWorker) Process(ctx context.Context, task planner.Task) Summary {
	var sum Summary

	w.run(ctx, task, &sum)

	return sum
}

// run fills sum as it goes so a panic leaves the progress made so far.
func (w *FileWorker) run(ctx context.Context, task planner.Task, sum *Summary) {
	start := time.Now()

	*sum = Summary{FileID: task.FileID, ResumeSeq: task.ResumeSeq, LastCommitted: task.ResumeSeq}

	ctx, span := w.cfg.Tracer.Start(ctx, spanFile, trace.WithAttributes(
		attribute.String("file.id", task.FileID),
		attribute.Int("file.resume_seq", task.ResumeSeq),
	))

	defer func() {
		sum.Duration = time.Since(start)

		span.SetAttributes(
			attribute.Int("file.batches", sum.BatchesProcessed),
			attribute.Int("file.batch_failures", sum.BatchFailures),
		)

		if sum.Err != nil {
			span.RecordError(sum.Err)
			span.SetStatus(codes.Error, sum.Err.Error())
		}

		span.End()
	}()

	logger := w.cfg.Logger.With("file", task.FileID)
	state := StateResuming
	w.transition(ctx, logger, &state, StateResuming)

	reader, err := records.Open(task.Path, records.Options{
		Extract:      w.cfg.Dataset.Extractor(),
		MaxLineBytes: w.cfg.MaxLineBytes,
		Logger:       logger,
	})
	if err != nil {
		sum.Err = fmt.Errorf("open %s: %w", task.FileID, err)

		return
	}

	defer func() {
		sum.Skipped = reader.Stats().Skipped

		closeErr := reader.Close()
		if closeErr != nil {
			logger.Debug("close reader", "error", closeErr)
		}
	}()

	size := w.cfg.BatchSize
	texts := batch.Skip(reader.All(), task.ResumeSeq*size)

	w.transition(ctx, logger, &state, StateStreaming)

	for seq, group := range batch.Numbered(batch.Slice(texts, size), task.ResumeSeq) {
		if ctx.Err() != nil {
			sum.Err = fmt.Errorf("%w: stopped before batch %d: %w", ErrInterrupted, seq, context.Cause(ctx))

			return
		}

		if len(group) < size && reader.Err() != nil {
			// A short final group from a truncated stream is not a complete
			// batch; committing it would shift every later batch boundary.
			break
		}

		w.transition(ctx, logger, &state, StateCommitting)

		err = w.commit(ctx, logger, task.FileID, seq, group, sum)
		if err != nil {
			sum.Err = err

			return
		}

		if w.cfg.Debug {
			logger.InfoContext(ctx, "debug mode, stopping after first batch", "seq", seq)

			return
		}

		w.transition(ctx, logger, &state, StateStreaming)
	}

	err = reader.Err()
	if err != nil {
		sum.Err = fmt.Errorf("read %s after batch %d: %w", task.FileID, sum.LastCommitted, err)

		return
	}

	if ctx.Err() != nil {
		sum.Err = fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))

		return
	}

	w.transition(ctx, logger, &state, StateDone)

	if w.cfg.Debug {
		return
	}

	err = w.cfg.Store.MarkCompleted(task.FileID)
	if err != nil {
		sum.Err = fmt.Errorf("mark %s completed: %w", task.FileID, err)

		return
	}

	sum.Completed = true
}

// commit analyzes one batch and persists its result. Analyzer failures are
// absorbed as an empty result; a store failure is returned.
func (w *FileWorker) commit(
	ctx context.Context, logger *slog.Logger, fileID string, seq int, texts []string, sum *Summary,
) error {
	start := time.Now()

	ctx, span := w.cfg.Tracer.Start(ctx, observability.SpanBatch, trace.WithAttributes(
		attribute.Int("batch.seq", seq),
		attribute.Int("batch.records", len(texts)),
	))
	defer span.End()

	counts, failed := w.analyze(ctx, logger, seq, texts)

	err := w.cfg.Store.CommitBatch(fileID, seq, counts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")

		return fmt.Errorf("commit %s batch %d: %w", fileID, seq, err)
	}

	sum.LastCommitted = seq
	sum.BatchesProcessed++
	sum.Records += int64(len(texts))

	if failed {
		sum.BatchFailures++
	}

	w.cfg.Metrics.RecordBatch(ctx, len(texts), failed, counts, time.Since(start))

	logger.DebugContext(ctx, "batch committed", "seq", seq, "records", len(texts), "detections", counts.Total())

	return nil
}

// analyze runs the analyzer on a context detached from cancellation so the
// in-flight batch always completes and is committed. Retries stop once ctx is
// done and the batch is then committed empty.
func (w *FileWorker) analyze(ctx context.Context, logger *slog.Logger, seq int, texts []string) (checkpoint.Counts, bool) {
	op := w.analyzer.Name()
	done := w.cfg.RED.TrackInflight(ctx, op)
	start := time.Now()

	detections, err := w.analyzer.Analyze(analyzer.WithRetryStop(context.WithoutCancel(ctx), ctx), texts)

	done()

	if err != nil {
		w.cfg.RED.RecordRequest(ctx, op, observability.StatusError, time.Since(start))
		logger.WarnContext(ctx, "analyzer failed, committing empty batch result", "seq", seq, "error", err)
		trace.SpanFromContext(ctx).RecordError(err)

		return checkpoint.Counts{}, true
	}

	w.cfg.RED.RecordRequest(ctx, op, observability.StatusOK, time.Since(start))

	return analyzer.Count(detections), false
}

func (w *FileWorker) transition(ctx context.Context, logger *slog.Logger, state *State, next State) {
	logger.DebugContext(ctx, "state", "from", state.String(), "to", next.String())
	*state = next
}
