package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/corpuscan/pkg/analyzer"
	"github.com/Sumatoshi-tech/corpuscan/pkg/checkpoint"
	"github.com/Sumatoshi-tech/corpuscan/pkg/config"
	"github.com/Sumatoshi-tech/corpuscan/pkg/engine"
	"github.com/Sumatoshi-tech/corpuscan/pkg/observability"
	"github.com/Sumatoshi-tech/corpuscan/pkg/planner"
	"github.com/Sumatoshi-tech/corpuscan/pkg/report"
)

var (
	// ErrFilesFailed is returned when at least one file failed.
	ErrFilesFailed = errors.New("files failed")
	// ErrRunInterrupted is returned when a signal stopped the run early.
	ErrRunInterrupted = errors.New("run interrupted")
)

// debugFileLimit is the number of files a debug run processes.
const debugFileLimit = 1

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every unfinished file of a dataset",
		Long: `Process every unfinished file of a dataset.

Files are split into fixed-size batches. The label counts of each batch are
committed to the file's checkpoint record before the next batch starts, so an
interrupted run resumes after the last committed batch. Completed files are
skipped. The batch size must not change between runs over the same
checkpoints.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}

	flags := cmd.Flags()
	addDatasetFlags(flags)
	flags.StringP("data-path", "i", "", "Directory holding the dataset files")
	flags.IntP("batch-size", "b", config.DefaultBatchSize, "Records per batch")
	flags.Int("debug-batch-size", config.DefaultDebugBatchSize, "Records per batch in debug mode")
	flags.IntP("workers", "w", config.DefaultWorkers(), "Files processed in parallel")
	flags.Int("max-tasks-per-worker", config.DefaultMaxTasksPerWorker,
		"Recreate a worker's analyzer after this many files (0 = never)")
	flags.String("max-line-bytes", config.DefaultMaxLineBytes, "Longest accepted input line (e.g. 32MiB)")
	flags.StringP("analyzer", "a", config.DefaultAnalyzerName, "Analyzer back end: regex, presidio")
	flags.String("analyzer-endpoint", "", "Base URL of a remote analyzer service")
	flags.Int("analyzer-retries", config.DefaultAnalyzerRetries, "Extra attempts for a failed batch")
	flags.String("language", config.DefaultAnalyzerLanguage, "Language passed to the analyzer")
	flags.StringP("format", "f", config.DefaultFormat, "Report format: text, json, yaml")
	flags.String("otlp-endpoint", "", "OTLP gRPC collector address")
	flags.String("metrics-addr", "", "Serve /metrics, /healthz and /readyz on this address")

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) (err error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	cfg := s.cfg

	if cfg.DataPath == "" {
		return ErrMissingDataPath
	}

	format, err := report.ValidateFormat(cfg.Format, report.RunFormats())
	if err != nil {
		return err
	}

	runID := uuid.NewString()

	providers, err := observability.InitWithWriter(
		s.observabilityConfig(runID, cfg.Telemetry.MetricsAddr != ""), cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		err = errors.Join(err, providers.Shutdown(context.WithoutCancel(cmd.Context())))
	}()

	logger := providers.Logger

	engineMetrics, err := observability.NewEngineMetrics(providers.Meter, s.dataset.Name)
	if err != nil {
		return fmt.Errorf("create engine metrics: %w", err)
	}

	red, err := observability.NewREDMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("create analyzer metrics: %w", err)
	}

	if cfg.Telemetry.MetricsAddr != "" {
		diag, diagErr := observability.NewDiagnosticsServer(cfg.Telemetry.MetricsAddr, providers.MetricsHandler, logger)
		if diagErr != nil {
			return diagErr
		}

		defer diag.Close()

		logger.Info("diagnostics server listening", "addr", diag.Addr())
	}

	store := checkpoint.NewFileStore(cfg.CheckpointDir(), logger)

	plan, err := planner.Build(store, s.dataset, cfg.DataPath)
	if err != nil {
		return err
	}

	if cfg.Debug {
		plan = plan.Limit(debugFileLimit)
	}

	for _, id := range plan.Corrupt {
		logger.Warn("corrupt checkpoint record, file restarts from batch 1", "file", id)
	}

	if len(plan.Orphans) > 0 {
		logger.Info("checkpoint records without input file", "count", len(plan.Orphans))
	}

	maxLine, err := cfg.MaxLineBytesValue()
	if err != nil {
		return err
	}

	analyzerOpts := cfg.Analyzer
	analyzerOpts.Logger = logger

	factory, err := analyzer.NewRegistry().Factory(analyzerOpts)
	if err != nil {
		return err
	}

	pool := &engine.Pool{
		Workers:           cfg.Workers,
		MaxTasksPerWorker: cfg.MaxTasksPerWorker,
		NewAnalyzer:       factory,
		Config: engine.Config{
			Dataset:      s.dataset,
			Store:        store,
			BatchSize:    cfg.EffectiveBatchSize(),
			MaxLineBytes: maxLine,
			Debug:        cfg.Debug,
			Logger:       logger,
			Tracer:       providers.Tracer,
			Metrics:      engineMetrics,
			RED:          red,
		},
	}

	err = pool.Validate()
	if err != nil {
		return err
	}

	engine.NewRunLogger(logger, pool.Config, pool.Workers).Info("run starting",
		"files", plan.Pending(), "already_completed", plan.Skipped, "checkpoints", store.Dir())

	result := pool.Run(cmd.Context(), plan)

	err = report.WriteRun(cmd.OutOrStdout(), format, report.NewRunView(s.dataset.Name, runID, result), s.noColor)
	if err != nil {
		return err
	}

	return runOutcome(result)
}

// runOutcome maps a finished run to the command error deciding the exit code.
func runOutcome(result engine.Report) error {
	failed := result.Err()
	if failed != nil {
		return fmt.Errorf("%w: %d of %d: %w", ErrFilesFailed, result.Failed, result.Attempted, failed)
	}

	if result.Interrupted > 0 {
		return fmt.Errorf("%w: %d files unfinished", ErrRunInterrupted, result.Interrupted)
	}

	return nil
}
