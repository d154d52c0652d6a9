// Package config loads corpuscan settings from a YAML file, the environment
// and command-line flags.
package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/corpuscan/pkg/analyzer"
	"github.com/Sumatoshi-tech/corpuscan/pkg/dataset"
)

// Sentinel validation errors.
var (
	ErrMissingDataset      = errors.New("dataset is required")
	ErrInvalidBatchSize    = errors.New("batch size must be positive")
	ErrInvalidWorkers      = errors.New("workers must be positive")
	ErrInvalidMaxTasks     = errors.New("max tasks per worker must not be negative")
	ErrInvalidRetries      = errors.New("analyzer retries must not be negative")
	ErrInvalidMaxLineBytes = errors.New("invalid max line bytes")
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrInvalidSampleRatio  = errors.New("sample ratio must be within [0, 1]")
	ErrMissingOutput       = errors.New("output directory is required")
)

const debugDirName = "debug"

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Config holds all corpuscan settings.
type Config struct {
	Dataset           string `mapstructure:"dataset"`
	DataPath          string `mapstructure:"data_path"`
	Output            string `mapstructure:"output"`
	BatchSize         int    `mapstructure:"batch_size"`
	DebugBatchSize    int    `mapstructure:"debug_batch_size"`
	Workers           int    `mapstructure:"workers"`
	MaxTasksPerWorker int    `mapstructure:"max_tasks_per_worker"`
	// MaxLineBytes is a human-readable size such as "32MiB".
	MaxLineBytes string `mapstructure:"max_line_bytes"`
	Debug        bool   `mapstructure:"debug"`
	Format       string `mapstructure:"format"`

	Analyzer  analyzer.Options     `mapstructure:"analyzer"`
	Datasets  []dataset.Descriptor `mapstructure:"datasets"`
	Logging   LoggingConfig        `mapstructure:"logging"`
	Telemetry TelemetryConfig      `mapstructure:"telemetry"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig holds tracing and metrics export settings.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	// MetricsAddr serves /metrics, /healthz and /readyz when set.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Validate checks the settings needed by every command. Dataset presence is
// checked separately by RequireDataset.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, c.BatchSize)
	}

	if c.DebugBatchSize <= 0 {
		return fmt.Errorf("%w: debug_batch_size %d", ErrInvalidBatchSize, c.DebugBatchSize)
	}

	if c.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Workers)
	}

	if c.MaxTasksPerWorker < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxTasks, c.MaxTasksPerWorker)
	}

	if c.Analyzer.Retries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRetries, c.Analyzer.Retries)
	}

	if strings.TrimSpace(c.Output) == "" {
		return ErrMissingOutput
	}

	_, err := c.MaxLineBytesValue()
	if err != nil {
		return err
	}

	level := strings.ToLower(c.Logging.Level)
	if !slices.Contains(validLogLevels, level) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	for _, d := range c.Datasets {
		err = d.Validate()
		if err != nil {
			return fmt.Errorf("datasets: %w", err)
		}
	}

	return nil
}

// RequireDataset fails when no dataset was selected.
func (c *Config) RequireDataset() error {
	if strings.TrimSpace(c.Dataset) == "" {
		return ErrMissingDataset
	}

	return nil
}

// MaxLineBytesValue parses MaxLineBytes. An empty value yields 0, meaning
// the reader default.
func (c *Config) MaxLineBytesValue() (int, error) {
	if strings.TrimSpace(c.MaxLineBytes) == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(c.MaxLineBytes)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidMaxLineBytes, err)
	}

	if n == 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidMaxLineBytes, c.MaxLineBytes)
	}

	return int(n), nil
}

// EffectiveBatchSize is the batch size for this run, smaller in debug mode.
func (c *Config) EffectiveBatchSize() int {
	if c.Debug {
		return c.DebugBatchSize
	}

	return c.BatchSize
}

// CheckpointDir is where records of the selected dataset live: the dataset
// name under Output, or under Output/debug in debug mode.
func (c *Config) CheckpointDir() string {
	if c.Debug {
		return filepath.Join(c.Output, debugDirName, c.Dataset)
	}

	return filepath.Join(c.Output, c.Dataset)
}

// DatasetRegistry returns the built-in descriptors plus those declared in
// the config file.
func (c *Config) DatasetRegistry() (*dataset.Registry, error) {
	registry, err := dataset.NewRegistry(c.Datasets...)
	if err != nil {
		return nil, fmt.Errorf("build dataset registry: %w", err)
	}

	return registry, nil
}
