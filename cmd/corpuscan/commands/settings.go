package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Sumatoshi-tech/corpuscan/pkg/config"
	"github.com/Sumatoshi-tech/corpuscan/pkg/dataset"
	"github.com/Sumatoshi-tech/corpuscan/pkg/observability"
	"github.com/Sumatoshi-tech/corpuscan/pkg/version"
)

// Standard OpenTelemetry environment variables honoured when the config
// leaves the exporter unset.
const (
	envOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envOTLPHeaders  = "OTEL_EXPORTER_OTLP_HEADERS"
)

// ErrMissingDataPath is returned when a command needs the input directory.
var ErrMissingDataPath = errors.New("data path is required")

// settings is the resolved configuration of one command invocation.
type settings struct {
	cfg     *config.Config
	dataset dataset.Descriptor
	noColor bool
}

// addDatasetFlags registers the flags selecting a dataset's checkpoints.
func addDatasetFlags(flags *pflag.FlagSet) {
	flags.StringP("dataset", "d", "", "Dataset name (built-in: c4, dolma, googlenq, openwebtext)")
	flags.StringP("output", "o", config.DefaultOutput, "Checkpoint root directory")
	flags.Bool("debug", false, "Debug mode: one file, one small batch, never marked completed")
}

// loadSettings resolves the config file, environment and flags of cmd and
// looks up the selected dataset.
func loadSettings(cmd *cobra.Command) (*settings, error) {
	flags := cmd.Flags()

	configPath, err := flags.GetString(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("read --%s: %w", flagConfig, err)
	}

	cfg, err := config.LoadConfig(configPath, flags)
	if err != nil {
		return nil, err
	}

	err = cfg.RequireDataset()
	if err != nil {
		return nil, err
	}

	registry, err := cfg.DatasetRegistry()
	if err != nil {
		return nil, err
	}

	ds, err := registry.Lookup(cfg.Dataset)
	if err != nil {
		return nil, err
	}

	noColor, err := flags.GetBool(flagNoColor)
	if err != nil {
		return nil, fmt.Errorf("read --%s: %w", flagNoColor, err)
	}

	return &settings{cfg: cfg, dataset: ds, noColor: noColor}, nil
}

// observabilityConfig maps the loaded settings onto telemetry options.
func (s *settings) observabilityConfig(runID string, prometheus bool) observability.Config {
	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = version.Version
	cfg.RunID = runID
	cfg.LogLevel = parseLevel(s.cfg.Logging.Level)
	cfg.LogJSON = s.cfg.Logging.JSON
	cfg.OTLPEndpoint = s.cfg.Telemetry.OTLPEndpoint
	cfg.OTLPInsecure = s.cfg.Telemetry.OTLPInsecure
	cfg.SampleRatio = s.cfg.Telemetry.SampleRatio
	cfg.Prometheus = prometheus

	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = os.Getenv(envOTLPEndpoint)
	}

	if raw := os.Getenv(envOTLPHeaders); raw != "" {
		cfg.OTLPHeaders = observability.ParseOTLPHeaders(raw)
	}

	if s.cfg.Debug {
		cfg.Mode = observability.ModeDebug
	}

	return cfg
}

// commandLogger builds a plain logger for commands that do not start
// telemetry.
func (s *settings) commandLogger(w io.Writer) *slog.Logger {
	return observability.BuildLogger(s.observabilityConfig("", false), w)
}

func parseLevel(raw string) slog.Level {
	var level slog.Level

	err := level.UnmarshalText([]byte(strings.ToUpper(raw)))
	if err != nil {
		return slog.LevelInfo
	}

	return level
}
