package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".corpuscan"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for corpuscan settings.
const envPrefix = "CORPUSCAN"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// FlagKeys maps command-line flag names to config keys. Flags override the
// file and the environment when set explicitly.
var FlagKeys = map[string]string{
	"dataset":              "dataset",
	"data-path":            "data_path",
	"output":               "output",
	"batch-size":           "batch_size",
	"debug-batch-size":     "debug_batch_size",
	"workers":              "workers",
	"max-tasks-per-worker": "max_tasks_per_worker",
	"max-line-bytes":       "max_line_bytes",
	"debug":                "debug",
	"format":               "format",
	"analyzer":             "analyzer.name",
	"analyzer-endpoint":    "analyzer.endpoint",
	"analyzer-retries":     "analyzer.retries",
	"language":             "analyzer.language",
	"log-level":            "logging.level",
	"log-json":             "logging.json",
	"otlp-endpoint":        "telemetry.otlp_endpoint",
	"metrics-addr":         "telemetry.metrics_addr",
}

// LoadConfig loads configuration from file, env vars, flags and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used. flags may be nil.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	err := bindFlags(viperCfg, flags)
	if err != nil {
		return nil, err
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func bindFlags(viperCfg *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}

	for name, key := range FlagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}

		err := viperCfg.BindPFlag(key, flag)
		if err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	return nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("dataset", "")
	viperCfg.SetDefault("data_path", "")
	viperCfg.SetDefault("output", DefaultOutput)
	viperCfg.SetDefault("batch_size", DefaultBatchSize)
	viperCfg.SetDefault("debug_batch_size", DefaultDebugBatchSize)
	viperCfg.SetDefault("workers", DefaultWorkers())
	viperCfg.SetDefault("max_tasks_per_worker", DefaultMaxTasksPerWorker)
	viperCfg.SetDefault("max_line_bytes", DefaultMaxLineBytes)
	viperCfg.SetDefault("debug", false)
	viperCfg.SetDefault("format", DefaultFormat)

	viperCfg.SetDefault("analyzer.name", DefaultAnalyzerName)
	viperCfg.SetDefault("analyzer.endpoint", "")
	viperCfg.SetDefault("analyzer.language", DefaultAnalyzerLanguage)
	viperCfg.SetDefault("analyzer.timeout", DefaultAnalyzerTimeout)
	viperCfg.SetDefault("analyzer.retries", DefaultAnalyzerRetries)
	viperCfg.SetDefault("analyzer.backoff", DefaultAnalyzerBackoff)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.json", DefaultLogJSON)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", DefaultOTLPInsecure)
	viperCfg.SetDefault("telemetry.sample_ratio", DefaultSampleRatio)
	viperCfg.SetDefault("telemetry.metrics_addr", "")
}
