package config

import (
	"runtime"

	"github.com/Sumatoshi-tech/corpuscan/pkg/analyzer"
)

// Run defaults.
const (
	DefaultBatchSize         = 1000
	DefaultDebugBatchSize    = 10
	DefaultMaxTasksPerWorker = 0
	DefaultOutput            = "./results"
	DefaultMaxLineBytes      = "32MiB"
	DefaultFormat            = "text"
)

// Analyzer defaults.
const (
	DefaultAnalyzerName     = analyzer.RegexName
	DefaultAnalyzerLanguage = analyzer.DefaultLanguage
	DefaultAnalyzerTimeout  = analyzer.DefaultTimeout
	DefaultAnalyzerBackoff  = analyzer.DefaultBackoff
	DefaultAnalyzerRetries  = 0
)

// Logging defaults.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false
)

// Telemetry defaults.
const (
	DefaultSampleRatio  = 1.0
	DefaultOTLPInsecure = false
)

// DefaultWorkers leaves one CPU for the coordinator.
func DefaultWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}
