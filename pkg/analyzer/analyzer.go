// Package analyzer defines the batch scoring capability applied to records
// and the built-in PII detection back ends.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/corpuscan/pkg/checkpoint"
)

// Registry errors.
var (
	ErrUnknownAnalyzer   = errors.New("unknown analyzer")
	ErrDuplicateAnalyzer = errors.New("duplicate analyzer")
)

// Default option values.
const (
	DefaultLanguage = "en"
	DefaultTimeout  = 30 * time.Second
	DefaultBackoff  = time.Second
)

// Detection is one labeled span found in a record.
type Detection struct {
	Label string
	// Start and End delimit the span within the record text.
	Start int
	End   int
	Score float64
}

// Analyzer scores a batch of records. The returned slice has one entry per
// input text, in order. An error fails the whole batch.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, texts []string) ([][]Detection, error)
}

// Count tallies detections by label.
func Count(detections [][]Detection) checkpoint.Counts {
	counts := checkpoint.Counts{}

	for _, record := range detections {
		for _, d := range record {
			counts[d.Label]++
		}
	}

	return counts
}

// Close releases the analyzer's resources if it holds any.
func Close(a Analyzer) error {
	closer, ok := a.(io.Closer)
	if !ok {
		return nil
	}

	return closer.Close()
}

// Options configures a back end.
type Options struct {
	// Name selects the back end.
	Name string `mapstructure:"name"`
	// Endpoint is the base URL of a remote service.
	Endpoint string `mapstructure:"endpoint"`
	// Language is passed to language-aware back ends.
	Language string `mapstructure:"language"`
	// Timeout bounds a single remote call.
	Timeout time.Duration `mapstructure:"timeout"`
	// Retries is the number of extra attempts for a failed batch.
	Retries int `mapstructure:"retries"`
	// Backoff is the delay before the first retry.
	Backoff time.Duration `mapstructure:"backoff"`

	Logger *slog.Logger `mapstructure:"-"`
}

func (o Options) withDefaults() Options {
	if o.Language == "" {
		o.Language = DefaultLanguage
	}

	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	return o
}

// Factory builds a back end from options.
type Factory func(opts Options) (Analyzer, error)

// Registry maps back-end names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in back ends.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.factories[RegexName] = func(Options) (Analyzer, error) { return NewRegex(), nil }
	r.factories[PresidioName] = func(opts Options) (Analyzer, error) {
		p, err := NewPresidio(opts)
		if err != nil {
			return nil, err
		}

		return p, nil
	}

	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAnalyzer, name)
	}

	r.factories[name] = factory

	return nil
}

// Names returns the registered back ends in lexical order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.factories))
}

// New builds the back end selected by opts.Name, wrapped with the retry
// budget from opts.
func (r *Registry) New(opts Options) (Analyzer, error) {
	factory, ok := r.factories[opts.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAnalyzer, opts.Name)
	}

	opts = opts.withDefaults()

	a, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("create analyzer %s: %w", opts.Name, err)
	}

	if opts.Retries > 0 {
		a = Retrying(a, opts.Retries, opts.Backoff, opts.Logger)
	}

	return a, nil
}

// Factory returns a constructor bound to opts, validating the name up front.
func (r *Registry) Factory(opts Options) (func() (Analyzer, error), error) {
	if _, ok := r.factories[opts.Name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAnalyzer, opts.Name)
	}

	return func() (Analyzer, error) { return r.New(opts) }, nil
}
