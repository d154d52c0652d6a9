// Package dataset describes the corpora corpuscan knows how to read: which
// files in a directory belong to a dataset and which JSON field holds the
// text of each record.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/corpuscan/pkg/records"
)

// Registry errors.
var (
	ErrUnknownDataset    = errors.New("unknown dataset")
	ErrDuplicateDataset  = errors.New("duplicate dataset")
	ErrInvalidDescriptor = errors.New("invalid dataset descriptor")
)

// Descriptor identifies the input files of a dataset and their payload field.
type Descriptor struct {
	// Name is the dataset identifier used on the command line and as the
	// checkpoint subdirectory.
	Name string `mapstructure:"name" json:"name" yaml:"name"`
	// Suffix selects input files and is stripped to form file IDs.
	Suffix string `mapstructure:"suffix" json:"suffix" yaml:"suffix"`
	// Field is the JSON field holding record text. Empty means the whole
	// line is the record.
	Field string `mapstructure:"field" json:"field" yaml:"field"`
}

// Builtin descriptors.
var (
	C4          = Descriptor{Name: "c4", Suffix: ".json.gz", Field: "text"}
	Dolma       = Descriptor{Name: "dolma", Suffix: ".json.gz", Field: "text"}
	GoogleNQ    = Descriptor{Name: "googlenq", Suffix: ".jsonl.gz", Field: "question_text"}
	OpenWebText = Descriptor{Name: "openwebtext", Suffix: ".jsonl", Field: "text"}
)

// Builtins returns the built-in descriptors in stable order.
func Builtins() []Descriptor {
	return []Descriptor{C4, Dolma, GoogleNQ, OpenWebText}
}

// Validate checks that the descriptor can select files.
func (d Descriptor) Validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	case strings.ContainsAny(d.Name, `/\`):
		return fmt.Errorf("%w: name %q contains a path separator", ErrInvalidDescriptor, d.Name)
	case d.Suffix == "":
		return fmt.Errorf("%w: %s has no suffix", ErrInvalidDescriptor, d.Name)
	}

	return nil
}

// Matches reports whether a file name belongs to the dataset.
func (d Descriptor) Matches(name string) bool {
	return strings.HasSuffix(name, d.Suffix) && len(name) > len(d.Suffix)
}

// FileID returns the stable file ID for a file name of the dataset.
func (d Descriptor) FileID(name string) string {
	return strings.TrimSuffix(name, d.Suffix)
}

// Extractor returns the record extractor for the payload field.
func (d Descriptor) Extractor() records.Extractor {
	if d.Field == "" {
		return records.Raw
	}

	return records.JSONField(d.Field)
}

// InputFile is one file of a dataset.
type InputFile struct {
	ID   string
	Name string
}

// ListFiles returns the dataset files in dir sorted by name. Directories and
// non-matching files are ignored.
func (d Descriptor) ListFiles(dir string) ([]InputFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list input dir: %w", err)
	}

	var files []InputFile

	for _, entry := range entries {
		if !entry.Type().IsRegular() && entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		if !d.Matches(entry.Name()) {
			continue
		}

		files = append(files, InputFile{ID: d.FileID(entry.Name()), Name: entry.Name()})
	}

	slices.SortFunc(files, func(a, b InputFile) int {
		return strings.Compare(a.Name, b.Name)
	})

	return files, nil
}

// Registry stores dataset descriptors with deterministic ordering.
type Registry struct {
	ordered []Descriptor
	index   map[string]Descriptor
}

// NewRegistry creates a registry holding the built-ins followed by extra.
// Extra descriptors may not reuse a name.
func NewRegistry(extra ...Descriptor) (*Registry, error) {
	all := append(Builtins(), extra...)

	r := &Registry{
		ordered: make([]Descriptor, 0, len(all)),
		index:   make(map[string]Descriptor, len(all)),
	}

	for _, d := range all {
		err := d.Validate()
		if err != nil {
			return nil, err
		}

		if _, exists := r.index[d.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDataset, d.Name)
		}

		r.index[d.Name] = d
		r.ordered = append(r.ordered, d)
	}

	return r, nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, ok := r.index[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownDataset, name, strings.Join(r.Names(), ", "))
	}

	return d, nil
}

// All returns all descriptors in stable order.
func (r *Registry) All() []Descriptor {
	return slices.Clone(r.ordered)
}

// Names returns the registered dataset names in stable order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	for i, d := range r.ordered {
		names[i] = d.Name
	}

	return names
}
