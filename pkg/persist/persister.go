package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Persister stores one state file of type T per name inside a directory.
type Persister[T any] struct {
	dir   string
	codec Codec
}

// NewPersister creates a persister rooted at dir using the given codec.
func NewPersister[T any](dir string, codec Codec) *Persister[T] {
	return &Persister[T]{
		dir:   dir,
		codec: codec,
	}
}

// Dir returns the directory holding the state files.
func (p *Persister[T]) Dir() string {
	return p.dir
}

// Path returns the file path used for name.
func (p *Persister[T]) Path(name string) string {
	return filepath.Join(p.dir, name+p.codec.Extension())
}

// Ensure creates the state directory if needed.
func (p *Persister[T]) Ensure() error {
	err := os.MkdirAll(p.dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	return nil
}

// Save atomically writes state under name.
func (p *Persister[T]) Save(name string, state *T) error {
	err := p.Ensure()
	if err != nil {
		return err
	}

	return SaveState(p.dir, name, p.codec, state)
}

// Load reads the state stored under name.
func (p *Persister[T]) Load(name string) (*T, error) {
	var state T

	err := LoadState(p.dir, name, p.codec, &state)
	if err != nil {
		return nil, err
	}

	return &state, nil
}

// Remove deletes the state stored under name. A missing file is not an error.
func (p *Persister[T]) Remove(name string) error {
	err := os.Remove(p.Path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove state file: %w", err)
	}

	return nil
}

// Names lists the stored names in lexical order. A missing directory yields
// an empty list.
func (p *Persister[T]) Names() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("list state dir: %w", err)
	}

	ext := p.codec.Extension()

	var names []string

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}

		names = append(names, strings.TrimSuffix(name, ext))
	}

	slices.Sort(names)

	return names, nil
}
