package checkpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Sumatoshi-tech/corpuscan/pkg/persist"
)

// recordIndent matches the layout of checkpoints written by earlier tooling.
const recordIndent = "    "

// FileStore keeps one "<fileID>.json" record per input file in a directory.
type FileStore struct {
	persister *persist.Persister[Record]
	logger    *slog.Logger
}

// NewFileStore creates a store rooted at dir. The directory is created on the
// first commit.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &FileStore{
		persister: persist.NewPersister[Record](dir, &persist.JSONCodec{Indent: recordIndent}),
		logger:    logger,
	}
}

// Dir returns the checkpoint directory.
func (s *FileStore) Dir() string {
	return s.persister.Dir()
}

// Path returns the record file for fileID.
func (s *FileStore) Path(fileID string) string {
	return s.persister.Path(fileID)
}

// Load returns the record for fileID. Absent or corrupt records yield a fresh
// empty record; corrupt ones are logged.
func (s *FileStore) Load(fileID string) (*Record, error) {
	rec, err := s.load(fileID)
	if errors.Is(err, ErrCorrupt) {
		s.logger.Warn("checkpoint unusable, starting file over",
			"file", fileID, "path", s.Path(fileID), "error", err)

		return NewRecord(), nil
	}

	return rec, err
}

// load distinguishes corrupt records (ErrCorrupt) from missing ones.
func (s *FileStore) load(fileID string) (*Record, error) {
	rec, err := s.persister.Load(fileID)

	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, os.ErrNotExist):
		return NewRecord(), nil
	case errors.Is(err, persist.ErrDecode):
		if errors.Is(err, ErrCorrupt) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	default:
		return nil, fmt.Errorf("load checkpoint %s: %w", fileID, err)
	}
}

// CommitBatch adds batch seq to the record of fileID and rewrites it
// atomically.
func (s *FileStore) CommitBatch(fileID string, seq int, counts Counts) error {
	rec, err := s.Load(fileID)
	if err != nil {
		return err
	}

	err = rec.Commit(seq, counts)
	if err != nil {
		return fmt.Errorf("commit %s batch %d: %w", fileID, seq, err)
	}

	return s.save(fileID, rec)
}

// MarkCompleted sets the completed flag of fileID, leaving batches as they are.
func (s *FileStore) MarkCompleted(fileID string) error {
	rec, err := s.Load(fileID)
	if err != nil {
		return err
	}

	rec.Completed = true

	return s.save(fileID, rec)
}

// List returns an entry for every record file in the directory.
func (s *FileStore) List() ([]Entry, error) {
	names, err := s.persister.Names()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	entries := make([]Entry, 0, len(names))

	for _, name := range names {
		rec, loadErr := s.load(name)
		if errors.Is(loadErr, ErrCorrupt) {
			s.logger.Warn("checkpoint unusable", "file", name, "error", loadErr)
			entries = append(entries, Entry{FileID: name, Corrupt: true})

			continue
		}

		if loadErr != nil {
			return nil, loadErr
		}

		entries = append(entries, Entry{
			FileID:        name,
			LastCommitted: rec.LastCommitted,
			Completed:     rec.Completed,
		})
	}

	return entries, nil
}

// Records loads every valid record keyed by file ID. Corrupt records are
// omitted.
func (s *FileStore) Records() (map[string]*Record, error) {
	names, err := s.persister.Names()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	records := make(map[string]*Record, len(names))

	for _, name := range names {
		rec, loadErr := s.load(name)
		if errors.Is(loadErr, ErrCorrupt) {
			continue
		}

		if loadErr != nil {
			return nil, loadErr
		}

		records[name] = rec
	}

	return records, nil
}

// Clear removes the record of fileID so the next run reprocesses it. A
// missing record is not an error.
func (s *FileStore) Clear(fileID string) error {
	if fileID == "" || fileID == "." || fileID == ".." || strings.ContainsAny(fileID, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, fileID)
	}

	return s.persister.Remove(fileID)
}

// ClearAll removes every record in the directory and returns how many were
// removed.
func (s *FileStore) ClearAll() (int, error) {
	names, err := s.persister.Names()
	if err != nil {
		return 0, fmt.Errorf("list checkpoints: %w", err)
	}

	for i, name := range names {
		err = s.persister.Remove(name)
		if err != nil {
			return i, err
		}
	}

	return len(names), nil
}

func (s *FileStore) save(fileID string, rec *Record) error {
	err := s.persister.Save(fileID, rec)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", fileID, err)
	}

	return nil
}
