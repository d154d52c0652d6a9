package checkpoint

import (
	"maps"
	"slices"
	"sync"
)

// MemoryStore is a Store kept in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	commits int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Load returns a copy of the record for fileID.
func (s *MemoryStore) Load(fileID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneRecord(s.records[fileID]), nil
}

// CommitBatch records counts as batch seq of fileID.
func (s *MemoryStore) CommitBatch(fileID string, seq int, counts Counts) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := cloneRecord(s.records[fileID])

	err := rec.Commit(seq, maps.Clone(counts))
	if err != nil {
		return err
	}

	s.records[fileID] = rec
	s.commits++

	return nil
}

// MarkCompleted flags fileID as fully processed.
func (s *MemoryStore) MarkCompleted(fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := cloneRecord(s.records[fileID])
	rec.Completed = true
	s.records[fileID] = rec

	return nil
}

// List returns an entry per stored record ordered by file ID.
func (s *MemoryStore) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.records))

	for _, id := range slices.Sorted(maps.Keys(s.records)) {
		rec := s.records[id]
		entries = append(entries, Entry{
			FileID:        id,
			LastCommitted: rec.LastCommitted,
			Completed:     rec.Completed,
		})
	}

	return entries, nil
}

// Commits returns the number of successful CommitBatch calls.
func (s *MemoryStore) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commits
}

func cloneRecord(rec *Record) *Record {
	out := NewRecord()
	if rec == nil {
		return out
	}

	for seq, counts := range rec.Batches {
		out.Batches[seq] = maps.Clone(counts)
	}

	out.LastCommitted = rec.LastCommitted
	out.Completed = rec.Completed

	return out
}
