package checkpoint

// Store persists checkpoint records keyed by input file ID. A store has a
// single writer per file ID; the engine never writes one file from two
// workers.
type Store interface {
	// Load returns the record for fileID, or a fresh empty record if none
	// exists or the persisted one is unusable.
	Load(fileID string) (*Record, error)
	// CommitBatch durably records counts as batch seq of fileID.
	CommitBatch(fileID string, seq int, counts Counts) error
	// MarkCompleted durably flags fileID as fully processed.
	MarkCompleted(fileID string) error
	// List returns one entry per persisted record, ordered by file ID.
	List() ([]Entry, error)
}

// Entry summarizes one persisted record.
type Entry struct {
	FileID        string
	LastCommitted int
	Completed     bool
	// Corrupt is set when the record could not be parsed or validated.
	Corrupt bool
}
