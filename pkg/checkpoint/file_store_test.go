package checkpoint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()

	return NewFileStore(filepath.Join(t.TempDir(), "c4"), nil)
}

func TestFileStore_LoadMissing(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	rec, err := s.Load("c4-train.00000-of-01024")
	require.NoError(t, err)

	assert.Equal(t, 0, rec.LastCommitted)
	assert.False(t, rec.Completed)
	assert.Empty(t, rec.Batches)

	_, statErr := os.Stat(s.Dir())
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestFileStore_CommitAndComplete(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	require.NoError(t, s.CommitBatch("f", 1, Counts{"PERSON": 1}))
	require.NoError(t, s.CommitBatch("f", 2, Counts{}))
	require.NoError(t, s.MarkCompleted("f"))

	rec, err := s.Load("f")
	require.NoError(t, err)

	assert.Equal(t, 2, rec.LastCommitted)
	assert.True(t, rec.Completed)
	assert.Equal(t, Counts{"PERSON": 1}, rec.Batches[1])

	data, err := os.ReadFile(s.Path("f"))
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"batches":{"batch_1":{"PERSON":1},"batch_2":{}},"batch_cnt":2,"completed":true}`,
		string(data))
	assert.Contains(t, string(data), "\n    \"batch_cnt\": 2")
}

func TestFileStore_CommitGapKeepsEarlierBatches(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	require.NoError(t, s.CommitBatch("f", 1, Counts{"A": 1}))
	require.ErrorIs(t, s.CommitBatch("f", 3, Counts{"B": 2}), ErrOutOfOrder)

	rec, err := s.Load("f")
	require.NoError(t, err)

	assert.Equal(t, 1, rec.LastCommitted)
	assert.Equal(t, map[int]Counts{1: {"A": 1}}, rec.Batches)

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, Entry{FileID: "f", LastCommitted: 1}, entries[0])
}

func TestFileStore_MarkCompletedWithoutBatches(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	require.NoError(t, s.MarkCompleted("empty"))

	entries, err := s.List()
	require.NoError(t, err)

	assert.Equal(t, []Entry{{FileID: "empty", Completed: true}}, entries)
}

func TestFileStore_CorruptRecordStartsOver(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"truncated json", `{"batches": {"batch_1": {`},
		{"empty file", ``},
		{"schema mismatch", `{"batches": [], "batch_cnt": 1, "completed": false}`},
		{"invariant mismatch", `{"batches": {"batch_2": {}}, "batch_cnt": 2, "completed": false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestStore(t)
			require.NoError(t, os.MkdirAll(s.Dir(), 0o750))
			require.NoError(t, os.WriteFile(s.Path("bad"), []byte(tt.data), 0o600))

			rec, err := s.Load("bad")
			require.NoError(t, err)
			assert.Equal(t, 0, rec.LastCommitted)

			entries, err := s.List()
			require.NoError(t, err)
			assert.Equal(t, []Entry{{FileID: "bad", Corrupt: true}}, entries)

			require.NoError(t, s.CommitBatch("bad", 1, Counts{"URL": 1}))

			rec, err = s.Load("bad")
			require.NoError(t, err)
			assert.Equal(t, 1, rec.LastCommitted)
		})
	}
}

func TestFileStore_ListOrdered(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	require.NoError(t, s.CommitBatch("b", 1, nil))
	require.NoError(t, s.CommitBatch("a", 1, nil))
	require.NoError(t, s.CommitBatch("a", 2, nil))
	require.NoError(t, s.MarkCompleted("b"))

	entries, err := s.List()
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{FileID: "a", LastCommitted: 2},
		{FileID: "b", LastCommitted: 1, Completed: true},
	}, entries)
}

func TestFileStore_CommitAfterCompleted(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	require.NoError(t, s.CommitBatch("f", 1, nil))
	require.NoError(t, s.MarkCompleted("f"))

	require.ErrorIs(t, s.CommitBatch("f", 2, nil), ErrCompleted)
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	for seq := 1; seq <= 5; seq++ {
		require.NoError(t, s.CommitBatch("f", seq, Counts{"URL": seq}))
	}

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.HasPrefix(entries[0].Name(), "."))
}

func TestFileStore_Records(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	require.NoError(t, s.CommitBatch("good", 1, Counts{"URL": 2}))
	require.NoError(t, os.WriteFile(s.Path("bad"), []byte("{"), 0o600))

	records, err := s.Records()
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, Counts{"URL": 2}, records["good"].Totals())
}

func TestFileStore_Clear(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	require.NoError(t, s.CommitBatch("a", 1, nil))
	require.NoError(t, s.CommitBatch("b", 1, nil))
	require.NoError(t, s.CommitBatch("c", 1, nil))

	require.NoError(t, s.Clear("a"))
	require.NoError(t, s.Clear("missing"))

	removed, err := s.ClearAll()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStore_ClearRejectsPaths(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	for _, id := range []string{"", "..", "../other", `nested\id`} {
		require.ErrorIs(t, s.Clear(id), ErrInvalidID, id)
	}
}
