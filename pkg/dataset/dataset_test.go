package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Builtins(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry()
	require.NoError(t, err)

	assert.Equal(t, []string{"c4", "dolma", "googlenq", "openwebtext"}, r.Names())

	nq, err := r.Lookup("googlenq")
	require.NoError(t, err)
	assert.Equal(t, ".jsonl.gz", nq.Suffix)
	assert.Equal(t, "question_text", nq.Field)
}

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry()
	require.NoError(t, err)

	_, err = r.Lookup("pile")
	require.ErrorIs(t, err, ErrUnknownDataset)
	assert.Contains(t, err.Error(), "c4")
}

func TestRegistry_Extra(t *testing.T) {
	t.Parallel()

	pile := Descriptor{Name: "pile", Suffix: ".jsonl.zst", Field: "text"}

	r, err := NewRegistry(pile)
	require.NoError(t, err)

	got, err := r.Lookup("pile")
	require.NoError(t, err)
	assert.Equal(t, pile, got)
	assert.Len(t, r.All(), 5)
}

func TestRegistry_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		extra Descriptor
		want  error
	}{
		{"duplicate", Descriptor{Name: "c4", Suffix: ".gz"}, ErrDuplicateDataset},
		{"no name", Descriptor{Suffix: ".gz"}, ErrInvalidDescriptor},
		{"no suffix", Descriptor{Name: "x"}, ErrInvalidDescriptor},
		{"separator", Descriptor{Name: "a/b", Suffix: ".gz"}, ErrInvalidDescriptor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewRegistry(tt.extra)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDescriptor_FileID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "c4-train.00000-of-01024", C4.FileID("c4-train.00000-of-01024.json.gz"))
	assert.True(t, C4.Matches("a.json.gz"))
	assert.False(t, C4.Matches(".json.gz"))
	assert.False(t, GoogleNQ.Matches("a.json.gz"))
	assert.False(t, OpenWebText.Matches("a.jsonl.gz"))
}

func TestDescriptor_ListFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	for _, name := range []string{"b.json.gz", "a.json.gz", "notes.txt", "c.jsonl.gz"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	require.NoError(t, os.Mkdir(filepath.Join(dir, "d.json.gz"), 0o750))

	files, err := C4.ListFiles(dir)
	require.NoError(t, err)

	assert.Equal(t, []InputFile{{ID: "a", Name: "a.json.gz"}, {ID: "b", Name: "b.json.gz"}}, files)

	_, err = C4.ListFiles(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDescriptor_Extractor(t *testing.T) {
	t.Parallel()

	text, err := GoogleNQ.Extractor()([]byte(`{"question_text":"who?","text":"no"}`))
	require.NoError(t, err)
	assert.Equal(t, "who?", text)

	raw, err := Descriptor{Name: "raw", Suffix: ".txt"}.Extractor()([]byte("line"))
	require.NoError(t, err)
	assert.Equal(t, "line", raw)
}
