package persist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// persisterState is a struct for persister round-trip testing.
type persisterState struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

func TestPersister_SaveLoad(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "dir")

	p := NewPersister[persisterState](dir, NewJSONCodec())

	original := persisterState{Label: "hello", Value: 42}
	require.NoError(t, p.Save("mystate", &original))

	restored, err := p.Load("mystate")
	require.NoError(t, err)

	assert.Equal(t, original, *restored)
	assert.Equal(t, filepath.Join(dir, "mystate.json"), p.Path("mystate"))
}

func TestPersister_LoadMissingFile(t *testing.T) {
	t.Parallel()

	p := NewPersister[persisterState](t.TempDir(), NewJSONCodec())

	_, err := p.Load("missing")

	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPersister_Names(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewPersister[persisterState](dir, NewJSONCodec())

	require.NoError(t, p.Save("b", &persisterState{}))
	require.NoError(t, p.Save("a", &persisterState{}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".a.json.tmp-1"), nil, 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o750))

	names, err := p.Names()
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, names)
}

func TestPersister_NamesMissingDir(t *testing.T) {
	t.Parallel()

	p := NewPersister[persisterState](filepath.Join(t.TempDir(), "absent"), NewJSONCodec())

	names, err := p.Names()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestPersister_Remove(t *testing.T) {
	t.Parallel()

	p := NewPersister[persisterState](t.TempDir(), NewJSONCodec())

	require.NoError(t, p.Save("gone", &persisterState{}))
	require.NoError(t, p.Remove("gone"))
	require.NoError(t, p.Remove("gone"))

	_, err := p.Load("gone")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
