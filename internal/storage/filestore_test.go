package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.json")
	store := NewFileStore(path)

	empty, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, empty)

	want := map[string]int64{"/var/log/a.log": 120, "/var/log/b.log": 0}
	require.NoError(t, store.Save(want))

	got, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	_, err := NewFileStore(path).Load()
	assert.Error(t, err)
}

var _ ProcessedStore = (*FileStore)(nil)
var _ ProcessedStore = (*RedisStore)(nil)
