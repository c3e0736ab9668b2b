package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name string, size int, mod time.Time) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o660))
	require.NoError(t, os.Chtimes(p, mod, mod))
}

func TestStore_List(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "recordings"))
	require.NoError(t, err)
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	write(t, s.Dir(), "old.avi", 2048, base)
	write(t, s.Dir(), "new.avi", 10, base.Add(time.Hour))
	write(t, s.Dir(), "notes.txt", 10, base)
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "dir.avi"), DefaultDirPerm))

	files, err := s.List()
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, "new.avi", files[0].Name)
	assert.Equal(t, "old.avi", files[1].Name)
	assert.Equal(t, int64(2048), files[1].Bytes)
	assert.Equal(t, "2.0 kB", files[1].Size)
}

func TestStore_Path(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	write(t, s.Dir(), "a.avi", 1, time.Now())

	p, err := s.Path("a.avi")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "a.avi"), p)

	_, err = s.Path("b.avi")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, bad := range []string{"", "../a.avi", "sub/a.avi", ".hidden.avi", "a.txt"} {
		_, err = s.Path(bad)
		assert.Error(t, err, bad)
		assert.NotErrorIs(t, err, ErrNotFound, bad)
	}
}

func TestStore_Remove(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	write(t, s.Dir(), "a.avi", 1, time.Now())

	require.NoError(t, s.Remove("a.avi"))
	assert.ErrorIs(t, s.Remove("a.avi"), ErrNotFound)
}
