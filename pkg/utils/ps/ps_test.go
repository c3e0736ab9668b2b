package ps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPS(t *testing.T) {
	m, err := MemoryStatus()
	require.NoError(t, err)
	assert.NotZero(t, m.Total)
	assert.NotEmpty(t, m.Human)

	c, err := CPUStatus()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, c.Percent, 0.0)
}

func TestDirDiskUsage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.avi"), make([]byte, 1000), 0o660))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o770))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.avi"), make([]byte, 24), 0o660))

	size, err := DirDiskUsage(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), size)

	d, err := DiskStatus(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), d.DirSize)
	assert.Contains(t, d.Human, "1.0 kB")
}

func TestHostStatus_MissingDir(t *testing.T) {
	_, err := HostStatus(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
