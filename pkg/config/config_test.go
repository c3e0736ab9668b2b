package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"camera-core/pkg/camera"
)

func TestLoad_Empty(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camera.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"provider": "ffmpeg-v4l2",
		"camera": {"index": 2, "width": 1280, "height": 720},
		"port": 8080
	}`), 0o660))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ffmpeg-v4l2", cfg.Provider)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DefaultWebdavPort, cfg.WebdavPort)
	assert.Equal(t, 2, cfg.Camera.DeviceIndex)
	assert.Equal(t, camera.Resolution{Width: 1280, Height: 720}, cfg.Camera.Resolution())
	assert.True(t, cfg.Camera.StartImmediately)
	assert.Equal(t, camera.DefaultRetryBudget, cfg.Camera.RetryBudget)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"port": "x"`), 0o660))
	_, err = Load(bad)
	assert.Error(t, err)

	clash := filepath.Join(dir, "clash.json")
	require.NoError(t, os.WriteFile(clash, []byte(`{"port": 9998, "jpegQuality": 0}`), 0o660))
	_, err = Load(clash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both 9998")
	assert.Contains(t, err.Error(), "jpeg quality 0")
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "camera.json")
	cfg := Default()
	cfg.Camera.FPS = 12.5
	cfg.Provider = "opencv"

	require.NoError(t, cfg.Save(path))
	got, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	cfg.WebdavPort = 0
	cfg.JPEGQuality = 101
	cfg.StorageDir = ""

	err := cfg.Validate()

	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 5)
	assert.Contains(t, err.Error(), "jpeg quality 101")
	assert.Contains(t, err.Error(), "storage dir is empty")
}
