//go:build opencv

package opencv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"camera-core/pkg/camera"
)

func TestProperty(t *testing.T) {
	p, err := property(camera.ParamFPS)
	require.NoError(t, err)
	assert.Equal(t, gocv.VideoCaptureFPS, p)

	_, err = property(camera.Param(42))
	assert.Error(t, err)
}

func TestBackend_ClosedCalls(t *testing.T) {
	b := New()

	_, err := b.Read()
	assert.ErrorIs(t, err, camera.ErrNotOpen)
	assert.ErrorIs(t, b.SetParameter(camera.ParamWidth, 640), camera.ErrNotOpen)
	assert.Zero(t, b.FPS())
	assert.NoError(t, b.Close())
}
