//go:build !opencv

package opencv

import (
	"errors"

	"camera-core/pkg/camera"
)

var errUnsupported = errors.New("opencv: built without the opencv tag")

// Backend is a placeholder in builds without OpenCV; every call fails.
type Backend struct{}

func New() *Backend {
	return &Backend{}
}

func Available() error {
	return errUnsupported
}

func (b *Backend) Open(int) error { return errUnsupported }
func (b *Backend) SetParameter(camera.Param, float64) error { return camera.ErrNotOpen }
func (b *Backend) Read() (camera.Frame, error) { return camera.Frame{}, camera.ErrNotOpen }
func (b *Backend) FPS() float64 { return 0 }
func (b *Backend) Close() error { return nil }
