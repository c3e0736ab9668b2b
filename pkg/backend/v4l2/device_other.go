//go:build !(linux && cgo)

package v4l2

import (
	"errors"

	"camera-core/pkg/camera"
)

var errUnsupported = errors.New("v4l2: only available on linux with cgo")

// Backend is a placeholder on platforms without V4L2; every call fails.
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
