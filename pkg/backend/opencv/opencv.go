//go:build opencv

package opencv

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"camera-core/pkg/camera"
)

// Backend reads BGR frames through an OpenCV VideoCapture.
type Backend struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

func New() *Backend {
	return &Backend{}
}

// Available reports whether this build can drive OpenCV.
func Available() error {
	return nil
}

func (b *Backend) Open(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capture != nil {
		return fmt.Errorf("opencv: device already open")
	}
	capture, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return err
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return fmt.Errorf("opencv: could not open device %d", index)
	}
	b.capture = capture
	b.mat = gocv.NewMat()

	return nil
}

func (b *Backend) SetParameter(p camera.Param, value float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capture == nil {
		return camera.ErrNotOpen
	}
	prop, err := property(p)
	if err != nil {
		return err
	}
	b.capture.Set(prop, value)

	return nil
}

func (b *Backend) Read() (camera.Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capture == nil {
		return camera.Frame{}, camera.ErrNotOpen
	}
	if ok := b.capture.Read(&b.mat); !ok {
		return camera.Frame{}, fmt.Errorf("opencv: failed to read frame: %w", camera.ErrDeviceBusy)
	}
	if b.mat.Empty() {
		return camera.Frame{}, fmt.Errorf("opencv: captured frame is empty: %w", camera.ErrDeviceBusy)
	}

	return camera.Frame{
		Data:   b.mat.ToBytes(),
		Width:  b.mat.Cols(),
		Height: b.mat.Rows(),
		Format: camera.FormatBGR24,
	}, nil
}

func (b *Backend) FPS() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capture == nil {
		return 0
	}
	return b.capture.Get(gocv.VideoCaptureFPS)
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capture == nil {
		return nil
	}
	_ = b.mat.Close()
	err := b.capture.Close()
	b.capture = nil

	return err
}

func property(p camera.Param) (gocv.VideoCaptureProperties, error) {
	switch p {
	case camera.ParamWidth:
		return gocv.VideoCaptureFrameWidth, nil
	case camera.ParamHeight:
		return gocv.VideoCaptureFrameHeight, nil
	case camera.ParamFPS:
		return gocv.VideoCaptureFPS, nil
	default:
		return 0, fmt.Errorf("opencv: unsupported parameter %s", p)
	}
}
