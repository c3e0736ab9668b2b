//go:build linux && cgo

package v4l2

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"camera-core/pkg/camera"
)

// Backend streams MJPEG frames from a V4L2 node. Parameter changes are
// applied by reopening the stream on the next Read.
type Backend struct {
	ReadTimeout time.Duration

	mu     sync.Mutex
	index  int
	want   settings
	dirty  bool
	dev    *device.Device
	cancel context.CancelFunc
	frames <-chan []byte
	format v4l2.PixFormat
}

func New() *Backend {
	return &Backend{
		ReadTimeout: DefaultReadTimeout,
		want:        settings{width: camera.DefaultWidth, height: camera.DefaultHeight},
	}
}

func Available() error {
	return nil
}

func (b *Backend) Open(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev != nil {
		return fmt.Errorf("v4l2: %s already open", DevicePath(b.index))
	}
	b.index = index
	b.dirty = false

	return classify(b.start())
}

func (b *Backend) start() error {
	opts := []device.Option{
		device.WithBufferSize(1),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtJPEG,
			Width:       uint32(b.want.width),
			Height:      uint32(b.want.height),
			Field:       v4l2.FieldNone,
		}),
	}
	if b.want.fps > 0 {
		opts = append(opts, device.WithFPS(uint32(b.want.fps)))
	}
	dev, err := device.Open(DevicePath(b.index), opts...)
	if err != nil {
		return err
	}
	format, err := v4l2.GetPixFormat(dev.Fd())
	if err != nil {
		_ = dev.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err = dev.Start(ctx); err != nil {
		cancel()
		_ = dev.Close()
		return err
	}
	b.dev = dev
	b.cancel = cancel
	b.frames = dev.GetOutput()
	b.format = format
	logger.Debugf("%s streaming %dx%d", DevicePath(b.index), format.Width, format.Height)

	return nil
}

func (b *Backend) stop() error {
	if b.cancel != nil {
		// let the stream goroutine observe ctx.Done before Close
		b.cancel()
		time.Sleep(100 * time.Millisecond)
		b.cancel = nil
	}
	b.frames = nil
	if b.dev == nil {
		return nil
	}
	err := b.dev.Close()
	b.dev = nil

	return err
}

// reopen restarts the stream with the pending settings, retrying while the
// driver still reports the node busy.
func (b *Backend) reopen() error {
	if err := b.stop(); err != nil {
		logger.Warnf("close %s before reopen: %s", DevicePath(b.index), err)
	}
	time.Sleep(50 * time.Millisecond)
	var err error
	for i := 0; i < reopenAttempts; i++ {
		if err = b.start(); err == nil {
			b.dirty = false
			return nil
		}
		if !isBusyErr(err) {
			break
		}
		logger.Warnf("reopen %s will retry %d/%d: %v", DevicePath(b.index), i+1, reopenAttempts, err)
		time.Sleep(reopenBackoff)
	}

	return err
}

func (b *Backend) SetParameter(p camera.Param, value float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev == nil {
		return camera.ErrNotOpen
	}
	if err := b.want.apply(p, value); err != nil {
		return err
	}
	b.dirty = true

	return nil
}

func (b *Backend) Read() (camera.Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev == nil && !b.dirty {
		return camera.Frame{}, camera.ErrNotOpen
	}
	if b.dirty {
		if err := b.reopen(); err != nil {
			// the node is gone from under us; nothing left to read from
			return camera.Frame{}, camera.Fatal(classify(err))
		}
	}

	timer := time.NewTimer(b.ReadTimeout)
	defer timer.Stop()
	select {
	case data, ok := <-b.frames:
		if !ok {
			return camera.Frame{}, fmt.Errorf("v4l2: stream closed: %w", camera.ErrDeviceLost)
		}
		return camera.Frame{
			Data:   append([]byte(nil), data...),
			Width:  int(b.format.Width),
			Height: int(b.format.Height),
			Format: camera.FormatJPEG,
		}, nil
	case <-timer.C:
		return camera.Frame{}, fmt.Errorf("v4l2: no frame after %s: %w", b.ReadTimeout, camera.ErrReadTimeout)
	}
}

func (b *Backend) FPS() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev == nil {
		return 0
	}
	fps, err := b.dev.GetFrameRate()
	if err != nil {
		logger.Debugf("query frame rate of %s: %s", DevicePath(b.index), err)
		return 0
	}
	return float64(fps)
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dev == nil {
		return nil
	}
	b.dirty = false
	return b.stop()
}
