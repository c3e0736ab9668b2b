package camera

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceBusy and ErrReadTimeout are transient: the next read may succeed.
	ErrDeviceBusy  = errors.New("camera: device busy")
	ErrReadTimeout = errors.New("camera: read timeout")

	// ErrDeviceLost and ErrResourceExhausted stop capture immediately.
	ErrDeviceLost        = errors.New("camera: device lost")
	ErrResourceExhausted = errors.New("camera: resource exhausted")

	ErrNotOpen    = errors.New("camera: device not open")
	ErrNotStarted = errors.New("camera: capture could not be started")
)

// DeviceBackend is the platform capture device a Controller drives. A
// Controller is the only caller of its backend, and never calls it from two
// goroutines at once.
type DeviceBackend interface {
	// Open acquires the physical device. A failed Open leaves nothing to close.
	Open(index int) error
	// SetParameter is a best-effort request; the device may not honor it exactly.
	SetParameter(p Param, value float64) error
	// Read blocks until one decoded frame is available. The returned Data
	// must not be reused by the backend afterwards.
	Read() (Frame, error)
	Close() error
	// FPS is the currently negotiated frame rate, <= 0 when unknown.
	FPS() float64
}

// Sink receives frames from a Controller. Calls are serialized and made
// after the Controller released its lock, so a Sink may query or drive the
// Controller. Notifications caused by such a call follow once the current
// callback returns.
type Sink interface {
	OnFrameReady(f Frame)
	// OnDeviceReady is called after the first configuration and again
	// whenever a configuration finalizes a different resolution.
	OnDeviceReady(actual Resolution)
}

// SinkFuncs adapts plain functions to a Sink. Nil fields are ignored.
type SinkFuncs struct {
	FrameReady  func(Frame)
	DeviceReady func(Resolution)
}

func (s SinkFuncs) OnFrameReady(f Frame) {
	if s.FrameReady != nil {
		s.FrameReady(f)
	}
}

func (s SinkFuncs) OnDeviceReady(r Resolution) {
	if s.DeviceReady != nil {
		s.DeviceReady(r)
	}
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as unrecoverable, so a read failing with it stops capture
// without spending the retry budget.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether a read error must stop capture immediately.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe *fatalError
	if errors.As(err, &fe) {
		return true
	}
	return errors.Is(err, ErrDeviceLost) || errors.Is(err, ErrResourceExhausted)
}

// guard runs one backend call, turning a panic inside the platform wrapper
// into a fatal error.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Fatal(fmt.Errorf("camera: %s panicked: %v", op, r))
		}
	}()
	return fn()
}
