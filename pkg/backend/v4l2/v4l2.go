package v4l2

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"camera-core/pkg/camera"
	"camera-core/pkg/utils"
)

const (
	// DefaultReadTimeout bounds how long Read waits for the driver.
	DefaultReadTimeout = 2 * time.Second

	reopenAttempts = 5
	reopenBackoff  = 150 * time.Millisecond
)

var logger = utils.GetLogger().Named("v4l2")

// DevicePath maps a device index to its video node.
func DevicePath(index int) string {
	return fmt.Sprintf("/dev/video%d", index)
}

// classify maps a driver error to the camera error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isBusyErr(err) {
		return fmt.Errorf("%w: %v", camera.ErrDeviceBusy, err)
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "no such device") || strings.Contains(s, "enodev") {
		return fmt.Errorf("%w: %v", camera.ErrDeviceLost, err)
	}
	if strings.Contains(s, "cannot allocate memory") || strings.Contains(s, "enomem") {
		return fmt.Errorf("%w: %v", camera.ErrResourceExhausted, err)
	}
	return err
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, camera.ErrDeviceBusy) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "busy") || strings.Contains(s, "ebusy")
}

// settings is what the next (re)open of the device will ask for.
type settings struct {
	width  int
	height int
	fps    int
}

func (s *settings) apply(p camera.Param, value float64) error {
	if value <= 0 {
		return fmt.Errorf("v4l2: %s must be positive, got %v", p, value)
	}
	switch p {
	case camera.ParamWidth:
		s.width = int(value)
	case camera.ParamHeight:
		s.height = int(value)
	case camera.ParamFPS:
		s.fps = int(value + 0.5)
	default:
		return fmt.Errorf("v4l2: unsupported parameter %s", p)
	}
	return nil
}
