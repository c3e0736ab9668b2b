package provider

import (
	"sync"

	"camera-core/pkg/backend/ffmpeg"
	"camera-core/pkg/backend/opencv"
	"camera-core/pkg/backend/v4l2"
	"camera-core/pkg/camera"
)

const (
	NameV4L2         = "v4l2"
	NameAVFoundation = "avfoundation"
	NameFFmpegV4L2   = "ffmpeg-v4l2"
	NameOpenCV       = "opencv"
)

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

func onOS(os string) func(Platform) bool {
	return func(p Platform) bool { return p.OS == os }
}

// Builtin returns a registry holding every provider this module ships, in
// preference order, with OpenCV as the fallback.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(Provider{
		Name:       NameV4L2,
		Applicable: func(p Platform) bool { return p.OS == "linux" && p.CGO },
		Available:  v4l2.Available,
		New:        func() (camera.DeviceBackend, error) { return v4l2.New(), nil },
	})
	r.Register(Provider{
		Name:       NameAVFoundation,
		Applicable: onOS("darwin"),
		Available:  ffmpeg.Available,
		New:        func() (camera.DeviceBackend, error) { return ffmpeg.New(ffmpeg.AVFoundation()), nil },
	})
	r.Register(Provider{
		Name:       NameFFmpegV4L2,
		Applicable: onOS("linux"),
		Available:  ffmpeg.Available,
		New:        func() (camera.DeviceBackend, error) { return ffmpeg.New(ffmpeg.V4L2()), nil },
	})
	r.SetFallback(Provider{
		Name:      NameOpenCV,
		Available: opencv.Available,
		New:       func() (camera.DeviceBackend, error) { return opencv.New(), nil },
	})
	return r
}

// Default is the process-wide registry, initialized from Builtin.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = Builtin()
	})
	return defaultRegistry
}
