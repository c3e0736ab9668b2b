package camera

import (
	"fmt"
	"time"
)

const (
	DefaultIndex       = 0
	DefaultWidth       = 640
	DefaultHeight      = 480
	FallbackFPS        = 30.0
	DefaultRetryBudget = 5
	// DeltaWindowSize is how many inter-frame deltas RealFPS averages over.
	DeltaWindowSize = 8
)

// State is the lifecycle stage of a Controller.
type State string

const (
	Released   State = "released"
	Acquired   State = "acquired"
	Configured State = "configured"
	Started    State = "started"
)

type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

type PixelFormat int

const (
	FormatRGB24 PixelFormat = iota
	// FormatBGR24 is the OpenCV channel order.
	FormatBGR24
	FormatJPEG
)

func (f PixelFormat) String() string {
	switch f {
	case FormatRGB24:
		return "rgb24"
	case FormatBGR24:
		return "bgr24"
	case FormatJPEG:
		return "jpeg"
	default:
		return "unknown"
	}
}

// Frame is one decoded buffer read from a device.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	Format PixelFormat
	// Seq is assigned by the Controller, starting at 1.
	Seq       uint64
	Timestamp time.Time
}

func (f Frame) Resolution() Resolution {
	return Resolution{Width: f.Width, Height: f.Height}
}

// Param names a setting a backend can be asked to apply.
type Param int

const (
	ParamWidth Param = iota
	ParamHeight
	ParamFPS
)

func (p Param) String() string {
	switch p {
	case ParamWidth:
		return "width"
	case ParamHeight:
		return "height"
	case ParamFPS:
		return "fps"
	default:
		return fmt.Sprintf("param(%d)", int(p))
	}
}

// Config is what a caller hands to New.
type Config struct {
	DeviceIndex int     `json:"index"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	// FPS <= 0 means use the rate negotiated by the device.
	FPS              float64 `json:"fps"`
	StartImmediately bool    `json:"startImmediately"`
	// RetryBudget is how many consecutive transient read failures are
	// tolerated before capture stops.
	RetryBudget int `json:"retryBudget"`
}

func DefaultConfig() Config {
	return Config{
		DeviceIndex:      DefaultIndex,
		Width:            DefaultWidth,
		Height:           DefaultHeight,
		StartImmediately: true,
		RetryBudget:      DefaultRetryBudget,
	}
}

func (c Config) Resolution() Resolution {
	return Resolution{Width: c.Width, Height: c.Height}
}

// Stats is a point-in-time snapshot of a Controller.
type Stats struct {
	State             State      `json:"state"`
	DeviceIndex       int        `json:"index"`
	Requested         Resolution `json:"requested"`
	Actual            Resolution `json:"actual"`
	TargetFPS         float64    `json:"targetFps"`
	RealFPS           float64    `json:"realFps"`
	FramesDelivered   uint64     `json:"framesDelivered"`
	TransientFailures uint64     `json:"transientFailures"`
	FatalFailures     uint64     `json:"fatalFailures"`
	RetryBudgetLeft   int        `json:"retryBudgetLeft"`
	Session           string     `json:"session,omitempty"`
}
