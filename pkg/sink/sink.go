package sink

import (
	"fmt"

	"camera-core/pkg/camera"
	"camera-core/pkg/utils"
	"camera-core/pkg/utils/image"
)

var logger = utils.GetLogger().Named("sink")

// EncodeJPEG returns f as a JPEG image, re-encoding raw pixel formats.
func EncodeJPEG(f camera.Frame, quality int) ([]byte, error) {
	switch f.Format {
	case camera.FormatJPEG:
		return f.Data, nil
	case camera.FormatRGB24:
		img, err := image.DecodeRGB(f.Data, f.Width, f.Height)
		if err != nil {
			return nil, err
		}
		return image.JPEGBytes(img, quality)
	case camera.FormatBGR24:
		img, err := image.DecodeBGR(f.Data, f.Width, f.Height)
		if err != nil {
			return nil, err
		}
		return image.JPEGBytes(img, quality)
	default:
		return nil, fmt.Errorf("cannot encode %s frame", f.Format)
	}
}

// Multi hands every notification to each sink in order.
type Multi []camera.Sink

func (m Multi) OnFrameReady(f camera.Frame) {
	for _, s := range m {
		s.OnFrameReady(f)
	}
}

func (m Multi) OnDeviceReady(r camera.Resolution) {
	for _, s := range m {
		s.OnDeviceReady(r)
	}
}
