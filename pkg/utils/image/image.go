package image

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
)

const DefaultQuality = 85

// RGBToRGBA expands packed 24-bit pixels into out, which must hold
// width*height*4 bytes. bgr swaps the first and third channel.
func RGBToRGBA(in, out []byte, width, height int, bgr bool) {
	outStride := width * 4
	inStride := len(in) / height
	r, b := 0, 2
	if bgr {
		r, b = 2, 0
	}

	for i := 0; i < height; i++ {
		oIndex := i * outStride
		iIndex := i * inStride
		for j := 0; j < width; j++ {
			out[oIndex] = in[iIndex+r]
			out[oIndex+1] = in[iIndex+1]
			out[oIndex+2] = in[iIndex+b]
			out[oIndex+3] = 0xFF

			oIndex += 4
			iIndex += 3
		}
	}
}

func DecodeRGB(data []byte, width, height int) (image.Image, error) {
	return decode(data, width, height, false)
}

// DecodeBGR decodes OpenCV-ordered pixels.
func DecodeBGR(data []byte, width, height int) (image.Image, error) {
	return decode(data, width, height, true)
}

func decode(data []byte, width, height int, bgr bool) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if len(data) < width*height*3 {
		return nil, fmt.Errorf("%d bytes is too short for %dx%d", len(data), width, height)
	}
	i := image.NewRGBA(image.Rect(0, 0, width, height))
	RGBToRGBA(data, i.Pix, width, height, bgr)

	return i, nil
}

func EncodeJPEG(img image.Image, dst io.Writer, quality int) error {
	return jpeg.Encode(dst, img, &jpeg.Options{Quality: quality})
}

// JPEGBytes encodes img into a new buffer.
func JPEGBytes(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeJPEG(img, &buf, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
