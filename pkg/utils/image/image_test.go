package image

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	width  = 4
	height = 2
)

func pixels() []byte {
	data := make([]byte, 0, width*height*3)
	for i := 0; i < width*height; i++ {
		data = append(data, 10, 20, 30)
	}
	return data
}

func TestDecodeRGB(t *testing.T) {
	img, err := DecodeRGB(pixels(), width, height)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, width, height), img.Bounds())
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 0xFF}, img.At(3, 1))
}

func TestDecodeBGR(t *testing.T) {
	img, err := DecodeBGR(pixels(), width, height)
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{R: 30, G: 20, B: 10, A: 0xFF}, img.At(0, 0))
}

func TestDecode_Invalid(t *testing.T) {
	_, err := DecodeRGB(pixels()[:5], width, height)
	assert.Error(t, err)
	_, err = DecodeRGB(pixels(), 0, height)
	assert.Error(t, err)
}

func TestJPEGBytes(t *testing.T) {
	img, err := DecodeRGB(pixels(), width, height)
	require.NoError(t, err)

	data, err := JPEGBytes(img, DefaultQuality)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, width, cfg.Width)
	assert.Equal(t, height, cfg.Height)
}
