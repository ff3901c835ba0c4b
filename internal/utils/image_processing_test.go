package utils

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestLetterboxImage_WideImage(t *testing.T) {
	img := solid(200, 100, color.RGBA{R: 255, A: 255})

	out, lb, err := LetterboxImage(img, 64)
	require.NoError(t, err)
	assert.Equal(t, 64, out.Bounds().Dx())
	assert.Equal(t, 64, out.Bounds().Dy())
	assert.InDelta(t, 0.32, lb.Scale, 1e-9)
	assert.Equal(t, 0, lb.PadX)
	assert.Equal(t, 16, lb.PadY)

	// padding is gray, content is red
	pad := out.NRGBAAt(32, 2)
	assert.Equal(t, uint8(114), pad.R)
	content := out.NRGBAAt(32, 32)
	assert.Equal(t, uint8(255), content.R)
	assert.Equal(t, uint8(0), content.G)
}

func TestLetterbox_ToOriginal(t *testing.T) {
	lb := Letterbox{Scale: 0.5, PadX: 0, PadY: 10, Size: 64}
	x, y := lb.ToOriginal(20, 30)
	assert.InDelta(t, 40.0, x, 1e-9)
	assert.InDelta(t, 40.0, y, 1e-9)

	x, y = Letterbox{}.ToOriginal(7, 9)
	assert.InDelta(t, 7.0, x, 1e-9)
	assert.InDelta(t, 9.0, y, 1e-9)
}

func TestLetterboxImage_Errors(t *testing.T) {
	_, _, err := LetterboxImage(nil, 64)
	var ipe *ImageProcessingError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "letterbox", ipe.Operation)

	_, _, err = LetterboxImage(solid(4, 4, color.White), 0)
	require.Error(t, err)

	_, _, err = LetterboxImage(image.NewRGBA(image.Rect(0, 0, 0, 5)), 64)
	require.Error(t, err)
}

func TestNormalizeImage_PlanarLayout(t *testing.T) {
	img := solid(3, 2, color.RGBA{R: 255, G: 0, B: 51, A: 255})

	data, w, h, err := NormalizeImage(img)
	require.NoError(t, err)
	assert.Equal(t, 3, w)
	assert.Equal(t, 2, h)
	require.Len(t, data, 18)
	for i := range 6 {
		assert.InDelta(t, 1.0, data[i], 1e-6)
		assert.InDelta(t, 0.0, data[6+i], 1e-6)
		assert.InDelta(t, 0.2, data[12+i], 1e-6)
	}
}

func TestNormalizeImage_NonRGBAInputs(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 8, 4))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}
	data, w, h, err := NormalizeImage(gray)
	require.NoError(t, err)
	assert.Equal(t, 8, w)
	assert.Equal(t, 4, h)
	for _, v := range data {
		assert.InDelta(t, 128.0/255.0, v, 1e-6)
	}

	_, _, _, err = NormalizeImage(nil)
	assert.Error(t, err)
}

func TestNormalizeImageInto(t *testing.T) {
	img := solid(4, 2, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	dst := make([]float32, 64)
	data, _, _, err := NormalizeImageInto(img, dst)
	require.NoError(t, err)
	require.Len(t, data, 24)
	assert.Same(t, &dst[0], &data[0], "large enough buffer is reused")

	small := make([]float32, 4)
	data, _, _, err = NormalizeImageInto(img, small)
	require.NoError(t, err)
	assert.Len(t, data, 24)
	assert.InDelta(t, 1.0, data[23], 1e-6)
}

func TestGrayscale(t *testing.T) {
	img := solid(4, 3, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	g := Grayscale(img)
	assert.Equal(t, image.Rect(0, 0, 4, 3), g.Bounds())
	assert.Equal(t, uint8(200), g.GrayAt(1, 1).Y)
}

func TestUpscale(t *testing.T) {
	img := solid(10, 4, color.White)
	up := Upscale(img, 2)
	assert.Equal(t, 20, up.Bounds().Dx())
	assert.Equal(t, 8, up.Bounds().Dy())

	same := Upscale(img, 1)
	assert.Equal(t, 10, same.Bounds().Dx())
}

func TestResizeToHeight(t *testing.T) {
	img := solid(100, 50, color.White)

	out, err := ResizeToHeight(img, 32, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 64, out.Bounds().Dx())
	assert.Equal(t, 32, out.Bounds().Dy())

	out, err = ResizeToHeight(img, 32, 40, 0)
	require.NoError(t, err)
	assert.Equal(t, 40, out.Bounds().Dx())

	out, err = ResizeToHeight(solid(30, 32, color.White), 32, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, 32, out.Bounds().Dx())
	assert.Equal(t, uint8(0), out.NRGBAAt(31, 0).R, "right padding is black")

	_, err = ResizeToHeight(img, 0, 0, 0)
	assert.Error(t, err)
	_, err = ResizeToHeight(nil, 32, 0, 0)
	assert.Error(t, err)
}

func TestImageProcessingError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	err := &ImageProcessingError{Operation: "decode", Err: base}
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "decode")
}
