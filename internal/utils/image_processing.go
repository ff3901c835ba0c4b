package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// letterboxFill is the padding color used by YOLO exports.
var letterboxFill = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// Letterbox describes how an image was fitted into a square model input.
type Letterbox struct {
	Scale float64 // original -> model scale
	PadX  int     // horizontal padding in model pixels
	PadY  int     // vertical padding in model pixels
	Size  int     // model input side
}

// ToOriginal maps a point in model space back to original pixel space.
func (l Letterbox) ToOriginal(x, y float64) (float64, float64) {
	if l.Scale == 0 {
		return x, y
	}
	return (x - float64(l.PadX)) / l.Scale, (y - float64(l.PadY)) / l.Scale
}

// LetterboxImage resizes img to fit a size x size canvas preserving aspect
// ratio and centers it on a gray background.
func LetterboxImage(img image.Image, size int) (*image.NRGBA, Letterbox, error) {
	if img == nil {
		return nil, Letterbox{}, &ImageProcessingError{Operation: "letterbox", Err: errors.New("input image is nil")}
	}
	if size <= 0 {
		return nil, Letterbox{}, &ImageProcessingError{Operation: "letterbox", Err: fmt.Errorf("invalid size %d", size)}
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, Letterbox{}, &ImageProcessingError{Operation: "letterbox", Err: errors.New("image has zero size")}
	}

	scale := min(float64(size)/float64(w), float64(size)/float64(h))
	newW := max(1, int(float64(w)*scale+0.5))
	newH := max(1, int(float64(h)*scale+0.5))

	resized := imaging.Resize(img, newW, newH, imaging.Linear)
	padX := (size - newW) / 2
	padY := (size - newH) / 2
	canvas := imaging.New(size, size, letterboxFill)
	canvas = imaging.Paste(canvas, resized, image.Pt(padX, padY))

	return canvas, Letterbox{Scale: scale, PadX: padX, PadY: padY, Size: size}, nil
}

// NormalizeImage converts an image to RGB float32 values in [0,1], laid out
// as NCHW without the batch dimension. It returns the data, width and height.
func NormalizeImage(img image.Image) ([]float32, int, int, error) {
	return NormalizeImageInto(img, nil)
}

// NormalizeImageInto is NormalizeImage writing into dst when dst has room
// for 3*width*height values. Otherwise a new slice is allocated.
func NormalizeImageInto(img image.Image, dst []float32) ([]float32, int, int, error) {
	if img == nil {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("input image is nil")}
	}
	nrgba := imaging.Clone(img)
	width, height := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	plane := width * height
	var out []float32
	if cap(dst) >= 3*plane {
		out = dst[:3*plane]
	} else {
		out = make([]float32, 3*plane)
	}
	for y := range height {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := range width {
			p := row[x*4:]
			i := y*width + x
			out[i] = float32(p[0]) / 255
			out[plane+i] = float32(p[1]) / 255
			out[2*plane+i] = float32(p[2]) / 255
		}
	}
	return out, width, height, nil
}

// Grayscale returns the luminance of img as a single-channel image.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	src := imaging.Grayscale(img)
	for y := range b.Dy() {
		for x := range b.Dx() {
			gray.Pix[y*gray.Stride+x] = src.Pix[y*src.Stride+x*4]
		}
	}
	return gray
}

// Upscale enlarges img by an integer factor using Catmull-Rom (cubic) interpolation.
func Upscale(img image.Image, factor int) *image.NRGBA {
	b := img.Bounds()
	if factor <= 1 {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, b.Dx()*factor, b.Dy()*factor, imaging.CatmullRom)
}

// ResizeToHeight scales img to a fixed height keeping aspect ratio, clamps the
// width to maxWidth (when > 0) and right-pads with black to a multiple of
// padMultiple (when > 0).
func ResizeToHeight(img image.Image, height, maxWidth, padMultiple int) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "resize", Err: errors.New("input image is nil")}
	}
	if height <= 0 {
		return nil, &ImageProcessingError{Operation: "resize", Err: fmt.Errorf("invalid target height %d", height)}
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, &ImageProcessingError{Operation: "resize", Err: errors.New("image has zero size")}
	}

	newW := max(1, int(float64(b.Dx())*float64(height)/float64(b.Dy())))
	if maxWidth > 0 && newW > maxWidth {
		newW = maxWidth
	}
	resized := imaging.Resize(img, newW, height, imaging.Lanczos)

	outW := newW
	if padMultiple > 0 && newW%padMultiple != 0 {
		outW = newW + padMultiple - newW%padMultiple
	}
	if outW == newW {
		return resized, nil
	}
	canvas := imaging.New(outW, height, color.Black)
	return imaging.Paste(canvas, resized, image.Pt(0, 0)), nil
}
