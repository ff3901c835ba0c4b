package utils

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Box is an axis-aligned pixel rectangle with exclusive max coordinates.
// It serializes as the array [x1, y1, x2, y2].
type Box struct {
	X1 int
	Y1 int
	X2 int
	Y2 int
}

// NewBox constructs a Box from corner coordinates ensuring ordering.
func NewBox(x1, y1, x2, y2 int) Box {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// BoxFromFloat truncates float corner coordinates toward zero.
func BoxFromFloat(x1, y1, x2, y2 float64) Box {
	return NewBox(int(x1), int(y1), int(x2), int(y2))
}

// Width returns the box width.
func (b Box) Width() int { return b.X2 - b.X1 }

// Height returns the box height.
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Area returns width*height, or 0 for degenerate boxes.
func (b Box) Area() int {
	if b.Empty() {
		return 0
	}
	return b.Width() * b.Height()
}

// Empty reports whether the box has zero width or height.
func (b Box) Empty() bool { return b.X2 <= b.X1 || b.Y2 <= b.Y1 }

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle { return image.Rect(b.X1, b.Y1, b.X2, b.Y2) }

// Clip clamps the box to bounds. A box fully outside bounds becomes empty.
func (b Box) Clip(bounds image.Rectangle) Box {
	x1 := clampInt(b.X1, bounds.Min.X, bounds.Max.X)
	y1 := clampInt(b.Y1, bounds.Min.Y, bounds.Max.Y)
	x2 := clampInt(b.X2, bounds.Min.X, bounds.Max.X)
	y2 := clampInt(b.Y2, bounds.Min.Y, bounds.Max.Y)
	if x2 < x1 {
		x2 = x1
	}
	if y2 < y1 {
		y2 = y1
	}
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// IoU returns the intersection over union of two boxes.
func (b Box) IoU(o Box) float64 {
	inter := b.Rect().Intersect(o.Rect())
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(b.Area()+o.Area()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

// MarshalJSON encodes the box as [x1, y1, x2, y2].
func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X1, b.Y1, b.X2, b.Y2})
}

// UnmarshalJSON decodes a box from [x1, y1, x2, y2].
func (b *Box) UnmarshalJSON(data []byte) error {
	var arr []int
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("box: %w", err)
	}
	if len(arr) != 4 {
		return fmt.Errorf("box: expected 4 coordinates, got %d", len(arr))
	}
	*b = Box{X1: arr[0], Y1: arr[1], X2: arr[2], Y2: arr[3]}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CropImage returns the sub-image under box, or nil if the box does not
// overlap the image.
func CropImage(img image.Image, box Box) image.Image {
	if img == nil {
		return nil
	}
	rect := box.Rect().Intersect(img.Bounds())
	if rect.Empty() {
		return nil
	}
	return imaging.Crop(img, rect)
}

// DrawBoxes renders plate boxes onto a copy of img.
func DrawBoxes(img image.Image, boxes []Box, col color.Color, thickness int) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := range b.Dy() {
		for x := range b.Dx() {
			dst.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	for _, box := range boxes {
		DrawRect(dst, box.Rect().Sub(b.Min), col, thickness)
	}
	return dst
}

// DrawRect draws an axis-aligned rectangle outline into dst.
func DrawRect(dst *image.RGBA, rect image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	t := min(thickness, rect.Dx(), rect.Dy())
	for i := range t {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dst.Set(x, rect.Min.Y+i, col)
			dst.Set(x, rect.Max.Y-1-i, col)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			dst.Set(rect.Min.X+i, y, col)
			dst.Set(rect.Max.X-1-i, y, col)
		}
	}
}
