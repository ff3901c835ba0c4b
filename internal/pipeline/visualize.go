package pipeline

import (
	"image"
	"image/color"

	"github.com/MeKo-Tech/plategate/internal/utils"
)

// RenderOverlay draws the boxes of emitted plates over a copy of img.
func RenderOverlay(img image.Image, res *Result, boxColor color.Color) *image.RGBA {
	if img == nil {
		return nil
	}
	var boxes []utils.Box
	if res != nil {
		boxes = make([]utils.Box, 0, len(res.Plates))
		for _, pl := range res.Plates {
			boxes = append(boxes, pl.Box)
		}
	}
	return utils.DrawBoxes(img, boxes, boxColor, 2)
}
