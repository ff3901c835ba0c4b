package detector

import (
	"fmt"
	"image"

	"github.com/MeKo-Tech/plategate/internal/onnx"
	"github.com/MeKo-Tech/plategate/internal/utils"
)

// rawBox is a center-format box in model input pixels.
type rawBox struct {
	cx, cy, w, h float64
	score        float64
}

// decodeOutput reads YOLO predictions from either the v8 layout
// [1, 4+C, N] (channels first, no objectness) or the v5 layout
// [1, N, 5+C] (rows with objectness).
func decodeOutput(out onnx.Output) ([]rawBox, error) {
	shape := out.Shape
	if len(shape) == 3 {
		if shape[0] != 1 {
			return nil, fmt.Errorf("unsupported batch size %d", shape[0])
		}
		shape = shape[1:]
	}
	if len(shape) != 2 || shape[0] <= 0 || shape[1] <= 0 {
		return nil, fmt.Errorf("unsupported output shape %v", out.Shape)
	}
	a, b := int(shape[0]), int(shape[1])
	if len(out.Data) != a*b {
		return nil, fmt.Errorf("output data length %d does not match shape %v", len(out.Data), out.Shape)
	}

	if a < b {
		return decodeChannelsFirst(out.Data, a, b)
	}
	return decodeRows(out.Data, a, b)
}

func decodeChannelsFirst(data []float32, channels, n int) ([]rawBox, error) {
	if channels < 5 {
		return nil, fmt.Errorf("expected at least 5 channels, got %d", channels)
	}
	at := func(c, i int) float64 { return float64(data[c*n+i]) }
	boxes := make([]rawBox, 0, n)
	for i := range n {
		score := at(4, i)
		for c := 5; c < channels; c++ {
			score = max(score, at(c, i))
		}
		boxes = append(boxes, rawBox{cx: at(0, i), cy: at(1, i), w: at(2, i), h: at(3, i), score: score})
	}
	return boxes, nil
}

func decodeRows(data []float32, n, cols int) ([]rawBox, error) {
	if cols < 5 {
		return nil, fmt.Errorf("expected at least 5 columns, got %d", cols)
	}
	boxes := make([]rawBox, 0, n)
	for i := range n {
		row := data[i*cols : (i+1)*cols]
		score := float64(row[4])
		if cols > 5 {
			best := float64(row[5])
			for _, v := range row[6:] {
				best = max(best, float64(v))
			}
			score *= best
		}
		boxes = append(boxes, rawBox{
			cx: float64(row[0]), cy: float64(row[1]), w: float64(row[2]), h: float64(row[3]), score: score,
		})
	}
	return boxes, nil
}

// postprocess thresholds, maps back to original pixels, clips and runs NMS.
func postprocess(out onnx.Output, lb utils.Letterbox, bounds image.Rectangle,
	confThreshold, nmsThreshold float64,
) ([]Candidate, error) {
	raw, err := decodeOutput(out)
	if err != nil {
		return nil, err
	}

	cands := make([]Candidate, 0, len(raw))
	for _, r := range raw {
		if r.score < confThreshold {
			continue
		}
		x1, y1 := lb.ToOriginal(r.cx-r.w/2, r.cy-r.h/2)
		x2, y2 := lb.ToOriginal(r.cx+r.w/2, r.cy+r.h/2)
		box := utils.BoxFromFloat(x1, y1, x2, y2).Clip(bounds)
		if box.Empty() {
			continue
		}
		cands = append(cands, Candidate{Box: box, Confidence: min(r.score, 1)})
	}
	return NonMaxSuppression(cands, nmsThreshold), nil
}
