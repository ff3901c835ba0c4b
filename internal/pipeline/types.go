package pipeline

import (
	"context"
	"image"

	"github.com/MeKo-Tech/plategate/internal/detector"
	"github.com/MeKo-Tech/plategate/internal/plate"
	"github.com/MeKo-Tech/plategate/internal/recognizer"
	"github.com/MeKo-Tech/plategate/internal/utils"
)

// MinReadConfidence is the exclusive lower bound a read must exceed to be
// emitted.
const MinReadConfidence = 0.5

// Detector proposes plate regions.
type Detector interface {
	Detect(ctx context.Context, img image.Image) detector.Result
}

// Reader reads plate text from a crop.
type Reader interface {
	Read(ctx context.Context, crop image.Image) recognizer.ReadResult
}

// Notifier delivers an accepted plate downstream and reports success.
type Notifier interface {
	Notify(ctx context.Context, ev plate.Event) bool
}

// Sink receives every emitted plate event. Errors are logged, never
// propagated.
type Sink interface {
	Publish(ctx context.Context, ev plate.Event) error
}

// Plate is one validated plate read.
type Plate struct {
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Box        utils.Box       `json:"bbox"`
	Direction  plate.Direction `json:"direction"`
	Delivered  bool            `json:"sent_to_service"`
}

// Result is the outcome of processing one image.
type Result struct {
	Detected  bool            `json:"detected"`
	Plates    []Plate         `json:"plates"`
	Direction plate.Direction `json:"direction"`
}
