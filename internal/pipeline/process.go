package pipeline

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/plategate/internal/detector"
	"github.com/MeKo-Tech/plategate/internal/plate"
	"github.com/MeKo-Tech/plategate/internal/recognizer"
	"github.com/MeKo-Tech/plategate/internal/utils"
)

func newEventID() string { return uuid.NewString() }

// Process detects, reads, validates and delivers every plate in img.
// requestedDirection may be empty; an unknown value falls back to the
// configured default. Plates are emitted in detector order and never
// deduplicated.
func (p *Pipeline) Process(ctx context.Context, img image.Image, requestedDirection string) Result {
	start := time.Now()
	defer func() { processingDuration.Observe(time.Since(start).Seconds()) }()

	direction, rejected := plate.ResolveDirection(requestedDirection, p.cfg.DefaultDirection)
	if rejected {
		slog.Warn("invalid direction, using default", "direction", requestedDirection, "default", direction)
	}
	res := Result{Plates: []Plate{}, Direction: direction}
	if img == nil || !p.Ready() {
		return res
	}

	det := p.detector.Detect(ctx, img)
	detectionsTotal.WithLabelValues(string(det.Status)).Inc()
	regionsDetected.Observe(float64(len(det.Candidates)))
	if det.Status != detector.StatusOK {
		slog.Info("no license plate detected in image", "status", det.Status)
		return res
	}

	bounds := img.Bounds()
	for i, cand := range det.Candidates {
		if ctx.Err() != nil {
			break
		}
		pl, ok := p.processCandidate(ctx, img, bounds, i, cand, direction)
		if ok {
			res.Plates = append(res.Plates, pl)
		}
	}
	res.Detected = len(res.Plates) > 0
	return res
}

func (p *Pipeline) processCandidate(ctx context.Context, img image.Image, bounds image.Rectangle,
	idx int, cand detector.Candidate, direction plate.Direction,
) (Plate, bool) {
	box := cand.Box.Clip(bounds)
	if box.Area() == 0 {
		readsTotal.WithLabelValues("skipped").Inc()
		slog.Debug("skipping empty region", "index", idx, "bbox", cand.Box)
		return Plate{}, false
	}

	read := p.reader.Read(ctx, utils.CropImage(img, box))
	switch {
	case read.Status == recognizer.StatusFailed:
		readsTotal.WithLabelValues(string(read.Status)).Inc()
		slog.Warn("plate read failed", "index", idx, "error", read.Err)
		return Plate{}, false
	case read.Status != recognizer.StatusOK || read.Text == "":
		readsTotal.WithLabelValues(string(recognizer.StatusEmpty)).Inc()
		return Plate{}, false
	case read.Confidence <= MinReadConfidence:
		readsTotal.WithLabelValues("low_confidence").Inc()
		slog.Debug("plate read below confidence threshold", "plate", read.Text, "confidence", read.Confidence)
		return Plate{}, false
	}

	v := plate.Check(read.Text)
	if !v.Valid {
		readsTotal.WithLabelValues("rejected").Inc()
		slog.Warn("rejected invalid plate format", "plate", read.Text,
			"confidence", read.Confidence, "reason", v.Reason)
		return Plate{}, false
	}
	readsTotal.WithLabelValues(string(recognizer.StatusOK)).Inc()
	slog.Info("detected valid plate", "plate", v.Text, "confidence", read.Confidence)

	ev := plate.Event{
		ID:         p.newID(),
		Plate:      v.Text,
		Confidence: read.Confidence,
		Box:        box,
		Direction:  direction,
		ParkingID:  p.cfg.ParkingID,
		CameraID:   p.cfg.CameraID,
		Timestamp:  p.now(),
	}
	ev.Delivered = p.notifier.Notify(ctx, ev)
	if ev.Delivered {
		deliveriesTotal.WithLabelValues("delivered").Inc()
	} else {
		deliveriesTotal.WithLabelValues("failed").Inc()
	}
	platesEmitted.WithLabelValues(string(direction)).Inc()

	p.publish(ctx, ev)

	return Plate{
		Text:       ev.Plate,
		Confidence: ev.Confidence,
		Box:        box,
		Direction:  direction,
		Delivered:  ev.Delivered,
	}, true
}

func (p *Pipeline) publish(ctx context.Context, ev plate.Event) {
	for _, s := range p.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			sinkErrorsTotal.Inc()
			slog.Warn("failed to publish plate event", "sink", sinkName(s), "plate", ev.Plate, "error", err)
		}
	}
}

func sinkName(s Sink) string {
	if n, ok := s.(interface{ String() string }); ok {
		return n.String()
	}
	return "sink"
}
