package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/MeKo-Tech/plategate/internal/detector"
	"github.com/MeKo-Tech/plategate/internal/plate"
	"github.com/MeKo-Tech/plategate/internal/recognizer"
	"github.com/MeKo-Tech/plategate/internal/utils"
)

type fakeDetector struct {
	result detector.Result
	closed bool
}

func detectBoxes(boxes ...utils.Box) *fakeDetector {
	res := detector.Result{Status: detector.StatusOK}
	for _, b := range boxes {
		res.Candidates = append(res.Candidates, detector.Candidate{Box: b, Confidence: 0.9})
	}
	if len(boxes) == 0 {
		res.Status = detector.StatusEmpty
	}
	return &fakeDetector{result: res}
}

func (f *fakeDetector) Detect(context.Context, image.Image) detector.Result { return f.result }

func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

type fakeReader struct {
	mu      sync.Mutex
	results []recognizer.ReadResult
	crops   []image.Rectangle
}

func readsAs(results ...recognizer.ReadResult) *fakeReader {
	return &fakeReader{results: results}
}

func okRead(text string, conf float64) recognizer.ReadResult {
	return recognizer.ReadResult{Text: text, Confidence: conf, Status: recognizer.StatusOK}
}

// Read returns the queued results in order, repeating the last one.
func (f *fakeReader) Read(_ context.Context, crop image.Image) recognizer.ReadResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crops = append(f.crops, crop.Bounds())
	i := min(len(f.crops)-1, len(f.results)-1)
	if i < 0 {
		return recognizer.ReadResult{Status: recognizer.StatusEmpty}
	}
	return f.results[i]
}

func (f *fakeReader) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.crops)
}

type fakeNotifier struct {
	mu     sync.Mutex
	accept bool
	events []plate.Event
}

func (f *fakeNotifier) Notify(_ context.Context, ev plate.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.accept
}

type fakeSink struct {
	fail   bool
	events []plate.Event
}

func (f *fakeSink) Publish(_ context.Context, ev plate.Event) error {
	f.events = append(f.events, ev)
	if f.fail {
		return errors.New("broker unreachable")
	}
	return nil
}

func blankImage(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}
