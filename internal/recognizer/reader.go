package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"github.com/MeKo-Tech/plategate/internal/plate"
	"github.com/MeKo-Tech/plategate/internal/utils"
)

// Status classifies a read.
type Status string

const (
	StatusOK     Status = "ok"
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
)

// Candidate is one text line proposed by an Engine.
type Candidate struct {
	Text       string
	Confidence float64
}

// Engine recognizes text in a preprocessed crop, restricted to the runes in
// allow.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, allow string) ([]Candidate, error)
}

// ReadResult is the outcome of Reader.Read. Text and Confidence are zero
// unless Status is StatusOK.
type ReadResult struct {
	Text       string
	Confidence float64
	Status     Status
	Err        error
}

// Reader turns plate crops into validated plate text.
type Reader struct {
	engine  Engine
	allow   string
	upscale int
}

// Option configures a Reader.
type Option func(*Reader)

// WithAllowList overrides the recognized alphabet.
func WithAllowList(allow string) Option {
	return func(r *Reader) { r.allow = allow }
}

// WithUpscale overrides the crop magnification factor.
func WithUpscale(factor int) Option {
	return func(r *Reader) { r.upscale = factor }
}

// NewReader returns a Reader backed by engine.
func NewReader(engine Engine, opts ...Option) *Reader {
	r := &Reader{engine: engine, allow: PlateAlphabet, upscale: 2}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read recognizes the plate in crop. It never returns an error or panics;
// engine failures come back as StatusFailed.
func (r *Reader) Read(ctx context.Context, crop image.Image) ReadResult {
	if crop == nil || crop.Bounds().Empty() {
		return ReadResult{Status: StatusEmpty}
	}
	if r.engine == nil {
		return failed(errors.New("no recognition engine"))
	}

	prepared := utils.Upscale(utils.Grayscale(crop), r.upscale)

	cands, err := r.recognize(ctx, prepared)
	if err != nil {
		slog.Error("plate read failed", "error", err)
		return failed(err)
	}
	if len(cands) == 0 {
		return ReadResult{Status: StatusEmpty}
	}

	best := cands[0]
	for _, c := range cands[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}

	text := stripSpace(best.Text)
	v := plate.Check(text)
	if !v.Valid {
		slog.Warn("rejected invalid license plate format",
			"text", text, "confidence", best.Confidence, "reason", v.Reason)
		return ReadResult{Status: StatusEmpty}
	}
	return ReadResult{Text: v.Text, Confidence: best.Confidence, Status: StatusOK}
}

func (r *Reader) recognize(ctx context.Context, img image.Image) (cands []Candidate, err error) {
	defer func() {
		if p := recover(); p != nil {
			cands, err = nil, fmt.Errorf("recognition engine panic: %v", p)
		}
	}()
	return r.engine.Recognize(ctx, img, r.allow)
}

// Close releases the engine when it holds resources.
func (r *Reader) Close() error {
	if c, ok := r.engine.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func failed(err error) ReadResult {
	return ReadResult{Status: StatusFailed, Err: err}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
