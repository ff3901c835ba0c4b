package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/plategate/internal/mempool"
	"github.com/MeKo-Tech/plategate/internal/onnx"
	"github.com/MeKo-Tech/plategate/internal/utils"
)

// Config holds configuration for the ONNX recognition engine.
type Config struct {
	ModelPath        string         // Path to the CTC recognition model
	DictPath         string         // Optional dictionary; empty uses the built-in 0-9A-Z charset
	LibraryPath      string         // Optional onnxruntime shared library path
	ImageHeight      int            // Model input height (default: 48)
	MaxWidth         int            // Width clamp after resizing (default: 320)
	PadWidthMultiple int            // Right-pad width to this multiple (default: 8)
	NumThreads       int            // CPU threads, 0 for auto
	GPU              onnx.GPUConfig // GPU acceleration configuration
}

// DefaultConfig returns the recognizer defaults.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/plate_rec.onnx",
		ImageHeight:      48,
		MaxWidth:         320,
		PadWidthMultiple: 8,
		GPU:              onnx.DefaultGPUConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}
	if c.ImageHeight <= 0 {
		return fmt.Errorf("image height must be positive, got %d", c.ImageHeight)
	}
	if c.MaxWidth < 0 || c.PadWidthMultiple < 0 {
		return errors.New("max width and pad multiple must not be negative")
	}
	return nil
}

type inferencer interface {
	Run(t onnx.Tensor) (onnx.Output, error)
	Close() error
}

// ONNXEngine recognizes a single text line with a CRNN/SVTR style CTC model.
type ONNXEngine struct {
	config   Config
	session  inferencer
	charset  *Charset
	channels int
	mu       sync.RWMutex
}

// NewONNXEngine loads the charset and opens the recognition model.
func NewONNXEngine(cfg Config) (*ONNXEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	charset := DefaultCharset()
	if cfg.DictPath != "" {
		cs, err := LoadCharset(cfg.DictPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load dictionary: %w", err)
		}
		charset = cs
	}

	sess, err := onnx.NewSession(onnx.SessionConfig{
		ModelPath:   cfg.ModelPath,
		LibraryPath: cfg.LibraryPath,
		NumThreads:  cfg.NumThreads,
		GPU:         cfg.GPU,
	})
	if err != nil {
		return nil, fmt.Errorf("recognizer: %w", err)
	}

	channels := 3
	if shape := sess.InputShape(); len(shape) == 4 && shape[1] == 1 {
		channels = 1
	}
	if shape := sess.InputShape(); len(shape) == 4 && shape[2] > 0 {
		cfg.ImageHeight = int(shape[2])
	}

	slog.Debug("Recognizer initialized",
		"model_path", cfg.ModelPath, "charset_size", charset.Size(),
		"image_height", cfg.ImageHeight, "channels", channels)

	return newEngine(cfg, sess, charset, channels), nil
}

func newEngine(cfg Config, sess inferencer, charset *Charset, channels int) *ONNXEngine {
	return &ONNXEngine{config: cfg, session: sess, charset: charset, channels: channels}
}

// Charset returns the engine charset.
func (e *ONNXEngine) Charset() *Charset { return e.charset }

// Recognize treats img as one text line and returns at most one candidate.
func (e *ONNXEngine) Recognize(ctx context.Context, img image.Image, allow string) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	cfg, sess := e.config, e.session
	e.mu.RUnlock()
	if sess == nil {
		return nil, onnx.ErrSessionClosed
	}

	tensor, err := e.preprocess(img, cfg)
	if err != nil {
		return nil, err
	}
	defer mempool.PutFloat32(tensor.Data)
	out, err := sess.Run(tensor)
	if err != nil {
		return nil, err
	}

	classes := e.charset.Classes()
	seqs := DecodeCTCGreedy(out.Data, out.Shape, 0, classesFirst(out.Shape, classes),
		e.charset.AllowMask(allow, outputClasses(out.Shape, classes)))
	if len(seqs) == 0 {
		return nil, fmt.Errorf("unexpected recognition output shape %v", out.Shape)
	}

	seq := seqs[0]
	text := e.charset.Decode(seq.Collapsed)
	if text == "" {
		return nil, nil
	}
	return []Candidate{{Text: text, Confidence: SequenceConfidence(seq.CollapsedProb)}}, nil
}

// outputClasses returns the size of the class axis in an output shape.
func outputClasses(shape []int64, classes int) int {
	dims := squeezeTrailing(shape)
	if len(dims) != 3 {
		return classes
	}
	if classesFirst(shape, classes) {
		return int(dims[1])
	}
	return int(dims[2])
}

// preprocess resizes to the model height and scales pixels to [-1,1].
func (e *ONNXEngine) preprocess(img image.Image, cfg Config) (onnx.Tensor, error) {
	resized, err := utils.ResizeToHeight(img, cfg.ImageHeight, cfg.MaxWidth, cfg.PadWidthMultiple)
	if err != nil {
		return onnx.Tensor{}, err
	}
	data, w, h, err := utils.NormalizeImageInto(resized, mempool.GetFloat32(3*resized.Rect.Dx()*resized.Rect.Dy()))
	if err != nil {
		return onnx.Tensor{}, err
	}
	if e.channels == 1 {
		data = data[:w*h]
	}
	for i, v := range data {
		data[i] = (v - 0.5) / 0.5
	}
	return onnx.NewImageTensor(data, e.channels, h, w)
}

// Close releases the model session.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Close()
	e.session = nil
	return err
}
