package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/plategate/internal/mempool"
	"github.com/MeKo-Tech/plategate/internal/onnx"
	"github.com/MeKo-Tech/plategate/internal/utils"
)

// Status classifies a detection call.
type Status string

const (
	StatusOK     Status = "ok"
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
)

// Candidate is one detected plate region in original image pixels.
type Candidate struct {
	Box        utils.Box `json:"bbox"`
	Confidence float64   `json:"confidence"`
}

// Result is the outcome of a Detect call. Failed results carry Err and no
// candidates.
type Result struct {
	Candidates []Candidate
	Status     Status
	Err        error
	Duration   time.Duration
}

// inferencer runs one preprocessed tensor through a model.
type inferencer interface {
	Run(t onnx.Tensor) (onnx.Output, error)
	Close() error
}

// Detector finds license plate regions with a YOLO ONNX model.
type Detector struct {
	config  Config
	session inferencer
	mu      sync.RWMutex
}

// New opens the model and returns a ready detector.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("Initializing detector",
		"model_path", cfg.ModelPath,
		"gpu_enabled", cfg.GPU.UseGPU,
		"input_size", cfg.InputSize,
		"conf_threshold", cfg.ConfidenceThreshold,
		"nms_threshold", cfg.NMSThreshold)

	sess, err := onnx.NewSession(onnx.SessionConfig{
		ModelPath:   cfg.ModelPath,
		LibraryPath: cfg.LibraryPath,
		NumThreads:  cfg.NumThreads,
		GPU:         cfg.GPU,
	})
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}
	return newWithSession(cfg, sess), nil
}

func newWithSession(cfg Config, sess inferencer) *Detector {
	return &Detector{config: cfg, session: sess}
}

// Config returns a copy of the detector configuration.
func (d *Detector) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Detect returns plate candidates sorted by confidence, descending. It never
// returns an error; failures are reported through Result.Status.
func (d *Detector) Detect(ctx context.Context, img image.Image) Result {
	start := time.Now()
	cands, err := d.detect(ctx, img)
	res := Result{Duration: time.Since(start)}
	switch {
	case err != nil:
		slog.Error("plate detection failed", "error", err)
		res.Status, res.Err = StatusFailed, err
	case len(cands) == 0:
		res.Status = StatusEmpty
	default:
		res.Status, res.Candidates = StatusOK, cands
	}
	slog.Debug("plate detection finished",
		"status", res.Status, "candidates", len(res.Candidates), "duration_ms", res.Duration.Milliseconds())
	return res
}

func (d *Detector) detect(ctx context.Context, img image.Image) (cands []Candidate, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, errors.New("nil image")
	}
	defer func() {
		if r := recover(); r != nil {
			cands, err = nil, fmt.Errorf("detector panic: %v", r)
		}
	}()

	d.mu.RLock()
	cfg, sess := d.config, d.session
	d.mu.RUnlock()
	if sess == nil {
		return nil, onnx.ErrSessionClosed
	}

	tensor, lb, err := preprocess(img, cfg.InputSize)
	if err != nil {
		return nil, err
	}
	defer mempool.PutFloat32(tensor.Data)
	out, err := sess.Run(tensor)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return postprocess(out, lb, img.Bounds(), cfg.ConfidenceThreshold, cfg.NMSThreshold)
}

// preprocess letterboxes img into the square model input.
func preprocess(img image.Image, size int) (onnx.Tensor, utils.Letterbox, error) {
	boxed, lb, err := utils.LetterboxImage(img, size)
	if err != nil {
		return onnx.Tensor{}, utils.Letterbox{}, fmt.Errorf("failed to letterbox image: %w", err)
	}
	buf := mempool.GetFloat32(3 * size * size)
	data, w, h, err := utils.NormalizeImageInto(boxed, buf)
	if err != nil {
		mempool.PutFloat32(buf)
		return onnx.Tensor{}, utils.Letterbox{}, fmt.Errorf("failed to normalize image: %w", err)
	}
	tensor, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		mempool.PutFloat32(buf)
		return onnx.Tensor{}, utils.Letterbox{}, fmt.Errorf("failed to create tensor: %w", err)
	}
	return tensor, lb, nil
}

// Warmup runs blank frames through the model to reduce first-call latency.
func (d *Detector) Warmup(iterations int) error {
	if iterations <= 0 {
		return nil
	}
	d.mu.RLock()
	size, sess := d.config.InputSize, d.session
	d.mu.RUnlock()
	if sess == nil {
		return onnx.ErrSessionClosed
	}

	buf := mempool.GetFloat32(3 * size * size)
	defer mempool.PutFloat32(buf)
	clear(buf)
	tensor, err := onnx.NewImageTensor(buf, 3, size, size)
	if err != nil {
		return err
	}
	for i := range iterations {
		if _, err := sess.Run(tensor); err != nil {
			return fmt.Errorf("warmup iteration %d failed: %w", i, err)
		}
	}
	return nil
}

// Close releases the model session.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	return err
}
