package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/plategate/internal/detector"
	"github.com/MeKo-Tech/plategate/internal/notify"
	"github.com/MeKo-Tech/plategate/internal/plate"
	"github.com/MeKo-Tech/plategate/internal/recognizer"
)

// Config holds configuration for the plate pipeline and its components.
type Config struct {
	Detector         detector.Config
	Recognizer       recognizer.Config
	Webhook          notify.WebhookConfig
	DefaultDirection plate.Direction
	ParkingID        int64
	CameraID         int64
	WarmupIterations int // optional warmup runs to reduce first-request latency
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		Detector:         detector.DefaultConfig(),
		Recognizer:       recognizer.DefaultConfig(),
		Webhook:          notify.DefaultWebhookConfig(),
		DefaultDirection: plate.Entry,
		ParkingID:        1,
		CameraID:         1,
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg   Config
	sinks []Sink
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithDetectorModelPath sets the plate detector model path.
func (b *Builder) WithDetectorModelPath(path string) *Builder {
	if path != "" {
		b.cfg.Detector.ModelPath = path
	}
	return b
}

// WithRecognizerModelPath sets the text recognition model path.
func (b *Builder) WithRecognizerModelPath(path string) *Builder {
	if path != "" {
		b.cfg.Recognizer.ModelPath = path
	}
	return b
}

// WithDictionaryPath sets the recognizer dictionary. Empty keeps the built-in charset.
func (b *Builder) WithDictionaryPath(path string) *Builder {
	b.cfg.Recognizer.DictPath = path
	return b
}

// WithLibraryPath sets the onnxruntime shared library for both models.
func (b *Builder) WithLibraryPath(path string) *Builder {
	b.cfg.Detector.LibraryPath = path
	b.cfg.Recognizer.LibraryPath = path
	return b
}

// WithDetectorThresholds sets the detector confidence and NMS IoU thresholds.
func (b *Builder) WithDetectorThresholds(conf, nms float64) *Builder {
	if conf > 0 {
		b.cfg.Detector.ConfidenceThreshold = conf
	}
	if nms > 0 {
		b.cfg.Detector.NMSThreshold = nms
	}
	return b
}

// WithThreads sets the intra-op thread count for both sessions.
func (b *Builder) WithThreads(n int) *Builder {
	if n > 0 {
		b.cfg.Detector.NumThreads = n
		b.cfg.Recognizer.NumThreads = n
	}
	return b
}

// WithGPU toggles CUDA execution for both models.
func (b *Builder) WithGPU(enabled bool) *Builder {
	b.cfg.Detector.GPU.UseGPU = enabled
	b.cfg.Recognizer.GPU.UseGPU = enabled
	return b
}

// WithWebhook sets the downstream webhook. An empty base URL disables delivery.
func (b *Builder) WithWebhook(cfg notify.WebhookConfig) *Builder {
	b.cfg.Webhook = cfg
	return b
}

// WithLocation sets the parking and camera identifiers sent with each plate.
func (b *Builder) WithLocation(parkingID, cameraID int64) *Builder {
	b.cfg.ParkingID = parkingID
	b.cfg.CameraID = cameraID
	return b
}

// WithDefaultDirection sets the direction used when a request names none.
func (b *Builder) WithDefaultDirection(d plate.Direction) *Builder {
	b.cfg.DefaultDirection = d
	return b
}

// WithWarmupIterations sets detector warmup runs performed by Build.
func (b *Builder) WithWarmupIterations(n int) *Builder {
	if n >= 0 {
		b.cfg.WarmupIterations = n
	}
	return b
}

// WithSinks appends event sinks.
func (b *Builder) WithSinks(sinks ...Sink) *Builder {
	for _, s := range sinks {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks that model files exist and configuration looks sane.
func (b *Builder) Validate() error {
	if err := b.cfg.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := b.cfg.Recognizer.Validate(); err != nil {
		return fmt.Errorf("recognizer: %w", err)
	}
	if _, err := plate.ParseDirection(string(b.cfg.DefaultDirection)); err != nil {
		return fmt.Errorf("default direction: %w", err)
	}
	if _, err := os.Stat(b.cfg.Detector.ModelPath); err != nil {
		return fmt.Errorf("detector model not found: %s", b.cfg.Detector.ModelPath)
	}
	if _, err := os.Stat(b.cfg.Recognizer.ModelPath); err != nil {
		return fmt.Errorf("recognizer model not found: %s", b.cfg.Recognizer.ModelPath)
	}
	if p := b.cfg.Recognizer.DictPath; p != "" {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("dictionary not found: %s", p)
		}
	}
	return nil
}

// Build loads both models and wires the notifier and sinks.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	det, err := detector.New(b.cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("init detector: %w", err)
	}
	engine, err := recognizer.NewONNXEngine(b.cfg.Recognizer)
	if err != nil {
		_ = det.Close()
		return nil, fmt.Errorf("init recognizer: %w", err)
	}

	var notifier Notifier = notify.Discard{}
	if b.cfg.Webhook.BaseURL != "" {
		notifier = notify.NewWebhook(b.cfg.Webhook, nil)
	}

	p := New(det, recognizer.NewReader(engine), notifier,
		WithSinks(b.sinks...),
		WithDefaultDirection(b.cfg.DefaultDirection),
		WithLocation(b.cfg.ParkingID, b.cfg.CameraID),
	)
	p.cfg = b.cfg

	if b.cfg.WarmupIterations > 0 {
		if err := det.Warmup(b.cfg.WarmupIterations); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("detector warmup failed: %w", err)
		}
	}
	return p, nil
}

// Pipeline turns an image into validated, delivered plate reads.
type Pipeline struct {
	cfg      Config
	detector Detector
	reader   Reader
	notifier Notifier
	sinks    []Sink
	now      func() time.Time
	newID    func() string
}

// Option configures a Pipeline built with New.
type Option func(*Pipeline)

// WithSinks adds event sinks.
func WithSinks(sinks ...Sink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithDefaultDirection sets the fallback direction.
func WithDefaultDirection(d plate.Direction) Option {
	return func(p *Pipeline) { p.cfg.DefaultDirection = d }
}

// WithLocation sets the parking and camera identifiers.
func WithLocation(parkingID, cameraID int64) Option {
	return func(p *Pipeline) { p.cfg.ParkingID, p.cfg.CameraID = parkingID, cameraID }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New wires an already constructed detector, reader and notifier. A nil
// notifier discards deliveries.
func New(det Detector, rdr Reader, n Notifier, opts ...Option) *Pipeline {
	if n == nil {
		n = notify.Discard{}
	}
	p := &Pipeline{
		cfg:      DefaultConfig(),
		detector: det,
		reader:   rdr,
		notifier: n,
		now:      time.Now,
		newID:    newEventID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Ready reports whether both models are wired.
func (p *Pipeline) Ready() bool { return p != nil && p.detector != nil && p.reader != nil }

// Close releases the detector and reader when they hold resources.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range []any{p.reader, p.detector} {
		if closer, ok := c.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	p.detector, p.reader = nil, nil
	return errors.Join(errs...)
}

// Info returns key pipeline properties.
func (p *Pipeline) Info() map[string]any {
	return map[string]any{
		"detector_model":       p.cfg.Detector.ModelPath,
		"detector_input_size":  p.cfg.Detector.InputSize,
		"confidence_threshold": p.cfg.Detector.ConfidenceThreshold,
		"nms_threshold":        p.cfg.Detector.NMSThreshold,
		"recognizer_model":     p.cfg.Recognizer.ModelPath,
		"default_direction":    p.cfg.DefaultDirection,
		"parking_id":           p.cfg.ParkingID,
		"camera_id":            p.cfg.CameraID,
		"notifier":             fmt.Sprint(p.notifier),
		"sinks":                len(p.sinks),
	}
}
