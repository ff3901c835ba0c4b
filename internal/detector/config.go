package detector

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/plategate/internal/onnx"
)

// Config holds configuration for the plate detector.
type Config struct {
	ModelPath           string         // Path to the YOLO ONNX plate model
	LibraryPath         string         // Optional onnxruntime shared library path
	InputSize           int            // Square model input side (default: 640)
	ConfidenceThreshold float64        // Minimum box score (default: 0.4)
	NMSThreshold        float64        // IoU above which overlapping boxes are suppressed (default: 0.45)
	NumThreads          int            // CPU threads, 0 for auto
	GPU                 onnx.GPUConfig // GPU acceleration configuration
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		ModelPath:           "/app/CNNOCR/best.onnx",
		InputSize:           640,
		ConfidenceThreshold: 0.4,
		NMSThreshold:        0.45,
		GPU:                 onnx.DefaultGPUConfig(),
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}
	if c.InputSize <= 0 || c.InputSize%32 != 0 {
		return fmt.Errorf("input size must be a positive multiple of 32, got %d", c.InputSize)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %v", c.ConfidenceThreshold)
	}
	if c.NMSThreshold <= 0 || c.NMSThreshold > 1 {
		return fmt.Errorf("nms threshold must be in (0,1], got %v", c.NMSThreshold)
	}
	return nil
}
