package config

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/MeKo-Tech/plategate/internal/camera"
	"github.com/MeKo-Tech/plategate/internal/detector"
	"github.com/MeKo-Tech/plategate/internal/notify"
	"github.com/MeKo-Tech/plategate/internal/onnx"
	"github.com/MeKo-Tech/plategate/internal/pipeline"
	"github.com/MeKo-Tech/plategate/internal/plate"
	"github.com/MeKo-Tech/plategate/internal/recognizer"
	"github.com/MeKo-Tech/plategate/internal/server"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	det := detector.DefaultConfig()
	rec := recognizer.DefaultConfig()
	return Config{
		LogLevel: "info",
		Pipeline: PipelineConfig{
			DefaultDirection: string(plate.Entry),
			ParkingID:        1,
			CameraID:         1,
			Workers:          runtime.NumCPU(),
			Detector: DetectorConfig{
				ModelPath:           det.ModelPath,
				InputSize:           det.InputSize,
				ConfidenceThreshold: det.ConfidenceThreshold,
				NMSThreshold:        det.NMSThreshold,
				NumThreads:          det.NumThreads,
			},
			Recognizer: RecognizerConfig{
				ModelPath:        rec.ModelPath,
				DictPath:         rec.DictPath,
				ImageHeight:      rec.ImageHeight,
				MaxWidth:         rec.MaxWidth,
				PadWidthMultiple: rec.PadWidthMultiple,
				NumThreads:       rec.NumThreads,
			},
			GPU: onnx.DefaultGPUConfig(),
		},
		Server:  server.DefaultConfig(),
		Camera:  camera.DefaultConfig(),
		Webhook: notify.DefaultWebhookConfig(),
		MQTT:    notify.DefaultMQTTConfig(),
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if _, err := plate.ParseDirection(c.Pipeline.DefaultDirection); err != nil {
		return fmt.Errorf("invalid pipeline.default_direction: %w", err)
	}
	if err := validateThreshold(c.Pipeline.Detector.ConfidenceThreshold, "pipeline.detector.confidence_threshold"); err != nil {
		return err
	}
	if err := validateThreshold(c.Pipeline.Detector.NMSThreshold, "pipeline.detector.nms_threshold"); err != nil {
		return err
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("invalid pipeline workers: %d (must not be negative)", c.Pipeline.Workers)
	}
	if err := onnx.ValidateGPUConfig(c.Pipeline.GPU); err != nil {
		return fmt.Errorf("invalid pipeline.gpu: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.RequestsPerMinute < 0 {
		return fmt.Errorf("invalid requests per minute: %d (must not be negative)", c.Server.RequestsPerMinute)
	}

	if c.Webhook.Timeout < 0 {
		return errors.New("invalid webhook timeout: must not be negative")
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("invalid mqtt config: %w", err)
	}
	return nil
}

// ToPipelineConfig converts the config to the pipeline configuration.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()

	det := cfg.Detector
	det.LibraryPath = c.Pipeline.LibraryPath
	det.InputSize = c.Pipeline.Detector.InputSize
	det.ConfidenceThreshold = c.Pipeline.Detector.ConfidenceThreshold
	det.NMSThreshold = c.Pipeline.Detector.NMSThreshold
	det.NumThreads = c.Pipeline.Detector.NumThreads
	det.GPU = c.Pipeline.GPU
	if c.Pipeline.Detector.ModelPath != "" {
		det.ModelPath = c.Pipeline.Detector.ModelPath
	}
	cfg.Detector = det

	rec := cfg.Recognizer
	rec.LibraryPath = c.Pipeline.LibraryPath
	rec.DictPath = c.Pipeline.Recognizer.DictPath
	rec.ImageHeight = c.Pipeline.Recognizer.ImageHeight
	rec.MaxWidth = c.Pipeline.Recognizer.MaxWidth
	rec.PadWidthMultiple = c.Pipeline.Recognizer.PadWidthMultiple
	rec.NumThreads = c.Pipeline.Recognizer.NumThreads
	rec.GPU = c.Pipeline.GPU
	if c.Pipeline.Recognizer.ModelPath != "" {
		rec.ModelPath = c.Pipeline.Recognizer.ModelPath
	}
	cfg.Recognizer = rec

	cfg.Webhook = c.Webhook
	if dir, err := plate.ParseDirection(c.Pipeline.DefaultDirection); err == nil {
		cfg.DefaultDirection = dir
	}
	cfg.ParkingID = c.Pipeline.ParkingID
	cfg.CameraID = c.Pipeline.CameraID
	cfg.WarmupIterations = c.Pipeline.WarmupIterations
	return cfg
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}
