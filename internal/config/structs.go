//nolint:lll
package config

import (
	"github.com/MeKo-Tech/plategate/internal/camera"
	"github.com/MeKo-Tech/plategate/internal/notify"
	"github.com/MeKo-Tech/plategate/internal/onnx"
	"github.com/MeKo-Tech/plategate/internal/server"
)

// Config represents the complete configuration for plategate. It is loaded
// from a configuration file, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Pipeline PipelineConfig       `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Server   server.Config        `mapstructure:"server" yaml:"server" json:"server"`
	Camera   camera.Config        `mapstructure:"camera" yaml:"camera" json:"camera"`
	Webhook  notify.WebhookConfig `mapstructure:"webhook" yaml:"webhook" json:"webhook"`
	MQTT     notify.MQTTConfig    `mapstructure:"mqtt" yaml:"mqtt" json:"mqtt"`
	Store    StoreConfig          `mapstructure:"store" yaml:"store" json:"store"`
}

// PipelineConfig contains plate pipeline settings.
type PipelineConfig struct {
	DefaultDirection string `mapstructure:"default_direction" yaml:"default_direction" json:"default_direction"`
	ParkingID        int64  `mapstructure:"parking_id" yaml:"parking_id" json:"parking_id"`
	CameraID         int64  `mapstructure:"camera_id" yaml:"camera_id" json:"camera_id"`
	WarmupIterations int    `mapstructure:"warmup_iterations" yaml:"warmup_iterations" json:"warmup_iterations"`
	Workers          int    `mapstructure:"workers" yaml:"workers" json:"workers"`

	// Optional onnxruntime shared library path
	LibraryPath string `mapstructure:"library_path" yaml:"library_path" json:"library_path"`

	Detector   DetectorConfig   `mapstructure:"detector" yaml:"detector" json:"detector"`
	Recognizer RecognizerConfig `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`
	GPU        onnx.GPUConfig   `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// DetectorConfig contains plate region detection settings.
type DetectorConfig struct {
	ModelPath           string  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	InputSize           int     `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold" json:"confidence_threshold"`
	NMSThreshold        float64 `mapstructure:"nms_threshold" yaml:"nms_threshold" json:"nms_threshold"`
	NumThreads          int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// RecognizerConfig contains plate text recognition settings.
type RecognizerConfig struct {
	ModelPath        string `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	DictPath         string `mapstructure:"dict_path" yaml:"dict_path" json:"dict_path"`
	ImageHeight      int    `mapstructure:"image_height" yaml:"image_height" json:"image_height"`
	MaxWidth         int    `mapstructure:"max_width" yaml:"max_width" json:"max_width"`
	PadWidthMultiple int    `mapstructure:"pad_width_multiple" yaml:"pad_width_multiple" json:"pad_width_multiple"`
	NumThreads       int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// StoreConfig contains plate log settings. An empty path disables the log.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}
