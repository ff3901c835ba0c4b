package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

// ErrSessionClosed is returned by Run after Close.
var ErrSessionClosed = errors.New("onnx session closed")

// SessionConfig describes a single-input, single-output model session.
type SessionConfig struct {
	ModelPath   string
	LibraryPath string // optional explicit onnxruntime shared library
	NumThreads  int    // 0 lets onnxruntime decide
	GPU         GPUConfig
}

// Session wraps a DynamicAdvancedSession with its I/O metadata.
type Session struct {
	session *onnxruntime_go.DynamicAdvancedSession
	input   onnxruntime_go.InputOutputInfo
	output  onnxruntime_go.InputOutputInfo
	mu      sync.RWMutex
}

// Output is a copied float32 model output.
type Output struct {
	Data  []float32
	Shape []int64
}

// NewSession initializes the runtime if needed and opens the model.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path cannot be empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}
	if err := ValidateGPUConfig(cfg.GPU); err != nil {
		return nil, fmt.Errorf("invalid GPU config: %w", err)
	}
	if err := InitEnvironment(cfg.LibraryPath, cfg.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(outputs) < 1 {
		return nil, errors.New("model has no outputs")
	}

	opts, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()

	if err := ConfigureSessionForGPU(opts, cfg.GPU); err != nil {
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	sess, err := onnxruntime_go.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Debug("onnx session ready",
		"model", cfg.ModelPath,
		"input", inputs[0].Name, "input_shape", inputs[0].Dimensions,
		"output", outputs[0].Name, "output_shape", outputs[0].Dimensions)

	return &Session{session: sess, input: inputs[0], output: outputs[0]}, nil
}

// InputShape returns the declared input dimensions. Dynamic axes are -1.
func (s *Session) InputShape() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64(nil), s.input.Dimensions...)
}

// Run feeds t through the model and returns a copy of the first output.
func (s *Session) Run(t Tensor) (Output, error) {
	if err := t.Verify(); err != nil {
		return Output{}, fmt.Errorf("invalid tensor: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return Output{}, ErrSessionClosed
	}

	in, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(t.Shape...), t.Data)
	if err != nil {
		return Output{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := in.Destroy(); err != nil {
			slog.Warn("failed to destroy input tensor", "error", err)
		}
	}()

	outputs := []onnxruntime_go.Value{nil}
	if err := s.session.Run([]onnxruntime_go.Value{in}, outputs); err != nil {
		return Output{}, fmt.Errorf("inference failed: %w", err)
	}
	if outputs[0] == nil {
		return Output{}, errors.New("inference produced no output")
	}
	defer func() {
		if err := outputs[0].Destroy(); err != nil {
			slog.Warn("failed to destroy output tensor", "error", err)
		}
	}()

	ft, ok := outputs[0].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return Output{}, errors.New("output tensor is not float32")
	}
	shape := ft.GetShape()
	return Output{
		Data:  append([]float32(nil), ft.GetData()...),
		Shape: append([]int64(nil), shape...),
	}, nil
}

// Close destroys the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	if err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}
