package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/plategate/internal/detector"
	"github.com/MeKo-Tech/plategate/internal/pipeline"
	"github.com/MeKo-Tech/plategate/internal/recognizer"
	"github.com/MeKo-Tech/plategate/internal/utils"
)

var legacyVars = []string{
	"OCR_SERVICE_URL", "PARKING_ID", "CAMERA_ID", "DIRECTION", "MODEL_PATH",
	"USE_GPU", "PORT", "CAMERA_URL", "CAMERA_LOCAL_PATH",
}

// isolate runs the test in an empty directory without config files or
// recognised environment variables.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	for _, name := range legacyVars {
		t.Setenv(name, "")
		_ = os.Unsetenv(name)
	}
	return dir
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfgFile = ""
	globalConfig = nil

	prevLog := logOutput
	logOutput = io.Discard
	t.Cleanup(func() { logOutput = prevLog })

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// resetFlags restores every flag of cmd and its children to its default so
// that values do not leak between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

type stubDetector struct{ box utils.Box }

func (d stubDetector) Detect(context.Context, image.Image) detector.Result {
	return detector.Result{
		Status:     detector.StatusOK,
		Candidates: []detector.Candidate{{Box: d.box, Confidence: 0.9}},
	}
}

type stubReader struct{ text string }

func (r stubReader) Read(context.Context, image.Image) recognizer.ReadResult {
	return recognizer.ReadResult{Text: r.text, Confidence: 0.9, Status: recognizer.StatusOK}
}

// pipelineStub records the configs passed to buildPipeline.
type pipelineStub struct {
	mu      sync.Mutex
	configs []pipeline.Config
}

func (s *pipelineStub) last() pipeline.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs[len(s.configs)-1]
}

// stubPipeline replaces model loading with a pipeline that reads AB123CD in
// the box (10,10)-(110,60) of every image.
func stubPipeline(t *testing.T) *pipelineStub {
	t.Helper()
	stub := &pipelineStub{}
	prev := buildPipeline
	buildPipeline = func(cfg pipeline.Config, sinks ...pipeline.Sink) (*pipeline.Pipeline, error) {
		stub.mu.Lock()
		stub.configs = append(stub.configs, cfg)
		stub.mu.Unlock()
		return pipeline.New(stubDetector{box: utils.NewBox(10, 10, 110, 60)}, stubReader{text: "AB123CD"}, nil,
			pipeline.WithSinks(sinks...),
			pipeline.WithDefaultDirection(cfg.DefaultDirection),
			pipeline.WithLocation(cfg.ParkingID, cfg.CameraID),
		), nil
	}
	t.Cleanup(func() { buildPipeline = prev })
	return stub
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := range 100 {
		for x := range 200 {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 80, 255})
		}
	}
	return img
}

func writePNG(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, png.Encode(f, testImage()))
	return path
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	return buf.Bytes()
}
