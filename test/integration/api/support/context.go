package support

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/plategate/internal/camera"
	"github.com/MeKo-Tech/plategate/internal/notify"
	"github.com/MeKo-Tech/plategate/internal/pipeline"
	"github.com/MeKo-Tech/plategate/internal/plate"
	"github.com/MeKo-Tech/plategate/internal/server"
	"github.com/MeKo-Tech/plategate/internal/store"
)

// APIContext holds the state of one scenario against an in-process gate
// server.
type APIContext struct {
	// Collaborators scripted by Given steps
	Detector *ScriptedDetector
	Reader   *ScriptedReader
	Parking  *ParkingService
	Images   *httptest.Server

	// Gate configuration
	DefaultDirection plate.Direction
	ParkingID        int64
	CameraID         int64
	ModelsLoaded     bool
	PlateLogEnabled  bool
	CameraDir        string

	// Running gate
	Gate   *server.Server
	HTTP   *httptest.Server
	Store  *store.Store
	client *http.Client

	// HTTP response state
	LastStatusCode int
	LastBody       []byte
	LastJSON       map[string]any

	TempDir string
}

// NewAPIContext creates a scenario context with an empty scratch directory.
func NewAPIContext() (*APIContext, error) {
	dir, err := os.MkdirTemp("", "plategate-api-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return &APIContext{
		Detector:         &ScriptedDetector{},
		Reader:           &ScriptedReader{},
		DefaultDirection: plate.Entry,
		ParkingID:        1,
		CameraID:         1,
		ModelsLoaded:     true,
		TempDir:          dir,
		client:           &http.Client{},
	}, nil
}

// StartGate wires the pipeline, plate log and camera and serves them over
// httptest.
func (c *APIContext) StartGate() error {
	if c.HTTP != nil {
		return errors.New("gate server is already running")
	}

	var notifier pipeline.Notifier = notify.Discard{}
	if c.Parking != nil {
		notifier = notify.NewWebhook(notify.WebhookConfig{BaseURL: c.Parking.Server.URL}, nil)
	}

	var (
		sinks []pipeline.Sink
		opts  []server.Option
	)
	if c.PlateLogEnabled {
		st, err := store.Open(filepath.Join(c.TempDir, "plates.db"))
		if err != nil {
			return fmt.Errorf("failed to open plate log: %w", err)
		}
		c.Store = st
		sinks = append(sinks, st)
		opts = append(opts, server.WithPlateLog(st))
	}

	var proc server.Processor
	if c.ModelsLoaded {
		proc = pipeline.New(c.Detector, c.Reader, notifier,
			pipeline.WithDefaultDirection(c.DefaultDirection),
			pipeline.WithLocation(c.ParkingID, c.CameraID),
			pipeline.WithSinks(sinks...),
		)
	}

	var src camera.Source = camera.Unavailable{}
	if c.CameraDir != "" {
		src = camera.NewReplaySource(c.CameraDir)
	}

	c.Gate = server.NewServer(server.Config{CORSOrigin: "*"}, proc, src, opts...)
	c.HTTP = httptest.NewServer(c.Gate.Handler())
	return nil
}

// URL resolves path against the running gate.
func (c *APIContext) URL(path string) string { return c.HTTP.URL + path }

// WriteCameraFrame places a frame into the replay directory.
func (c *APIContext) WriteCameraFrame(width, height int) error {
	dir := filepath.Join(c.TempDir, "camera")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	c.CameraDir = dir
	return imaging.Save(testImage(width, height), filepath.Join(dir, "frame.png"))
}

// Cleanup stops servers and removes scratch files.
func (c *APIContext) Cleanup() error {
	var errs []error
	if c.HTTP != nil {
		c.HTTP.Close()
	}
	if c.Gate != nil {
		errs = append(errs, c.Gate.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Parking != nil {
		c.Parking.Close()
	}
	if c.Images != nil {
		c.Images.Close()
	}
	errs = append(errs, os.RemoveAll(c.TempDir))
	return errors.Join(errs...)
}

func testImage(width, height int) *image.NRGBA {
	img := imaging.New(width, height, color.White)
	for y := height / 4; y < height*3/4; y++ {
		for x := width / 4; x < width*3/4; x++ {
			img.Set(x, y, color.Black)
		}
	}
	return img
}
