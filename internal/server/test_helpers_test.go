package server

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/MeKo-Tech/plategate/internal/camera"
	"github.com/MeKo-Tech/plategate/internal/pipeline"
	"github.com/MeKo-Tech/plategate/internal/plate"
	"github.com/MeKo-Tech/plategate/internal/utils"
)

// mockProcessor records calls and returns one plate for every image.
type mockProcessor struct {
	mu         sync.Mutex
	directions []string
	sizes      []image.Point
	plates     []pipeline.Plate
}

func (m *mockProcessor) Process(_ context.Context, img image.Image, direction string) pipeline.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.directions = append(m.directions, direction)
	m.sizes = append(m.sizes, img.Bounds().Size())

	dir, _ := plate.ResolveDirection(direction, plate.Entry)
	res := pipeline.Result{Plates: []pipeline.Plate{}, Direction: dir}
	for _, pl := range m.plates {
		pl.Direction = dir
		res.Plates = append(res.Plates, pl)
	}
	res.Detected = len(res.Plates) > 0
	return res
}

func (m *mockProcessor) lastDirection() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.directions) == 0 {
		return "<none>"
	}
	return m.directions[len(m.directions)-1]
}

func (m *mockProcessor) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.directions)
}

func newMockProcessor() *mockProcessor {
	return &mockProcessor{plates: []pipeline.Plate{{
		Text: "AB123CD", Confidence: 0.8, Box: utils.NewBox(10, 10, 110, 60), Delivered: true,
	}}}
}

// mockSource serves a fixed frame, or ErrNoFrame when img is nil.
type mockSource struct {
	img image.Image
}

func (m *mockSource) Capture(context.Context) (image.Image, error) {
	if m.img == nil {
		return nil, camera.ErrNoFrame
	}
	return m.img, nil
}

func (m *mockSource) Available() bool { return m.img != nil }

func (m *mockSource) Close() error { return nil }

// mockPlateLog serves canned events.
type mockPlateLog struct {
	events    []plate.Event
	err       error
	lastLimit int
}

func (m *mockPlateLog) Recent(_ context.Context, limit int) ([]plate.Event, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	if limit > 0 && limit < len(m.events) {
		return m.events[:limit], nil
	}
	return m.events, nil
}

func (m *mockPlateLog) Count(context.Context) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return len(m.events), nil
}

var errLogUnavailable = errors.New("database is locked")

// createTestImage creates a simple gradient test image.
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{byte(x % 256), byte(y % 256), 0, 255})
		}
	}
	return img
}

// encodeImageToPNG encodes an image to PNG bytes.
func encodeImageToPNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	err := png.Encode(&buf, img)
	return buf.Bytes(), err
}

// createMultipartFormRequest creates a multipart request with an image and
// extra form fields.
func createMultipartFormRequest(target string, imageData []byte, filename string,
	extraFields map[string]string,
) (*http.Request, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if imageData != nil {
		part, err := writer.CreateFormFile("image", filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(imageData); err != nil {
			return nil, err
		}
	}
	for key, value := range extraFields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

func newTestServer(proc Processor, opts ...Option) *Server {
	return NewServer(DefaultConfig(), proc, &mockSource{img: createTestImage(64, 48)}, opts...)
}
