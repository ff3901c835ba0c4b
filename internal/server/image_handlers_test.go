package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/plategate/internal/camera"
	"github.com/MeKo-Tech/plategate/internal/pipeline"
	"github.com/MeKo-Tech/plategate/internal/plate"
)

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) pipeline.Result {
	t.Helper()
	var res pipeline.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var res ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res.Error
}

func TestProcessImage_Upload(t *testing.T) {
	proc := newMockProcessor()
	s := newTestServer(proc)
	data, err := encodeImageToPNG(createTestImage(120, 80))
	require.NoError(t, err)

	req, err := createMultipartFormRequest("/process-image", data, "car.png", map[string]string{"direction": "EXIT"})
	require.NoError(t, err)
	w := httptest.NewRecorder()
	s.processImageHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeResult(t, w)
	assert.True(t, res.Detected)
	assert.Equal(t, plate.Exit, res.Direction)
	require.Len(t, res.Plates, 1)
	assert.Equal(t, "AB123CD", res.Plates[0].Text)
	assert.True(t, res.Plates[0].Delivered)
	assert.Contains(t, w.Body.String(), `"bbox":[10,10,110,60]`)
	assert.Contains(t, w.Body.String(), `"sent_to_service":true`)
	assert.Equal(t, "EXIT", proc.lastDirection())
}

func TestProcessImage_DirectionPrecedence(t *testing.T) {
	data, err := encodeImageToPNG(createTestImage(10, 10))
	require.NoError(t, err)

	t.Run("form wins over query", func(t *testing.T) {
		proc := newMockProcessor()
		req, err := createMultipartFormRequest("/process-image?direction=entry", data, "a.png", map[string]string{"direction": "exit"})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		newTestServer(proc).processImageHandler(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "exit", proc.lastDirection())
	})

	t.Run("query used without form field", func(t *testing.T) {
		proc := newMockProcessor()
		req, err := createMultipartFormRequest("/process-image?direction=exit", data, "a.png", nil)
		require.NoError(t, err)
		w := httptest.NewRecorder()
		newTestServer(proc).processImageHandler(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "exit", proc.lastDirection())
	})

	t.Run("query wins over json", func(t *testing.T) {
		img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write(data) }))
		defer img.Close()

		proc := newMockProcessor()
		body := `{"image_url":"` + img.URL + `","direction":"entry"}`
		req := httptest.NewRequest(http.MethodPost, "/process-image?direction=exit", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		newTestServer(proc).processImageHandler(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "exit", proc.lastDirection())
	})

	t.Run("invalid direction uses default", func(t *testing.T) {
		req, err := createMultipartFormRequest("/process-image", data, "a.png", map[string]string{"direction": "north"})
		require.NoError(t, err)
		w := httptest.NewRecorder()
		newTestServer(newMockProcessor()).processImageHandler(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, plate.Entry, decodeResult(t, w).Direction)
	})
}

func TestProcessImage_ImageURL(t *testing.T) {
	data, err := encodeImageToPNG(createTestImage(40, 30))
	require.NoError(t, err)
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	defer img.Close()

	proc := newMockProcessor()
	req := httptest.NewRequest(http.MethodPost, "/process-image", strings.NewReader(`{"image_url":"`+img.URL+`/car.png"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	newTestServer(proc).processImageHandler(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, proc.calls())
	assert.Equal(t, 40, proc.sizes[0].X)

	req = httptest.NewRequest(http.MethodPost, "/process-image", strings.NewReader(`{"image_url":"`+img.URL+`/missing.png"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	newTestServer(newMockProcessor()).processImageHandler(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.HasPrefix(decodeError(t, w), "Failed to load image from URL: "))
}

func TestProcessImage_Errors(t *testing.T) {
	png, err := encodeImageToPNG(createTestImage(4, 4))
	require.NoError(t, err)

	tests := []struct {
		name       string
		server     *Server
		request    func() *http.Request
		wantStatus int
		wantError  string
	}{
		{
			name:   "processor not initialized",
			server: NewServer(DefaultConfig(), nil, nil),
			request: func() *http.Request {
				req, _ := createMultipartFormRequest("/process-image", png, "a.png", nil)
				return req
			},
			wantStatus: http.StatusInternalServerError,
			wantError:  "OCR processor not initialized",
		},
		{
			name:   "no image",
			server: newTestServer(newMockProcessor()),
			request: func() *http.Request {
				req, _ := createMultipartFormRequest("/process-image", nil, "", map[string]string{"direction": "exit"})
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "No image provided. Use 'image' file or 'image_url' in JSON",
		},
		{
			name:   "empty json body",
			server: newTestServer(newMockProcessor()),
			request: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/process-image", strings.NewReader(`{}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "No image provided. Use 'image' file or 'image_url' in JSON",
		},
		{
			name:   "undecodable upload",
			server: newTestServer(newMockProcessor()),
			request: func() *http.Request {
				req, _ := createMultipartFormRequest("/process-image", []byte("not an image"), "a.png", nil)
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Failed to decode image",
		},
		{
			name:   "malformed json",
			server: newTestServer(newMockProcessor()),
			request: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/process-image", strings.NewReader(`{"image_url":`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Failed to parse request",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.server.processImageHandler(w, tt.request())
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantError, decodeError(t, w))
		})
	}

	w := httptest.NewRecorder()
	newTestServer(newMockProcessor()).processImageHandler(w, httptest.NewRequest(http.MethodGet, "/process-image", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestProcessImage_UploadTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUploadMB = 1
	s := NewServer(cfg, newMockProcessor(), nil)

	req, err := createMultipartFormRequest("/process-image", make([]byte, 2<<20), "big.png", nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	s.processImageHandler(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestProcessCamera(t *testing.T) {
	proc := newMockProcessor()
	s := newTestServer(proc)

	w := httptest.NewRecorder()
	s.processCameraHandler(w, httptest.NewRequest(http.MethodPost, "/process-camera?direction=exit", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, plate.Exit, decodeResult(t, w).Direction)
	assert.Equal(t, "exit", proc.lastDirection())
	assert.Equal(t, 64, proc.sizes[0].X)

	req := httptest.NewRequest(http.MethodPost, "/process-camera", strings.NewReader(`{"direction":"exit"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	s.processCameraHandler(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "exit", proc.lastDirection())

	w = httptest.NewRecorder()
	s.processCameraHandler(w, httptest.NewRequest(http.MethodPost, "/process-camera", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", proc.lastDirection())
	assert.Equal(t, plate.Entry, decodeResult(t, w).Direction)
}

func TestProcessCamera_Errors(t *testing.T) {
	w := httptest.NewRecorder()
	NewServer(DefaultConfig(), nil, &mockSource{img: createTestImage(2, 2)}).
		processCameraHandler(w, httptest.NewRequest(http.MethodPost, "/process-camera", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "OCR processor not initialized", decodeError(t, w))

	proc := newMockProcessor()
	w = httptest.NewRecorder()
	NewServer(DefaultConfig(), proc, camera.Unavailable{}).
		processCameraHandler(w, httptest.NewRequest(http.MethodPost, "/process-camera", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to capture image from camera", decodeError(t, w))
	assert.Equal(t, 0, proc.calls())
}
