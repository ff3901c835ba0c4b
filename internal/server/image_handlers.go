package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/plategate/internal/utils"
)

// errNoImage means the request carried neither an upload nor an image_url.
var errNoImage = errors.New("no image provided")

// processRequest is the JSON body accepted by the processing endpoints.
type processRequest struct {
	ImageURL  *string `json:"image_url"`
	Direction *string `json:"direction"`
}

// imageRequest is what parseImageRequest extracts.
type imageRequest struct {
	data      []byte
	hasFile   bool
	imageURL  string
	direction string
}

// processImageHandler runs the pipeline on an uploaded or linked image.
func (s *Server) processImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.ready() {
		s.writeErrorResponse(w, "OCR processor not initialized", http.StatusInternalServerError)
		return
	}

	req, err := s.parseImageRequest(w, r)
	switch {
	case errors.Is(err, errNoImage):
		s.writeErrorResponse(w, "No image provided. Use 'image' file or 'image_url' in JSON", http.StatusBadRequest)
		return
	case err != nil:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeErrorResponse(w, "Failed to parse request", http.StatusBadRequest)
		return
	}

	var img image.Image
	if req.imageURL != "" {
		img, err = utils.FetchImage(r.Context(), s.fetchClient, req.imageURL, s.maxUploadBytes())
		if err != nil {
			slog.Error("Failed to load image from URL", "url", req.imageURL, "error", err)
			s.writeErrorResponse(w, "Failed to load image from URL: "+err.Error(), http.StatusBadRequest)
			return
		}
		slog.Info("Loaded image from URL", "url", req.imageURL)
	} else {
		img, _, err = utils.DecodeImage(req.data)
		if err != nil {
			s.writeErrorResponse(w, "Failed to decode image", http.StatusBadRequest)
			return
		}
	}

	s.process(w, r, img, req.direction, "image")
}

// processCameraHandler captures one frame from the configured source and
// runs the pipeline on it.
func (s *Server) processCameraHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.ready() {
		s.writeErrorResponse(w, "OCR processor not initialized", http.StatusInternalServerError)
		return
	}

	img, err := s.source.Capture(r.Context())
	if err != nil {
		cameraCapturesTotal.WithLabelValues("error").Inc()
		slog.Warn("Failed to capture image from camera", "error", err)
		s.writeErrorResponse(w, "Failed to capture image from camera", http.StatusInternalServerError)
		return
	}
	cameraCapturesTotal.WithLabelValues("success").Inc()

	direction := ""
	q := r.URL.Query()
	if q.Has("direction") {
		direction = q.Get("direction")
	} else if isJSON(r) {
		var body processRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err == nil && body.Direction != nil {
			direction = *body.Direction
		}
	}

	s.process(w, r, img, direction, "camera")
}

func (s *Server) process(w http.ResponseWriter, r *http.Request, img image.Image, direction, kind string) {
	start := time.Now()
	res := s.processor.Process(r.Context(), img, direction)
	plateRequestsTotal.WithLabelValues(kind, fmt.Sprint(res.Detected)).Inc()
	slog.Info("Processed image", "source", kind, "direction", res.Direction,
		"plates", len(res.Plates), "duration_ms", time.Since(start).Milliseconds())
	s.writeJSON(w, http.StatusOK, res)
}

// parseImageRequest reads the image and the requested direction. Direction
// precedence is form field, then query parameter, then JSON body.
func (s *Server) parseImageRequest(w http.ResponseWriter, r *http.Request) (imageRequest, error) {
	var req imageRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())

	formDirection, hasFormDirection := "", false
	switch {
	case isMultipart(r):
		if err := r.ParseMultipartForm(s.maxUploadBytes()); err != nil {
			return req, err
		}
		if vals, ok := r.MultipartForm.Value["direction"]; ok && len(vals) > 0 {
			formDirection, hasFormDirection = vals[0], true
		}
		file, header, err := r.FormFile("image")
		if err == nil {
			defer func() { _ = file.Close() }()
			req.hasFile = true
			uploadSizeBytes.Observe(float64(header.Size))
			if req.data, err = io.ReadAll(file); err != nil {
				return req, err
			}
			slog.Info("Received image file", "filename", header.Filename, "bytes", header.Size)
		}
	case isJSON(r):
		var body processRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return req, err
		}
		if body.ImageURL != nil {
			req.imageURL = strings.TrimSpace(*body.ImageURL)
		}
		if body.Direction != nil {
			req.direction = *body.Direction
		}
	}

	q := r.URL.Query()
	switch {
	case hasFormDirection:
		req.direction = formDirection
	case q.Has("direction"):
		req.direction = q.Get("direction")
	}

	if !req.hasFile && req.imageURL == "" {
		return req, errNoImage
	}
	return req, nil
}

func (s *Server) maxUploadBytes() int64 { return s.maxUploadMB << 20 }

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}
