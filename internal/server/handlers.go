package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// healthHandler reports model and camera readiness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:       "ok",
		OCRProcessor: "failed",
		Camera:       "unavailable",
		Version:      s.version,
		Time:         time.Now().UTC().Format(time.RFC3339),
	}
	if s.ready() {
		response.OCRProcessor = "initialized"
	}
	if s.source.Available() {
		response.Camera = "available"
	}
	s.writeJSON(w, http.StatusOK, response)
}

// recentPlatesHandler lists the newest plates from the plate log.
func (s *Server) recentPlatesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.plates == nil {
		s.writeErrorResponse(w, "Plate log is disabled", http.StatusNotFound)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeErrorResponse(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := s.plates.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list recent plates", "error", err)
		s.writeErrorResponse(w, "Failed to read plate log", http.StatusInternalServerError)
		return
	}
	total, err := s.plates.Count(r.Context())
	if err != nil {
		slog.Error("Failed to count plates", "error", err)
		s.writeErrorResponse(w, "Failed to read plate log", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, RecentPlatesResponse{Plates: events, Count: len(events), Total: total})
}

// writeJSON encodes body with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Can't send another response at this point.
		slog.Error("Error encoding response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
