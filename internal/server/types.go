package server

import (
	"context"
	"image"
	"net/http"
	"time"

	"github.com/MeKo-Tech/plategate/internal/camera"
	"github.com/MeKo-Tech/plategate/internal/pipeline"
	"github.com/MeKo-Tech/plategate/internal/plate"
)

// Processor runs the plate pipeline on one image.
type Processor interface {
	Process(ctx context.Context, img image.Image, direction string) pipeline.Result
}

// PlateLog lists previously emitted plates.
type PlateLog interface {
	Recent(ctx context.Context, limit int) ([]plate.Event, error)
	Count(ctx context.Context) (int, error)
}

// Config holds server configuration.
type Config struct {
	Host              string        `mapstructure:"host" yaml:"host" json:"host"`
	Port              int           `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin        string        `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB       int64         `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout" json:"fetch_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            5000,
		CORSOrigin:      "*",
		MaxUploadMB:     20,
		FetchTimeout:    10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	processor   Processor
	source      camera.Source
	plates      PlateLog
	hub         *Hub
	limiter     *RateLimiter
	fetchClient *http.Client
	corsOrigin  string
	maxUploadMB int64
	version     string
}

// Option configures a Server.
type Option func(*Server)

// WithPlateLog enables GET /plates/recent.
func WithPlateLog(log PlateLog) Option {
	return func(s *Server) { s.plates = log }
}

// WithHub serves the live plate stream from hub.
func WithHub(hub *Hub) Option {
	return func(s *Server) { s.hub = hub }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithFetchClient overrides the client used for image_url downloads.
func WithFetchClient(c *http.Client) Option {
	return func(s *Server) { s.fetchClient = c }
}

// NewServer creates a server. A nil processor is allowed: processing
// endpoints then answer 500 until the models load.
func NewServer(cfg Config, proc Processor, src camera.Source, opts ...Option) *Server {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = DefaultConfig().MaxUploadMB
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	if src == nil {
		src = camera.Unavailable{}
	}
	s := &Server{
		processor:   proc,
		source:      src,
		fetchClient: &http.Client{Timeout: cfg.FetchTimeout},
		corsOrigin:  cfg.CORSOrigin,
		maxUploadMB: cfg.MaxUploadMB,
	}
	if cfg.RequestsPerMinute > 0 {
		s.limiter = NewRateLimiter(cfg.RequestsPerMinute, time.Minute)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ready reports whether the processor can serve requests.
func (s *Server) ready() bool {
	if s.processor == nil {
		return false
	}
	if r, ok := s.processor.(interface{ Ready() bool }); ok {
		return r.Ready()
	}
	return true
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.hub != nil {
		return s.hub.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/process-image", s.corsMiddleware(s.rateLimitMiddleware(s.processImageHandler)))
	mux.HandleFunc("/process-camera", s.corsMiddleware(s.rateLimitMiddleware(s.processCameraHandler)))
	mux.HandleFunc("/plates/recent", s.corsMiddleware(s.recentPlatesHandler))
	mux.HandleFunc("/ws/plates", s.corsMiddleware(s.plateStreamHandler))
	mux.HandleFunc("/metrics", s.corsMiddleware(metricsHandler().ServeHTTP))
}

// Handler returns a mux with all routes installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status       string `json:"status"`
	OCRProcessor string `json:"ocr_processor"`
	Camera       string `json:"camera"`
	Version      string `json:"version,omitempty"`
	Time         string `json:"time"`
}

// RecentPlatesResponse is the /plates/recent body.
type RecentPlatesResponse struct {
	Plates []plate.Event `json:"plates"`
	Count  int           `json:"count"`
	Total  int           `json:"total"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
