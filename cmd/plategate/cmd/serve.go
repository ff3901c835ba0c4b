package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/plategate/internal/camera"
	"github.com/MeKo-Tech/plategate/internal/config"
	"github.com/MeKo-Tech/plategate/internal/notify"
	"github.com/MeKo-Tech/plategate/internal/pipeline"
	"github.com/MeKo-Tech/plategate/internal/server"
	"github.com/MeKo-Tech/plategate/internal/store"
	"github.com/MeKo-Tech/plategate/internal/version"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the plate recognition HTTP server",
	Long: `Start an HTTP server that runs the plate pipeline on uploaded images or
camera frames.

The server provides the following endpoints:
  GET  /health          - Model and camera status
  POST /process-image   - Process an uploaded image or image_url
  POST /process-camera  - Capture a frame from the camera and process it
  GET  /plates/recent   - Recently emitted plates (requires --store)
  GET  /ws/plates       - Live stream of emitted plates
  GET  /metrics         - Prometheus metrics

Examples:
  plategate serve
  plategate serve --port 5000 --camera-url rtsp://cam/live
  plategate serve --store /var/lib/plategate/plates.db`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, GetConfig(), nil)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "0.0.0.0", "server host")
	serveCmd.Flags().IntP("port", "p", 5000, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int64("max-upload-size", 20, "maximum upload size in MB")
	serveCmd.Flags().Int("requests-per-minute", 0, "per-client request limit on processing endpoints (0 disables)")
	serveCmd.Flags().String("camera-url", "", "camera URL: http(s) snapshot, rtsp stream or USB device index")
	serveCmd.Flags().String("camera-local-path", "", "directory of images to replay when no camera is configured")
	serveCmd.Flags().String("store", "", "SQLite plate log path (empty disables /plates/recent)")
	addPipelineFlags(serveCmd)
}

// runServe serves until ctx is done. When ready is non-nil it receives the
// bound listener address once the server accepts connections.
func runServe(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				slog.Error("Cleanup error", "error", err)
			}
		}
	}()

	var sinks []pipeline.Sink
	var opts []server.Option

	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open plate log: %w", err)
		}
		closers = append(closers, st)
		sinks = append(sinks, st)
		opts = append(opts, server.WithPlateLog(st))
		slog.Info("Plate log enabled", "path", st.Path())
	}

	if cfg.MQTT.Enabled {
		pub, err := notify.NewMQTTPublisher(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		closers = append(closers, pub)
		sinks = append(sinks, pub)
		slog.Info("MQTT publishing enabled", "broker", cfg.MQTT.Broker)
	}

	hub := server.NewHub()
	sinks = append(sinks, hub)
	opts = append(opts, server.WithHub(hub), server.WithVersion(version.Version))

	// A missing model leaves the server up with /health reporting failed.
	var proc server.Processor
	p, err := openPipeline(cfg.ToPipelineConfig(), sinks...)
	if err != nil {
		slog.Error("Pipeline unavailable", "error", err)
	} else {
		closers = append(closers, p)
		proc = p
	}

	src := camera.NewSource(cfg.Camera)
	closers = append(closers, src)

	srv := server.NewServer(cfg.Server, proc, src, opts...)
	closers = append(closers, srv)

	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting plate server", "addr", ln.Addr().String(), "camera", src.Available())
		errCh <- httpServer.Serve(ln)
	}()
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	slog.Info("Starting graceful shutdown", "timeout", cfg.Server.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Close the hub first so websocket clients release their connections.
	if err := srv.Close(); err != nil {
		slog.Error("Plate stream shutdown error", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Graceful shutdown completed")
	return nil
}
