package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/MeKo-Tech/plategate/internal/utils"
)

// replayPatterns are globbed in this order; the results are concatenated.
var replayPatterns = []string{"*.jpg", "*.png", "*.jpeg"}

// ReplaySource cycles through the images stored in a directory.
type ReplaySource struct {
	dir    string
	files  []string
	cursor int
	mu     sync.Mutex
}

// NewReplaySource lists the images in dir. A missing directory yields an
// empty, unavailable source.
func NewReplaySource(dir string) *ReplaySource {
	src := &ReplaySource{dir: dir}
	if _, err := os.Stat(dir); err != nil {
		slog.Warn("local path does not exist", "path", dir)
		return src
	}
	for _, pattern := range replayPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		src.files = append(src.files, matches...)
	}
	slog.Info("found test images", "count", len(src.files), "path", dir)
	return src
}

// Files returns the images in replay order.
func (s *ReplaySource) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}

// Capture decodes the next image, wrapping to the first after the last.
func (s *ReplaySource) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.files) == 0 {
		return nil, ErrNoFrame
	}
	if s.cursor >= len(s.files) {
		s.cursor = 0
	}
	path := s.files[s.cursor]
	s.cursor++

	img, _, err := utils.LoadImage(path)
	if err != nil {
		slog.Warn("failed to load test image", "path", path, "error", err)
		return nil, fmt.Errorf("%w: %s", ErrNoFrame, filepath.Base(path))
	}
	slog.Debug("loaded test image", "path", path)
	return img, nil
}

// Available reports whether any images were found.
func (s *ReplaySource) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files) > 0
}

// Close is a no-op.
func (s *ReplaySource) Close() error { return nil }
