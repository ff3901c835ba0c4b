package camera

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/MeKo-Tech/plategate/internal/utils"
)

// maxSnapshotBytes caps a single snapshot download.
const maxSnapshotBytes = 32 << 20

// SnapshotSource fetches a still image from an HTTP camera endpoint.
type SnapshotSource struct {
	url    string
	client *http.Client
	mu     sync.Mutex
}

// NewSnapshotSource returns a source for url. A nil client gets one with
// the given timeout.
func NewSnapshotSource(url string, timeout time.Duration, client *http.Client) *SnapshotSource {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &SnapshotSource{url: url, client: client}
}

// Capture downloads and decodes one snapshot.
func (s *SnapshotSource) Capture(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := utils.FetchImage(ctx, s.client, s.url, maxSnapshotBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoFrame, err)
	}
	return img, nil
}

// Available reports true; reachability is only known at capture time.
func (s *SnapshotSource) Available() bool { return true }

// Close releases idle connections.
func (s *SnapshotSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
