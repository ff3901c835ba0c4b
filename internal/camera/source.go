// Package camera provides the image sources the service captures frames from:
// a live device or stream, an HTTP snapshot endpoint, or a directory of
// stored images replayed in a loop.
package camera

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// ErrNoFrame reports that no image is currently available. Callers may retry.
var ErrNoFrame = errors.New("no frame available")

// Source produces frames on demand. Implementations serialize Capture.
type Source interface {
	Capture(ctx context.Context) (image.Image, error)
	Available() bool
	Close() error
}

// Config selects and tunes the image source.
type Config struct {
	URL             string        `mapstructure:"url" yaml:"url" json:"url"`
	LocalPath       string        `mapstructure:"local_path" yaml:"local_path" json:"local_path"`
	SnapshotTimeout time.Duration `mapstructure:"snapshot_timeout" yaml:"snapshot_timeout" json:"snapshot_timeout"`
	CaptureTimeout  time.Duration `mapstructure:"capture_timeout" yaml:"capture_timeout" json:"capture_timeout"`
	FFmpegPath      string        `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path" json:"ffmpeg_path"`
}

// DefaultConfig returns a configuration with no source.
func DefaultConfig() Config {
	return Config{SnapshotTimeout: 10 * time.Second, CaptureTimeout: 15 * time.Second, FFmpegPath: "ffmpeg"}
}

// NewSource picks the source for cfg. A configured URL always wins over the
// replay directory; with neither set the source is unavailable.
func NewSource(cfg Config) Source {
	switch {
	case cfg.URL != "":
		src := newStreamSource(cfg)
		if !src.Available() {
			slog.Warn("failed to open camera", "url", redact(cfg.URL))
		}
		return src
	case cfg.LocalPath != "":
		return NewReplaySource(cfg.LocalPath)
	default:
		slog.Info("no camera or test images configured")
		return Unavailable{}
	}
}

// newStreamSource dispatches on the URL form.
func newStreamSource(cfg Config) Source {
	if isHTTP(cfg.URL) {
		return NewSnapshotSource(cfg.URL, cfg.SnapshotTimeout, nil)
	}
	if idx, err := strconv.Atoi(strings.TrimSpace(cfg.URL)); err == nil {
		return NewDeviceIndex(idx, cfg)
	}
	return NewDeviceURL(cfg.URL, cfg)
}

func isHTTP(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// redact strips credentials from a stream URL for logging.
func redact(u string) string {
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return u
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		if slash := strings.Index(rest, "/"); slash < 0 || at < slash {
			rest = "***@" + rest[at+1:]
		}
	}
	return scheme + "://" + rest
}

// Unavailable is the source used when nothing is configured.
type Unavailable struct{}

// Capture always fails with ErrNoFrame.
func (Unavailable) Capture(context.Context) (image.Image, error) { return nil, ErrNoFrame }

// Available reports false.
func (Unavailable) Available() bool { return false }

// Close is a no-op.
func (Unavailable) Close() error { return nil }
