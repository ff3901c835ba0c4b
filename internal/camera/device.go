//go:build !gocv

package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/plategate/internal/utils"
)

// runFunc executes a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}

// DeviceSource grabs single frames from an RTSP/stream URL or a local video
// device by running ffmpeg.
type DeviceSource struct {
	ffmpeg    string
	input     []string
	available bool
	timeout   time.Duration // per-capture ffmpeg deadline, 0 disables
	run       runFunc
	mu        sync.Mutex
}

// NewDeviceURL opens a network stream such as rtsp://.
func NewDeviceURL(url string, cfg Config) *DeviceSource {
	input := []string{"-i", url}
	if strings.HasPrefix(strings.ToLower(url), "rtsp://") {
		input = append([]string{"-rtsp_transport", "tcp"}, input...)
	}
	return newDevice(cfg, input, true)
}

// NewDeviceIndex opens the USB camera with the given index.
func NewDeviceIndex(index int, cfg Config) *DeviceSource {
	dev := fmt.Sprintf("/dev/video%d", index)
	_, err := os.Stat(dev)
	return newDevice(cfg, []string{"-f", "v4l2", "-i", dev}, err == nil)
}

func newDevice(cfg Config, input []string, reachable bool) *DeviceSource {
	bin := cfg.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	_, lookErr := exec.LookPath(bin)
	return &DeviceSource{
		ffmpeg:    bin,
		input:     input,
		available: reachable && lookErr == nil,
		timeout:   cfg.CaptureTimeout,
		run:       runCommand,
	}
}

// args builds the ffmpeg invocation that writes one PNG frame to stdout.
func (d *DeviceSource) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, d.input...)
	return append(args, "-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-")
}

// Capture grabs and decodes one frame. A stalled stream is abandoned after
// the capture timeout so later captures are not blocked behind it.
func (d *DeviceSource) Capture(ctx context.Context) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.available {
		return nil, ErrNoFrame
	}
	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	out, err := d.run(runCtx, d.ffmpeg, d.args()...)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ffmpeg: %w", ErrNoFrame, err)
	}
	img, _, err := utils.DecodeImage(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoFrame, err)
	}
	return img, nil
}

// Available reports whether ffmpeg and the device were found.
func (d *DeviceSource) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.available
}

// Close marks the source unavailable.
func (d *DeviceSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.available = false
	return nil
}
