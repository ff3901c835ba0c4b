//go:build !gocv

package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceSource_Args(t *testing.T) {
	rtsp := NewDeviceURL("rtsp://cam/live", DefaultConfig())
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error",
		"-rtsp_transport", "tcp", "-i", "rtsp://cam/live",
		"-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-",
	}, rtsp.args())

	usb := NewDeviceIndex(2, DefaultConfig())
	assert.Contains(t, usb.args(), "/dev/video2")
	assert.Contains(t, usb.args(), "v4l2")
}

func TestDeviceSource_Capture(t *testing.T) {
	var frame bytes.Buffer
	require.NoError(t, png.Encode(&frame, image.NewRGBA(image.Rect(0, 0, 16, 9))))

	var gotName string
	d := &DeviceSource{
		ffmpeg:    "ffmpeg",
		input:     []string{"-i", "rtsp://cam"},
		available: true,
		run: func(_ context.Context, name string, _ ...string) ([]byte, error) {
			gotName = name
			return frame.Bytes(), nil
		},
	}
	img, err := d.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg", gotName)
	assert.Equal(t, image.Pt(16, 9), img.Bounds().Size())
}

func TestDeviceSource_CaptureFailures(t *testing.T) {
	failing := &DeviceSource{available: true, run: func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("Connection refused")
	}}
	_, err := failing.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)

	garbage := &DeviceSource{available: true, run: func(context.Context, string, ...string) ([]byte, error) {
		return []byte("garbage"), nil
	}}
	_, err = garbage.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)

	closed := &DeviceSource{available: true}
	require.NoError(t, closed.Close())
	assert.False(t, closed.Available())
	_, err = closed.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestDeviceSource_CaptureTimeout(t *testing.T) {
	d := &DeviceSource{
		available: true,
		timeout:   20 * time.Millisecond,
		run: func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	start := time.Now()
	_, err := d.Capture(context.Background())
	require.ErrorIs(t, err, ErrNoFrame)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	// The lock is released, so the next capture runs rather than queueing.
	_, err = d.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestNewDevice_UsesCaptureTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CaptureTimeout = 3 * time.Second
	assert.Equal(t, 3*time.Second, NewDeviceURL("rtsp://cam/live", cfg).timeout)
	assert.Equal(t, 15*time.Second, DefaultConfig().CaptureTimeout)
}
