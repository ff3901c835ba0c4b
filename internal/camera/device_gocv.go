//go:build gocv

package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// DeviceSource reads frames from an OpenCV VideoCapture.
type DeviceSource struct {
	capture *gocv.VideoCapture
	frame   gocv.Mat
	mu      sync.Mutex
}

// NewDeviceURL opens a network stream such as rtsp://.
func NewDeviceURL(url string, _ Config) *DeviceSource {
	vc, err := gocv.OpenVideoCapture(url)
	return newDevice(vc, err)
}

// NewDeviceIndex opens the USB camera with the given index.
func NewDeviceIndex(index int, _ Config) *DeviceSource {
	vc, err := gocv.VideoCaptureDevice(index)
	return newDevice(vc, err)
}

func newDevice(vc *gocv.VideoCapture, err error) *DeviceSource {
	if err != nil || vc == nil || !vc.IsOpened() {
		if vc != nil {
			_ = vc.Close()
		}
		return &DeviceSource{}
	}
	return &DeviceSource{capture: vc, frame: gocv.NewMat()}
}

// Capture reads the next frame.
func (d *DeviceSource) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capture == nil {
		return nil, ErrNoFrame
	}
	if ok := d.capture.Read(&d.frame); !ok || d.frame.Empty() {
		return nil, fmt.Errorf("%w: failed to capture frame from camera", ErrNoFrame)
	}
	img, err := d.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoFrame, err)
	}
	return img, nil
}

// Available reports whether the capture device opened.
func (d *DeviceSource) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capture != nil
}

// Close releases the capture device.
func (d *DeviceSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capture == nil {
		return nil
	}
	_ = d.frame.Close()
	err := d.capture.Close()
	d.capture = nil
	return err
}
