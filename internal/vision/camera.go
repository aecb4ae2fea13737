// Package vision adapts OpenCV (through gocv) to the capture, detection,
// classification and display interfaces of the domain.
package vision

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// Camera implements domain.VideoSource for a device index, file or stream URL.
type Camera struct {
	device string
}

// NewCamera creates a Camera. A numeric device is opened as a local camera
// index; anything else is passed to OpenCV as a file path or URL.
func NewCamera(device string) *Camera {
	return &Camera{device: device}
}

// Open acquires the capture device.
func (c *Camera) Open() (domain.CaptureHandle, error) {
	var target interface{} = c.device
	if idx, err := strconv.Atoi(c.device); err == nil {
		target = idx
	}

	capture, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", c.device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open %q: device not opened", c.device)
	}
	return &captureHandle{capture: capture, mat: gocv.NewMat()}, nil
}

type captureHandle struct {
	capture  *gocv.VideoCapture
	mat      gocv.Mat
	seq      uint64
	released atomic.Bool
}

// ReadFrame copies the next frame out of OpenCV memory.
func (h *captureHandle) ReadFrame() (domain.Frame, error) {
	if h.released.Load() {
		return domain.Frame{}, domain.ErrEndOfStream
	}
	if !h.capture.Read(&h.mat) || h.mat.Empty() {
		return domain.Frame{}, domain.ErrEndOfStream
	}

	img, err := h.mat.ToImage()
	if err != nil {
		return domain.Frame{}, fmt.Errorf("convert frame: %w", err)
	}
	h.seq++
	return domain.Frame{Seq: h.seq, Image: img, Timestamp: time.Now()}, nil
}

// Release closes the device once; later calls are no-ops.
func (h *captureHandle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	matErr := h.mat.Close()
	if err := h.capture.Close(); err != nil {
		return err
	}
	return matErr
}

var _ domain.VideoSource = (*Camera)(nil)
