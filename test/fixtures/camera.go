// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// Pixel levels the synthetic camera paints for each fused state.
const (
	LevelClosed uint8 = 20
	LevelOpen   uint8 = 230
	LevelNoFace uint8 = 0
)

const (
	frameWidth  = 64
	frameHeight = 48
)

// SyntheticCamera is a domain.VideoSource that paints uniform gray frames.
// The script decides each frame's level; once it is exhausted the stream
// ends, unless Endless is set, in which case the last level repeats.
type SyntheticCamera struct {
	Script   []domain.FusedState
	Endless  bool
	Interval time.Duration
	OpenErr  error

	Opens    atomic.Int32
	Releases atomic.Int32
}

// ClosedFor returns a script of n closed frames.
func ClosedFor(n int) []domain.FusedState {
	s := make([]domain.FusedState, n)
	for i := range s {
		s[i] = domain.FusedBothClosed
	}
	return s
}

func (c *SyntheticCamera) Open() (domain.CaptureHandle, error) {
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	c.Opens.Add(1)
	return &syntheticHandle{camera: c}, nil
}

type syntheticHandle struct {
	camera *SyntheticCamera
	seq    uint64
	once   sync.Once
}

func (h *syntheticHandle) ReadFrame() (domain.Frame, error) {
	script := h.camera.Script
	idx := int(h.seq)
	if idx >= len(script) {
		if !h.camera.Endless || len(script) == 0 {
			return domain.Frame{}, domain.ErrEndOfStream
		}
		idx = len(script) - 1
	}
	if h.camera.Interval > 0 {
		time.Sleep(h.camera.Interval)
	}

	h.seq++
	return domain.Frame{
		Seq:       h.seq,
		Image:     paint(levelFor(script[idx])),
		Timestamp: time.Now(),
	}, nil
}

func (h *syntheticHandle) Release() error {
	h.once.Do(func() { h.camera.Releases.Add(1) })
	return nil
}

func levelFor(state domain.FusedState) uint8 {
	switch state {
	case domain.FusedBothClosed:
		return LevelClosed
	case domain.FusedNotBothClosed:
		return LevelOpen
	default:
		return LevelNoFace
	}
}

func paint(level uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, frameWidth, frameHeight))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

// LevelDetector is a domain.RegionDetector that reports one fixed-size region
// at the centre of any image that is not black.
type LevelDetector struct{}

func (LevelDetector) Detect(img image.Image, _ domain.DetectParams) ([]domain.RegionCandidate, error) {
	if img == nil {
		return nil, nil
	}
	b := img.Bounds()
	if color.GrayModel.Convert(img.At(b.Min.X, b.Min.Y)).(color.Gray).Y == LevelNoFace {
		return nil, nil
	}
	box := image.Rect(b.Min.X+b.Dx()/4, b.Min.Y+b.Dy()/4, b.Max.X-b.Dx()/4, b.Max.Y-b.Dy()/4)
	sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok {
		return nil, errors.New("image does not support cropping")
	}
	return []domain.RegionCandidate{{Box: box, Image: sub.SubImage(box)}}, nil
}

// BrightnessClassifier is a domain.EyeClassifier: dark inputs are closed.
type BrightnessClassifier struct{}

func (BrightnessClassifier) Classify(img domain.NormalizedImage) (domain.EyeState, error) {
	if len(img.Pix) == 0 {
		return domain.EyeOpen, errors.New("empty input")
	}
	var sum float32
	for _, v := range img.Pix {
		sum += v
	}
	if sum/float32(len(img.Pix)) < 0.5 {
		return domain.EyeClosed, nil
	}
	return domain.EyeOpen, nil
}

// CountingSound is a domain.AlarmSound that counts requests.
type CountingSound struct {
	Plays atomic.Int32
}

func (s *CountingSound) PlayAsync() {
	s.Plays.Add(1)
}
