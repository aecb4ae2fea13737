// Package domain contains core drowsiness-detection entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"image"
	"time"
)

// Frame is one captured video frame. It is never mutated after capture.
type Frame struct {
	Seq       uint64
	Image     image.Image
	Timestamp time.Time
}

// Width returns the frame width in pixels.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// RegionCandidate is a detected region and the sub-image it covers.
// Box is expressed in the coordinate space of the image passed to the detector.
type RegionCandidate struct {
	Box   image.Rectangle
	Image image.Image
}

// DetectParams tunes a RegionDetector call. MinSize is the side of the
// smallest square region reported, in pixels.
type DetectParams struct {
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinSize      int     `yaml:"min_size"`
}

// EyeSide identifies which eye a region belongs to.
type EyeSide string

const (
	EyeLeft  EyeSide = "left"
	EyeRight EyeSide = "right"
)

// EyeState is the classifier label for one eye.
type EyeState int

const (
	EyeClosed EyeState = iota
	EyeOpen
)

func (s EyeState) String() string {
	if s == EyeOpen {
		return "open"
	}
	return "closed"
}

// EyeObservation is the classified state of one detected eye.
type EyeObservation struct {
	Side  EyeSide
	State EyeState
	Box   image.Rectangle
}

// NormalizedImage is a grayscale eye crop resized to the classifier input
// size, with pixel values in [0,1] stored row-major.
type NormalizedImage struct {
	Width  int
	Height int
	Pix    []float32
}

// FusedState summarises both eyes for one frame.
type FusedState int

const (
	FusedUnknown FusedState = iota
	FusedBothClosed
	FusedNotBothClosed
)

func (s FusedState) String() string {
	switch s {
	case FusedBothClosed:
		return "both_closed"
	case FusedNotBothClosed:
		return "not_both_closed"
	default:
		return "unknown"
	}
}

// Classification is the per-frame result of the frame classifier.
type Classification struct {
	State FusedState
	Faces []image.Rectangle
	Eyes  []EyeObservation
}

// AlarmLevel is the alarm state machine state.
type AlarmLevel int

const (
	AlarmQuiet AlarmLevel = iota
	AlarmAlerting
)

func (l AlarmLevel) String() string {
	if l == AlarmAlerting {
		return "alerting"
	}
	return "quiet"
}

// AlarmSnapshot is a read-only view of the alarm state machine.
type AlarmSnapshot struct {
	Level AlarmLevel
	// Border is the thickness emitted by the last triggering tick, 0 before any.
	Border int
	// Intensity is the thickness the next triggering tick will emit.
	Intensity  int
	AlarmTicks int
}

// SessionState is the lifecycle state of the session controller.
type SessionState int32

const (
	SessionIdle SessionState = iota
	SessionStarting
	SessionRunning
	SessionStopping
)

func (s SessionState) String() string {
	switch s {
	case SessionStarting:
		return "starting"
	case SessionRunning:
		return "running"
	case SessionStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// RenderRequest carries everything the renderer needs for one iteration.
// An alarm border is drawn only when Triggered is set.
type RenderRequest struct {
	SessionID      string
	Frame          Frame
	Classification Classification
	Score          int
	Triggered      bool
	Border         int
	Alarm          AlarmSnapshot
}

// EndReason describes why a session ended.
type EndReason string

const (
	EndStopped  EndReason = "stopped"
	EndOfStream EndReason = "end_of_stream"
)

// ResourceSample is a point-in-time process resource reading.
type ResourceSample struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
}

// SessionSummary is persisted once per finished session.
type SessionSummary struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
	Frames     uint64         `json:"frames"`
	AlarmTicks int            `json:"alarm_ticks"`
	PeakScore  int            `json:"peak_score"`
	EndReason  EndReason      `json:"end_reason"`
	Resources  ResourceSample `json:"resources"`
}

// Duration returns how long the session ran.
func (s SessionSummary) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}
