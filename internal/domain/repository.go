package domain

import (
	"errors"
	"image"
)

var (
	// ErrAlreadyRunning is returned by Start when a session is not Idle.
	ErrAlreadyRunning = errors.New("session already running")

	// ErrDeviceUnavailable is returned when the video source cannot be opened.
	ErrDeviceUnavailable = errors.New("video device unavailable")

	// ErrEndOfStream is returned by ReadFrame when no further frame is available.
	ErrEndOfStream = errors.New("end of stream")

	// ErrShutdown is returned by Start after the controller has shut down.
	ErrShutdown = errors.New("controller shut down")

	// ErrAssetLoad marks a detector or classifier asset that failed to load.
	ErrAssetLoad = errors.New("asset load failed")

	// ErrQuitRequested is returned by a Renderer when the user closed the display.
	ErrQuitRequested = errors.New("quit requested")
)

// VideoSource opens capture handles.
// Implementation: gocv VideoCapture (camera index, file or stream URL).
type VideoSource interface {
	// Open acquires the capture device. Failures wrap ErrDeviceUnavailable.
	Open() (CaptureHandle, error)
}

// CaptureHandle is an open capture device owned by one session.
type CaptureHandle interface {
	// ReadFrame blocks until the next frame. Failures wrap ErrEndOfStream.
	ReadFrame() (Frame, error)

	// Release frees the device. Safe to call more than once.
	Release() error
}

// RegionDetector finds candidate regions (faces, eyes) in an image.
// Implementation: Haar cascade via gocv.
type RegionDetector interface {
	Detect(img image.Image, params DetectParams) ([]RegionCandidate, error)
}

// EyeClassifier labels a normalized eye crop as open or closed.
// Implementation: CNN loaded through the gocv DNN module.
type EyeClassifier interface {
	Classify(img NormalizedImage) (EyeState, error)
}

// AlarmSound plays the alarm. PlayAsync never blocks and never fails the caller.
type AlarmSound interface {
	PlayAsync()
}

// Renderer displays frames with overlays on the control-surface side.
type Renderer interface {
	// Render draws one frame with its overlays.
	Render(req RenderRequest) error

	// Close releases the display.
	Close() error
}

// SessionStore persists finished session summaries.
// Implementation: SQLCipher encrypted SQLite database.
type SessionStore interface {
	// Record saves a finished session.
	Record(summary SessionSummary) error

	// Recent returns up to limit sessions, newest first.
	Recent(limit int) ([]SessionSummary, error)

	// Close releases resources (e.g., database connection).
	Close() error
}

// ResourceSampler reads current process resource usage.
// Implementation: uses gopsutil for cross-platform support.
type ResourceSampler interface {
	Sample() (ResourceSample, error)
}

// KeyProvider supplies the history database key.
type KeyProvider interface {
	// HistoryKey returns the key, creating it on first use.
	HistoryKey() ([]byte, error)

	// HasHistoryKey reports whether a key was already created.
	HasHistoryKey() bool
}

// FrameClassifier turns a frame into a fused eye-state observation.
type FrameClassifier interface {
	Classify(frame Frame) Classification
}
