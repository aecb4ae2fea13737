package session

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// mockVideoSource implements domain.VideoSource and counts open/release calls.
type mockVideoSource struct {
	openErr  error
	frames   int           // frames per handle before end of stream, 0 = endless
	interval time.Duration // delay per ReadFrame

	opens    atomic.Int32
	releases atomic.Int32
}

func (m *mockVideoSource) Open() (domain.CaptureHandle, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.opens.Add(1)
	return &mockHandle{source: m}, nil
}

// mockHandle implements domain.CaptureHandle.
type mockHandle struct {
	source   *mockVideoSource
	seq      uint64
	released atomic.Bool
}

func (h *mockHandle) ReadFrame() (domain.Frame, error) {
	if h.released.Load() {
		return domain.Frame{}, errors.New("read after release")
	}
	if h.source.frames > 0 && h.seq >= uint64(h.source.frames) {
		return domain.Frame{}, domain.ErrEndOfStream
	}
	if h.source.interval > 0 {
		time.Sleep(h.source.interval)
	}
	h.seq++
	return domain.Frame{
		Seq:       h.seq,
		Image:     image.NewGray(image.Rect(0, 0, 8, 8)),
		Timestamp: time.Now(),
	}, nil
}

func (h *mockHandle) Release() error {
	if h.released.CompareAndSwap(false, true) {
		h.source.releases.Add(1)
	}
	return nil
}

// scriptedClassifier returns a fixed fused state per frame sequence number.
type scriptedClassifier struct {
	script   []domain.FusedState
	fallback domain.FusedState
}

func (s *scriptedClassifier) Classify(frame domain.Frame) domain.Classification {
	i := int(frame.Seq) - 1
	if i >= 0 && i < len(s.script) {
		return domain.Classification{State: s.script[i]}
	}
	return domain.Classification{State: s.fallback}
}

// mockSound implements domain.AlarmSound.
type mockSound struct {
	plays atomic.Int32
}

func (m *mockSound) PlayAsync() {
	m.plays.Add(1)
}

// mockStore implements domain.SessionStore.
type mockStore struct {
	mu        sync.Mutex
	summaries []domain.SessionSummary
	err       error

	// When hold is set, Record signals recording and waits for hold to close.
	recording chan struct{}
	hold      chan struct{}
}

func (m *mockStore) Record(s domain.SessionSummary) error {
	if m.hold != nil {
		m.recording <- struct{}{}
		<-m.hold
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.summaries = append(m.summaries, s)
	return nil
}

func (m *mockStore) Recent(limit int) ([]domain.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SessionSummary, 0, len(m.summaries))
	for i := len(m.summaries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.summaries[i])
	}
	return out, nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) all() []domain.SessionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SessionSummary(nil), m.summaries...)
}

// mockSampler implements domain.ResourceSampler.
type mockSampler struct{}

func (mockSampler) Sample() (domain.ResourceSample, error) {
	return domain.ResourceSample{RSSBytes: 1024, CPUPercent: 1.5}, nil
}
