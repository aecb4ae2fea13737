package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
	"github.com/eliteGoblin/drowsyguard/internal/metrics"
	"github.com/eliteGoblin/drowsyguard/internal/usecase"
)

// ControllerConfig holds per-session settings.
type ControllerConfig struct {
	Alarm         usecase.AlarmConfig
	ScoreCap      int                   // 0 means no ceiling
	UnknownPolicy usecase.UnknownPolicy // How Unknown frames move the score
	RenderBuffer  int                   // Render requests queued before dropping
}

// DefaultControllerConfig returns default controller configuration.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Alarm:         usecase.DefaultAlarmConfig(),
		ScoreCap:      0,
		UnknownPolicy: usecase.UnknownDecrement,
		RenderBuffer:  4,
	}
}

// Snapshot is a display view of the controller.
type Snapshot struct {
	State     domain.SessionState
	SessionID string
	Tracker   usecase.TrackerSnapshot
}

// activeSession is the context of one start-to-stop run.
type activeSession struct {
	id        string
	startedAt time.Time
	tracker   *usecase.Tracker
	cancel    context.CancelFunc
	done      chan struct{}
}

// Controller starts and stops at most one detection worker at a time.
// Start, Stop and Shutdown are serialized; State and Snapshot may be called
// concurrently from any goroutine.
type Controller struct {
	config     ControllerConfig
	source     domain.VideoSource
	classifier domain.FrameClassifier
	sound      domain.AlarmSound
	store      domain.SessionStore
	sampler    domain.ResourceSampler
	metrics    *metrics.Metrics
	logger     *zap.Logger

	opMu sync.Mutex

	mu      sync.RWMutex
	state   domain.SessionState
	current *activeSession
	closed  bool
	renders chan domain.RenderRequest
}

// NewController creates an idle controller. store and sampler may be nil.
func NewController(
	config ControllerConfig,
	source domain.VideoSource,
	classifier domain.FrameClassifier,
	sound domain.AlarmSound,
	store domain.SessionStore,
	sampler domain.ResourceSampler,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Controller {
	if config.RenderBuffer < 1 {
		config.RenderBuffer = 1
	}
	return &Controller{
		config:     config,
		source:     source,
		classifier: classifier,
		sound:      sound,
		store:      store,
		sampler:    sampler,
		metrics:    m,
		logger:     logger,
		renders:    make(chan domain.RenderRequest, config.RenderBuffer),
	}
}

// Updates returns the render channel. It is closed by Shutdown.
func (c *Controller) Updates() <-chan domain.RenderRequest {
	return c.renders
}

// State returns the current session state.
func (c *Controller) State() domain.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns state, session ID, score and alarm for display.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	s := c.current
	snap := Snapshot{State: c.state}
	c.mu.RUnlock()

	if s != nil {
		snap.SessionID = s.id
		snap.Tracker = s.tracker.Snapshot()
	}
	return snap
}

// Start opens the video source and spawns a detection worker.
// Returns ErrAlreadyRunning unless Idle, and an error wrapping
// ErrDeviceUnavailable if the source cannot be opened.
func (c *Controller) Start() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrShutdown
	}
	if c.state != domain.SessionIdle {
		c.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	c.setStateLocked(domain.SessionStarting)
	c.mu.Unlock()

	handle, err := c.source.Open()
	if err != nil {
		c.setState(domain.SessionIdle)
		c.logger.Warn("could not open video source", zap.Error(err))
		if errors.Is(err, domain.ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &activeSession{
		id:        uuid.NewString(),
		startedAt: time.Now(),
		tracker:   usecase.NewTracker(c.config.ScoreCap, c.config.UnknownPolicy, c.config.Alarm),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	worker := NewWorker(s.id, handle, c.classifier, s.tracker, c.sound, c.renders, c.metrics, c.logger)

	c.mu.Lock()
	c.current = s
	c.setStateLocked(domain.SessionRunning)
	c.mu.Unlock()

	c.metrics.SessionsStarted.Add(1)
	c.logger.Info("detection session started", zap.String("session_id", s.id))

	go func() {
		result := worker.Run(ctx)
		c.finish(s, result)
	}()

	return nil
}

// Stop cancels the running worker and waits until it has released the
// capture device. Calling Stop while Idle is a no-op.
func (c *Controller) Stop() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.stopLocked()
}

func (c *Controller) stopLocked() error {
	c.mu.Lock()
	s := c.current
	if s == nil {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(domain.SessionStopping)
	c.mu.Unlock()

	c.logger.Info("stopping detection session", zap.String("session_id", s.id))
	s.cancel()
	<-s.done
	return nil
}

// Shutdown stops any running session and closes the render channel.
// Later Start calls fail with ErrShutdown.
func (c *Controller) Shutdown() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.stopLocked(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.renders)
		c.logger.Info("session controller shut down")
	}
	return nil
}

// finish runs on the worker goroutine after the capture device is released.
func (c *Controller) finish(s *activeSession, result WorkerResult) {
	defer close(s.done)
	s.cancel()

	// End of stream reaches here without Stop; the summary write still
	// counts as Stopping.
	c.mu.Lock()
	if c.current == s {
		c.setStateLocked(domain.SessionStopping)
	}
	c.mu.Unlock()

	snap := s.tracker.Snapshot()
	summary := domain.SessionSummary{
		ID:         s.id,
		StartedAt:  s.startedAt,
		EndedAt:    time.Now(),
		Frames:     result.Frames,
		AlarmTicks: snap.Alarm.AlarmTicks,
		PeakScore:  snap.PeakScore,
		EndReason:  result.EndReason,
	}
	if c.sampler != nil {
		sample, err := c.sampler.Sample()
		if err != nil {
			c.logger.Debug("resource sample failed", zap.Error(err))
		} else {
			summary.Resources = sample
		}
	}
	if c.store != nil {
		if err := c.store.Record(summary); err != nil {
			c.logger.Warn("failed to record session", zap.String("session_id", s.id), zap.Error(err))
		}
	}

	c.mu.Lock()
	if c.current == s {
		c.current = nil
		c.metrics.Score.Store(0)
		c.setStateLocked(domain.SessionIdle)
	}
	c.mu.Unlock()

	c.metrics.SessionsEnded.Add(1)
	c.logger.Info("detection session ended",
		zap.String("session_id", s.id),
		zap.String("reason", string(result.EndReason)),
		zap.Uint64("frames", result.Frames),
		zap.Int("alarm_ticks", summary.AlarmTicks),
		zap.Int("peak_score", summary.PeakScore))
}

func (c *Controller) setState(state domain.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(state)
}

func (c *Controller) setStateLocked(state domain.SessionState) {
	c.state = state
	c.metrics.SetSessionState(state)
}
