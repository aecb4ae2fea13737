// Package session implements the detection worker loop and the session
// controller that starts and stops it.
package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
	"github.com/eliteGoblin/drowsyguard/internal/metrics"
	"github.com/eliteGoblin/drowsyguard/internal/usecase"
)

// WorkerResult summarises one worker run.
type WorkerResult struct {
	Frames    uint64
	EndReason domain.EndReason
}

// Worker pulls frames from one capture handle, classifies them, updates the
// session tracker and publishes render requests. It owns the handle for the
// duration of Run and releases it before returning.
type Worker struct {
	sessionID  string
	handle     domain.CaptureHandle
	classifier domain.FrameClassifier
	tracker    *usecase.Tracker
	sound      domain.AlarmSound
	renders    chan<- domain.RenderRequest
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewWorker creates a detection worker bound to an open capture handle.
func NewWorker(
	sessionID string,
	handle domain.CaptureHandle,
	classifier domain.FrameClassifier,
	tracker *usecase.Tracker,
	sound domain.AlarmSound,
	renders chan<- domain.RenderRequest,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		sessionID:  sessionID,
		handle:     handle,
		classifier: classifier,
		tracker:    tracker,
		sound:      sound,
		renders:    renders,
		metrics:    m,
		logger:     logger.With(zap.String("session_id", sessionID)),
	}
}

// Run executes the detection loop until the frame source fails or ctx is
// canceled. Cancellation is only observed between iterations.
func (w *Worker) Run(ctx context.Context) WorkerResult {
	defer w.release()

	w.logger.Info("detection worker started")

	var frames uint64
	for {
		frame, err := w.handle.ReadFrame()
		if err != nil {
			w.metrics.ReadFailures.Add(1)
			w.logger.Warn("could not read frame, ending session",
				zap.Uint64("frames", frames),
				zap.Error(err))
			return WorkerResult{Frames: frames, EndReason: domain.EndOfStream}
		}
		frames++

		w.process(frame)

		if ctx.Err() != nil {
			w.logger.Info("detection worker stopping", zap.Uint64("frames", frames))
			return WorkerResult{Frames: frames, EndReason: domain.EndStopped}
		}
	}
}

// process runs one classify -> score -> alarm -> render iteration.
func (w *Worker) process(frame domain.Frame) {
	start := time.Now()

	cls := w.classifier.Classify(frame)
	obs := w.tracker.Observe(cls.State)

	w.metrics.ObserveFused(cls.State)
	w.metrics.Score.Store(int64(obs.Score))
	w.metrics.ObserveProcessLatency(time.Since(start))

	if obs.Alarm.Triggered {
		w.alert(frame.Seq, obs)
	}

	w.publish(domain.RenderRequest{
		SessionID:      w.sessionID,
		Frame:          frame,
		Classification: cls,
		Score:          obs.Score,
		Triggered:      obs.Alarm.Triggered,
		Border:         obs.Alarm.Border,
		Alarm:          w.tracker.Snapshot().Alarm,
	})
}

// alert fires the alarm side effects for a triggering iteration.
func (w *Worker) alert(seq uint64, obs usecase.Observation) {
	snap := w.tracker.Snapshot()
	w.metrics.AlarmTicks.Add(1)

	if obs.Alarm.Entered {
		w.logger.Warn("drowsiness alarm raised",
			zap.Uint64("frame", seq),
			zap.Int("score", obs.Score))
	}
	w.logger.Info("drowsiness detected",
		zap.Uint64("frame", seq),
		zap.Int("score", obs.Score),
		zap.Int("intensity", obs.Alarm.Border),
		zap.Int("alarm_ticks", snap.Alarm.AlarmTicks))

	w.metrics.SoundRequests.Add(1)
	w.sound.PlayAsync()
}

// publish hands a render request to the control surface without blocking.
func (w *Worker) publish(req domain.RenderRequest) {
	select {
	case w.renders <- req:
	default:
		w.metrics.RenderDropped.Add(1)
	}
}

func (w *Worker) release() {
	if err := w.handle.Release(); err != nil {
		w.logger.Warn("failed to release capture device", zap.Error(err))
		return
	}
	w.logger.Debug("capture device released")
}
