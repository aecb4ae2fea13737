package console

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// LogRenderer implements domain.Renderer without a display. Frames are
// logged at debug level and alarm frames at info level.
type LogRenderer struct {
	logger *zap.Logger
}

// NewLogRenderer creates a headless renderer.
func NewLogRenderer(logger *zap.Logger) *LogRenderer {
	return &LogRenderer{logger: logger}
}

func (r *LogRenderer) Render(req domain.RenderRequest) error {
	fields := []zap.Field{
		zap.String("session_id", req.SessionID),
		zap.Uint64("frame", req.Frame.Seq),
		zap.String("state", req.Classification.State.String()),
		zap.Int("score", req.Score),
		zap.Int("faces", len(req.Classification.Faces)),
	}
	if req.Triggered {
		r.logger.Info("drowsiness alarm", append(fields,
			zap.Int("intensity", req.Border),
			zap.Int("alarm_ticks", req.Alarm.AlarmTicks))...)
		return nil
	}
	r.logger.Debug("frame", fields...)
	return nil
}

func (r *LogRenderer) Close() error {
	return nil
}

var _ domain.Renderer = (*LogRenderer)(nil)
