package usecase

import (
	"sync"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// Observation is the result of feeding one frame's fused state to a Tracker.
type Observation struct {
	Score int
	Alarm AlarmTick
}

// TrackerSnapshot is a consistent view of score and alarm.
type TrackerSnapshot struct {
	Score     int
	PeakScore int
	Alarm     domain.AlarmSnapshot
}

// Tracker owns the score and alarm of one session.
// Observe is called by the detection worker only; Snapshot may be called
// from any goroutine.
type Tracker struct {
	mu    sync.Mutex
	score *Score
	alarm *Alarm
	peak  int
}

// NewTracker creates a tracker with a zero score and a quiet alarm.
func NewTracker(scoreCap int, policy UnknownPolicy, alarm AlarmConfig) *Tracker {
	return &Tracker{
		score: NewScore(scoreCap, policy),
		alarm: NewAlarm(alarm),
	}
}

// Observe applies the score rule and then ticks the alarm.
func (t *Tracker) Observe(state domain.FusedState) Observation {
	t.mu.Lock()
	defer t.mu.Unlock()

	score := t.score.Apply(state)
	if score > t.peak {
		t.peak = score
	}
	return Observation{
		Score: score,
		Alarm: t.alarm.Tick(score),
	}
}

// Snapshot returns the current score and alarm state.
func (t *Tracker) Snapshot() TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return TrackerSnapshot{
		Score:     t.score.Value(),
		PeakScore: t.peak,
		Alarm:     t.alarm.Snapshot(),
	}
}
