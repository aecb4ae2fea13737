package usecase

import (
	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// AlarmConfig holds the alarm thresholds.
type AlarmConfig struct {
	Threshold    int // Alarm fires while score > Threshold
	MinIntensity int // Thinnest border
	MaxIntensity int // Thickest border
	Step         int // Border change per alarm tick
}

// DefaultAlarmConfig returns the default alarm configuration.
func DefaultAlarmConfig() AlarmConfig {
	return AlarmConfig{
		Threshold:    15,
		MinIntensity: 2,
		MaxIntensity: 16,
		Step:         2,
	}
}

// AlarmTick is the outcome of feeding one score into the alarm.
type AlarmTick struct {
	// Triggered is true when score > threshold on this tick.
	Triggered bool
	// Entered is true only on the Quiet -> Alerting transition.
	Entered bool
	// Border is the border thickness to draw, 0 when not triggered.
	Border int
}

// Alarm is the Quiet/Alerting state machine with a pulsing border.
// Once Alerting it stays Alerting until Reset.
type Alarm struct {
	config    AlarmConfig
	level     domain.AlarmLevel
	intensity int
	border    int
	falling   bool
	ticks     int
}

// NewAlarm creates a quiet alarm.
func NewAlarm(config AlarmConfig) *Alarm {
	a := &Alarm{config: config}
	a.Reset()
	return a
}

// Tick feeds the current score into the state machine.
func (a *Alarm) Tick(score int) AlarmTick {
	if score <= a.config.Threshold {
		return AlarmTick{}
	}

	tick := AlarmTick{Triggered: true, Border: a.intensity}
	if a.level == domain.AlarmQuiet {
		a.level = domain.AlarmAlerting
		tick.Entered = true
	}
	a.border = a.intensity
	a.ticks++
	a.advance()
	return tick
}

// advance moves the intensity one step along the min..max..min sawtooth.
func (a *Alarm) advance() {
	lo, hi, step := a.config.MinIntensity, a.config.MaxIntensity, a.config.Step
	if step <= 0 || lo >= hi {
		return
	}

	if a.intensity >= hi {
		a.falling = true
	} else if a.intensity <= lo {
		a.falling = false
	}

	if a.falling {
		a.intensity -= step
	} else {
		a.intensity += step
	}
	a.intensity = clamp(a.intensity, lo, hi)
}

// Snapshot returns the current alarm view.
func (a *Alarm) Snapshot() domain.AlarmSnapshot {
	return domain.AlarmSnapshot{
		Level:      a.level,
		Border:     a.border,
		Intensity:  a.intensity,
		AlarmTicks: a.ticks,
	}
}

// Reset returns the alarm to Quiet at minimum intensity.
func (a *Alarm) Reset() {
	a.level = domain.AlarmQuiet
	a.intensity = a.config.MinIntensity
	a.border = 0
	a.falling = false
	a.ticks = 0
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
