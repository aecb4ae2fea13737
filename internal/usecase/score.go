// Package usecase contains the drowsiness business logic: per-frame eye
// classification, the hysteresis score and the alarm state machine.
package usecase

import (
	"fmt"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// UnknownPolicy decides how the score reacts to frames where the eyes
// could not be observed.
type UnknownPolicy string

const (
	// UnknownDecrement treats Unknown like NotBothClosed.
	UnknownDecrement UnknownPolicy = "decrement"
	// UnknownHold leaves the score unchanged on Unknown.
	UnknownHold UnknownPolicy = "hold"
)

// ParseUnknownPolicy validates a policy name.
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch UnknownPolicy(s) {
	case UnknownDecrement, UnknownHold:
		return UnknownPolicy(s), nil
	default:
		return "", fmt.Errorf("invalid unknown policy %q (want %q or %q)", s, UnknownDecrement, UnknownHold)
	}
}

// Score is a saturating counter floored at 0. A cap <= 0 means no ceiling.
type Score struct {
	value  int
	cap    int
	policy UnknownPolicy
}

// NewScore creates a zero score.
func NewScore(cap int, policy UnknownPolicy) *Score {
	if policy == "" {
		policy = UnknownDecrement
	}
	return &Score{cap: cap, policy: policy}
}

// Apply updates the score for one fused observation and returns the new value.
func (s *Score) Apply(state domain.FusedState) int {
	switch state {
	case domain.FusedBothClosed:
		s.value++
		if s.cap > 0 && s.value > s.cap {
			s.value = s.cap
		}
	case domain.FusedNotBothClosed:
		s.decrement()
	default:
		if s.policy != UnknownHold {
			s.decrement()
		}
	}
	return s.value
}

func (s *Score) decrement() {
	if s.value > 0 {
		s.value--
	}
}

// Value returns the current score.
func (s *Score) Value() int {
	return s.value
}

// Reset returns the score to 0.
func (s *Score) Reset() {
	s.value = 0
}
