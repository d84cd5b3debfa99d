package mount

import (
	"fmt"
	"time"
)

// Timing collects the cadence and retry knobs of the poll loop and the
// command arbiter.
type Timing struct {
	// StepDelay is slept after each poll step.
	StepDelay time.Duration
	// MatchInterval is the wait between two looks at the response matcher.
	MatchInterval time.Duration
	// EmptyAttempts bounds the waits while the matcher holds nothing.
	EmptyAttempts int
	// MatchAttempts bounds the waits once the matcher holds data.
	MatchAttempts int
	// ResponseTTL is the age after which an unclaimed response is discarded.
	ResponseTTL time.Duration
	// MatcherCapacity bounds the number of unclaimed responses.
	MatcherCapacity int
}

func DefaultTiming() Timing {
	return Timing{
		StepDelay:       10 * time.Millisecond,
		MatchInterval:   500 * time.Millisecond,
		EmptyAttempts:   5,
		MatchAttempts:   10,
		ResponseTTL:     60 * time.Second,
		MatcherCapacity: 64,
	}
}

// withDefaults fills unset fields from DefaultTiming.
func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.StepDelay <= 0 {
		t.StepDelay = d.StepDelay
	}
	if t.MatchInterval <= 0 {
		t.MatchInterval = d.MatchInterval
	}
	if t.EmptyAttempts <= 0 {
		t.EmptyAttempts = d.EmptyAttempts
	}
	if t.MatchAttempts <= 0 {
		t.MatchAttempts = d.MatchAttempts
	}
	if t.ResponseTTL <= 0 {
		t.ResponseTTL = d.ResponseTTL
	}
	if t.MatcherCapacity <= 0 {
		t.MatcherCapacity = d.MatcherCapacity
	}
	return t
}

// Thresholds are minutes of tracking left before the meridian limit.
type Thresholds struct {
	// Warn announces an upcoming flip.
	Warn int
	// Flip triggers a meridian flip.
	Flip int
	// Stop halts the mount.
	Stop int
}

func DefaultThresholds() Thresholds {
	return Thresholds{Warn: 75, Flip: 60, Stop: 30}
}

func (t Thresholds) Validate() error {
	if t.Flip >= t.Warn {
		return fmt.Errorf("flip threshold %d must be below warn threshold %d", t.Flip, t.Warn)
	}
	if t.Stop >= t.Flip {
		return fmt.Errorf("stop threshold %d must be below flip threshold %d", t.Stop, t.Flip)
	}
	return nil
}
