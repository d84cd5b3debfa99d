package mount

import "fmt"

// Action is a set of steps the safety monitor asks the mount to take.
type Action uint8

const (
	ActionInform Action = 1 << iota
	ActionFlip
	ActionStop

	ActionNone Action = 0
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionInform:
		return "inform"
	case ActionFlip:
		return "flip"
	case ActionFlip | ActionStop:
		return "flip+stop"
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

const (
	informFlip  = "telescope will flip in 15 min"
	warnStopped = "Telescope stops"
)

func warnDamage(minutes int) string {
	return fmt.Sprintf("Warning: telescope can be damaged in max. %d minutes", minutes)
}

// Monitor is the meridian safety state machine. It is driven by the poll
// loop only and is not safe for concurrent use.
type Monitor struct {
	thresholds Thresholds
	// warned is set once the upcoming flip has been announced for the
	// current approach to the limit.
	warned bool
}

func NewMonitor(t Thresholds) *Monitor {
	return &Monitor{thresholds: t}
}

// Evaluate returns the actions for minutes of tracking left.
//
// Below the flip threshold a flip is requested on every call, and below the
// stop threshold a stop as well; both clear warned. Between the flip and
// warn thresholds the flip is announced once. Above the warn threshold
// warned is cleared so the next approach is announced again.
func (m *Monitor) Evaluate(minutes int) Action {
	switch {
	case minutes < m.thresholds.Flip:
		m.warned = false
		if minutes < m.thresholds.Stop {
			return ActionFlip | ActionStop
		}
		return ActionFlip
	case minutes <= m.thresholds.Warn:
		if m.warned {
			return ActionNone
		}
		m.warned = true
		return ActionInform
	default:
		m.warned = false
		return ActionNone
	}
}

// Warned reports whether the upcoming flip has been announced.
func (m *Monitor) Warned() bool {
	return m.warned
}
