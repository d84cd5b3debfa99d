package mount

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/w1xm/mount_interface/catalog"
)

func (m *Mount) run(ctx context.Context) {
	defer close(m.done)
	for m.active.Load() && ctx.Err() == nil {
		m.pollOnce(ctx)
	}
}

// pollOnce refreshes every field once, then runs the safety monitor. A
// missing reply sets the field's default; a malformed one keeps the old value.
func (m *Mount) pollOnce(ctx context.Context) {
	if !m.transport.Connected() {
		m.state.reset()
	}

	dRA, dDec := 0.0, 0.0
	if m.Correction.Enabled() {
		dRA, dDec = m.Correction.Last()
	}
	refresh(m, ctx, catalog.GetTargetRA, catalog.ParseHours, 0, func(s *State, v float64) {
		s.TargetRA = wrapHours(v - dRA)
	})
	refresh(m, ctx, catalog.GetTargetDec, catalog.ParseDegrees, 0, func(s *State, v float64) {
		s.TargetDec = v - dDec
	})
	m.pause(ctx)

	refresh(m, ctx, catalog.GetTelescopeRA, catalog.ParseHours, 0, func(s *State, v float64) {
		s.TelescopeRA = v
	})
	refresh(m, ctx, catalog.GetTelescopeDec, catalog.ParseDegrees, 0, func(s *State, v float64) {
		s.TelescopeDec = v
	})
	m.pause(ctx)
	refresh(m, ctx, catalog.GetStatus, catalog.ParseInt, catalog.CodeDisconnected, func(s *State, v int) {
		s.Status = v
	})
	m.pause(ctx)
	refresh(m, ctx, catalog.GetDomeAzimuth, catalog.ParseDomeAzimuth, catalog.DomeUnknown, func(s *State, v float64) {
		s.DomeAzimuth = v
	})
	m.pause(ctx)
	refresh(m, ctx, catalog.GetShutter, catalog.ParseInt, catalog.ShutterClosed, func(s *State, v int) {
		s.Shutter = v
	})
	m.pause(ctx)
	refresh(m, ctx, catalog.GetTrackingTime, catalog.ParseInt, DefaultState().TrackingMinutes, func(s *State, v int) {
		s.TrackingMinutes = v
	})
	m.pause(ctx)

	snapshot := m.state.snapshot()
	if m.lit.Load() && catalog.Classify(snapshot.Status) != catalog.Slewing {
		m.setLights(false)
	}
	m.protect(ctx, snapshot.TrackingMinutes)
	m.state.publish(time.Now())
}

// refresh reads one field through the arbiter after yielding to any
// foreground caller.
func refresh[T any](m *Mount, ctx context.Context, command string, parse func(string) (T, error), def T, set func(*State, T)) {
	if err := m.arbiter.Yield(ctx); err != nil {
		return
	}
	reply, err := m.arbiter.submit(ctx, command)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		m.state.set(func(s *State) { set(s, def) })
		return
	}
	v, err := parse(reply)
	if err != nil {
		log.Printf("%s: %v", command, err)
		return
	}
	m.state.set(func(s *State) { set(s, v) })
}

func (m *Mount) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.timing.StepDelay):
	}
}

// protect carries out the safety monitor's decision for minutes of tracking
// left. A stop warning is posted after, and so replaces, a flip warning.
func (m *Mount) protect(ctx context.Context, minutes int) {
	action := m.monitor.Evaluate(minutes)
	if action == ActionNone {
		return
	}
	log.Printf("%d minutes to meridian limit: %v", minutes, action)
	if action&ActionInform != 0 {
		m.notices.PostInformation(informFlip)
	}
	if action&ActionFlip != 0 && !m.flipAsync(minutes) {
		m.notices.PostWarning(warnDamage(minutes))
	}
	if action&ActionStop != 0 {
		if err := m.Stop(ctx); err != nil {
			log.Printf("emergency stop: %v", err)
		}
		m.notices.PostWarning(warnStopped)
	}
}

// flipAsync re-slews to the telescope's current coordinates, which past the
// meridian limit the mount reaches from the opposite pier side. It returns
// false when no flip could be dispatched. Failures of the slew itself are
// posted as warnings once known.
func (m *Mount) flipAsync(minutes int) bool {
	s := m.state.snapshot()
	if s.Status == catalog.CodeDisconnected || !m.transport.Connected() {
		return false
	}
	// A flip already dispatched shows up as a slew; issuing another would
	// restart it.
	if catalog.Classify(s.Status) == catalog.Slewing || !m.flipping.CompareAndSwap(false, true) {
		return true
	}
	gen := m.stops.Load()
	go func() {
		defer m.flipping.Store(false)
		err := m.slew(context.Background(), s.TelescopeRA, s.TelescopeDec, gen)
		switch {
		case err == nil:
			log.Printf("flip dispatched to %s %s", catalog.FormatHours(s.TelescopeRA), catalog.FormatDegrees(s.TelescopeDec))
		case errors.Is(err, errStopped):
			log.Printf("flip abandoned: mount stopped")
		default:
			log.Printf("flip: %v", err)
			m.warnUnlessStopped(gen, warnDamage(minutes))
		}
	}()
	return true
}

// warnUnlessStopped posts a flip warning unless a stop was issued after gen,
// whose own warning takes precedence.
func (m *Mount) warnUnlessStopped(gen uint64, text string) {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()
	if m.stops.Load() != gen {
		log.Printf("flip warning dropped: mount stopped")
		return
	}
	m.notices.PostWarning(text)
}
