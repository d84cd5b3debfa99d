package mount

import (
	"context"
	"sync"
	"time"

	"github.com/w1xm/mount_interface/catalog"
)

// State is a snapshot of the polled device state.
type State struct {
	// Right ascensions are in hours, declinations in degrees.
	TargetRA, TargetDec       float64
	TelescopeRA, TelescopeDec float64
	// Status is the raw mount status code, -1 when disconnected.
	Status int
	// DomeAzimuth is in degrees, catalog.DomeUnknown without a dome.
	DomeAzimuth float64
	Shutter     int
	// TrackingMinutes is the estimated time until the meridian limit.
	TrackingMinutes int
	Updated         time.Time
}

func DefaultState() State {
	return State{
		Status:          catalog.CodeDisconnected,
		DomeAzimuth:     catalog.DomeUnknown,
		Shutter:         catalog.ShutterClosed,
		TrackingMinutes: 100,
	}
}

// stateHolder is written only by the poll loop. Each field is set under the
// lock on its own, so a snapshot may mix two poll cycles.
type stateHolder struct {
	mu      sync.RWMutex
	state   State
	changed chan struct{}
}

func newStateHolder() *stateHolder {
	return &stateHolder{state: DefaultState(), changed: make(chan struct{})}
}

func (h *stateHolder) snapshot() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *stateHolder) set(f func(*State)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f(&h.state)
}

func (h *stateHolder) reset() {
	h.set(func(s *State) { *s = DefaultState() })
}

// publish marks the end of a poll cycle and wakes watchers.
func (h *stateHolder) publish(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state.Updated = now
	close(h.changed)
	h.changed = make(chan struct{})
}

// Watcher delivers one snapshot per completed poll cycle.
type Watcher struct {
	h       *stateHolder
	changed chan struct{}
}

func (h *stateHolder) watch() *Watcher {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return &Watcher{h: h, changed: h.changed}
}

// Next waits for the next completed poll cycle, then returns its snapshot.
func (w *Watcher) Next(ctx context.Context) (State, error) {
	select {
	case <-ctx.Done():
		return State{}, ctx.Err()
	case <-w.changed:
	}
	w.h.mu.RLock()
	defer w.h.mu.RUnlock()
	w.changed = w.h.changed
	return w.h.state, nil
}
