// Package mount arbitrates a single command link between a background poll
// loop and foreground callers, and keeps the mount from tracking past its
// meridian limit.
package mount

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/w1xm/mount_interface/catalog"
	"github.com/w1xm/mount_interface/transport"
)

// Lights switches the dome lights. They are turned on while the mount slews.
type Lights interface {
	SetLights(on bool) error
}

type Options struct {
	Timing     Timing
	Thresholds Thresholds
	// Lights is optional.
	Lights Lights
}

type Mount struct {
	timing    Timing
	transport transport.Transport
	arbiter   *Arbiter
	matcher   *Matcher
	state     *stateHolder
	notices   Notices
	monitor   *Monitor
	lights    Lights

	Correction Correction

	// seqMu serializes multi-command foreground operations such as slews.
	seqMu sync.Mutex
	// stops counts issued stops; a slew started before a stop is abandoned.
	// stopMu orders stop increments against flip warnings.
	stops    atomic.Uint64
	stopMu   sync.Mutex
	flipping atomic.Bool
	lit      atomic.Bool

	active atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

func New(t transport.Transport, opts Options) (*Mount, error) {
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("safety thresholds: %w", err)
	}
	timing := opts.Timing.withDefaults()
	matcher := NewMatcher(timing)
	return &Mount{
		timing:    timing,
		transport: t,
		arbiter:   NewArbiter(t, matcher),
		matcher:   matcher,
		state:     newStateHolder(),
		monitor:   NewMonitor(opts.Thresholds),
		lights:    opts.Lights,
	}, nil
}

// Start runs the poll loop until Close is called or ctx is canceled.
func (m *Mount) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.active.Store(true)
	go m.matcher.Run(ctx)
	go m.run(ctx)
}

// Close stops the poll loop at the top of its next cycle and waits for it.
// The state is reset to defaults. The transport is left open.
func (m *Mount) Close() {
	if m.done == nil {
		return
	}
	m.active.Store(false)
	<-m.done
	m.cancel()
	m.state.reset()
}

// State returns a snapshot of the device state.
func (m *Mount) State() State {
	return m.state.snapshot()
}

// Status classifies the current status code.
func (m *Mount) Status() catalog.Status {
	if !m.transport.Connected() {
		return catalog.Disconnected
	}
	return catalog.Classify(m.state.snapshot().Status)
}

// Subscribe returns a watcher that yields one snapshot per poll cycle.
func (m *Mount) Subscribe() *Watcher {
	return m.state.watch()
}

func (m *Mount) Warning() Message         { return m.notices.Warning() }
func (m *Mount) Information() Message     { return m.notices.Information() }
func (m *Mount) ReadWarning() Message     { return m.notices.ReadWarning() }
func (m *Mount) ReadInformation() Message { return m.notices.ReadInformation() }

// Send submits a raw command ahead of the poll loop.
func (m *Mount) Send(ctx context.Context, command string) (string, error) {
	return m.arbiter.Submit(ctx, command)
}

var errStopped = errors.New("stopped during slew")

// Slew moves to ra (hours), dec (degrees) and tracks. With correction
// enabled the recorded slew error near the target is added.
func (m *Mount) Slew(ctx context.Context, ra, dec float64) error {
	if m.Correction.Enabled() {
		dRA, dDec := m.Correction.Estimate(ra, dec, time.Now())
		ra, dec = wrapHours(ra+dRA), dec+dDec
	}
	return m.slew(ctx, ra, dec, m.stops.Load())
}

// slew is abandoned before the final move command if a stop was issued
// after gen was read.
func (m *Mount) slew(ctx context.Context, ra, dec float64, gen uint64) error {
	m.seqMu.Lock()
	defer m.seqMu.Unlock()
	for _, set := range []string{catalog.SetTargetRA(ra), catalog.SetTargetDec(dec)} {
		reply, err := m.arbiter.Submit(ctx, set)
		if err != nil {
			return fmt.Errorf("%s: %w", set, err)
		}
		if !catalog.ParseAccepted(reply) {
			return fmt.Errorf("%s: rejected", set)
		}
	}
	if m.stops.Load() != gen {
		return errStopped
	}
	reply, err := m.arbiter.Submit(ctx, catalog.Slew)
	if err != nil {
		return fmt.Errorf("slew: %w", err)
	}
	if err := catalog.ParseSlew(reply); err != nil {
		return err
	}
	m.setLights(true)
	return nil
}

// Stop halts all movement including tracking.
func (m *Mount) Stop(ctx context.Context) error {
	m.stopMu.Lock()
	m.stops.Add(1)
	m.stopMu.Unlock()
	_, err := m.arbiter.Submit(ctx, catalog.Stop)
	return err
}

func (m *Mount) Park(ctx context.Context) error {
	_, err := m.arbiter.Submit(ctx, catalog.Park)
	if err == nil {
		m.setLights(true)
	}
	return err
}

func (m *Mount) Unpark(ctx context.Context) error {
	_, err := m.arbiter.Submit(ctx, catalog.Unpark)
	return err
}

// Flip asks the mount to flip to the other pier side on its own.
func (m *Mount) Flip(ctx context.Context) error {
	return m.accepted(ctx, catalog.Flip)
}

func (m *Mount) SetTracking(ctx context.Context, on bool) error {
	cmd := catalog.TrackingOff
	if on {
		cmd = catalog.TrackingOn
	}
	_, err := m.arbiter.Submit(ctx, cmd)
	return err
}

func (m *Mount) OpenShutter(ctx context.Context) error {
	return m.accepted(ctx, catalog.OpenShutter)
}

func (m *Mount) CloseShutter(ctx context.Context) error {
	return m.accepted(ctx, catalog.CloseShutter)
}

// SetMeridianLimit sets the tracking limit past the meridian, in degrees.
func (m *Mount) SetMeridianLimit(ctx context.Context, degrees int) error {
	return m.accepted(ctx, catalog.SetMeridianLimit(degrees))
}

// MeridianLimit reads the tracking limit past the meridian, in degrees.
func (m *Mount) MeridianLimit(ctx context.Context) (int, error) {
	reply, err := m.arbiter.Submit(ctx, catalog.GetMeridianLim)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", catalog.GetMeridianLim, err)
	}
	return catalog.ParseInt(reply)
}

func (m *Mount) SetUnattendedFlip(ctx context.Context, enabled bool) error {
	return m.accepted(ctx, catalog.SetUnattendedFlip(enabled))
}

func (m *Mount) SetSlewRate(ctx context.Context, rate int) error {
	if rate < 2 || rate > 15 {
		return fmt.Errorf("slew rate %d out of range 2..15", rate)
	}
	_, err := m.arbiter.Submit(ctx, catalog.SetSlewRate(rate))
	return err
}

// accepted submits a command answered with "1#" on success.
func (m *Mount) accepted(ctx context.Context, command string) error {
	reply, err := m.arbiter.Submit(ctx, command)
	if err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	if !catalog.ParseAccepted(reply) {
		return fmt.Errorf("%s: rejected (%q)", command, reply)
	}
	return nil
}

func (m *Mount) setLights(on bool) {
	if m.lights == nil || m.lit.Load() == on {
		return
	}
	if err := m.lights.SetLights(on); err != nil {
		log.Printf("dome lights: %v", err)
		return
	}
	m.lit.Store(on)
}
