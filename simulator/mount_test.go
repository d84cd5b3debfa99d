package simulator

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/w1xm/mount_interface/catalog"
	"github.com/w1xm/mount_interface/mount"
	"github.com/w1xm/mount_interface/transport"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startMount(t *testing.T, ctx context.Context, speed float64) (*Simulator, *mount.Mount) {
	t.Helper()
	sim, conn := New()
	sim.SetSpeed(speed)
	go sim.Run(ctx)
	line := transport.NewPipe(ctx, conn, transport.Config{
		ReplyTimeout: time.Second,
		NoReply:      catalog.NoReply,
	})
	t.Cleanup(func() { line.Close() })
	m, err := mount.New(line, mount.Options{Timing: mount.Timing{
		StepDelay:     time.Millisecond,
		MatchInterval: 100 * time.Millisecond,
	}})
	if err != nil {
		t.Fatalf("mount.New: %v", err)
	}
	m.Start(ctx)
	t.Cleanup(m.Close)
	return sim, m
}

func TestMountEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim, m := startMount(t, ctx, 50)

	waitFor(t, "parked", func() bool { return m.Status() == catalog.Parked })
	if err := m.Unpark(ctx); err != nil {
		t.Fatalf("Unpark: %v", err)
	}
	waitFor(t, "tracking", func() bool { return m.Status() == catalog.Tracking })

	// One hour east of the meridian.
	ra := wrapHours(sim.SiderealTime() + 1)
	if err := m.Slew(ctx, ra, 30); err != nil {
		t.Fatalf("Slew: %v", err)
	}
	waitFor(t, "slew to finish", func() bool {
		s := m.State()
		return catalog.Classify(s.Status) == catalog.Tracking &&
			math.Abs(hourDiff(s.TelescopeRA, ra)) < 1e-3 && math.Abs(s.TelescopeDec-30) < 1e-3
	})
	if s := m.State(); math.Abs(hourDiff(s.TargetRA, ra)) > 1e-3 || math.Abs(s.TargetDec-30) > 1e-3 {
		t.Errorf("target = %v %v, want %v 30", s.TargetRA, s.TargetDec, ra)
	}

	if err := m.Park(ctx); err != nil {
		t.Fatalf("Park: %v", err)
	}
	waitFor(t, "parked again", func() bool { return m.Status() == catalog.Parked })
}

func TestMountFlipsBeforeLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim, m := startMount(t, ctx, 20)

	// Tracking on the east pier, 40 minutes from the meridian limit.
	sim.mu.Lock()
	sim.mount.status = catalog.CodeTracking
	sim.mount.tracking = true
	sim.mount.ra = wrapHours(sim.mount.lst - 10.0/60/15)
	sim.mount.dec = 45
	sim.mu.Unlock()

	waitFor(t, "flip", func() bool {
		sim.mu.Lock()
		defer sim.mu.Unlock()
		return sim.mount.pierWest && sim.mount.status == catalog.CodeTracking
	})
	waitFor(t, "poll after flip", func() bool { return m.State().TrackingMinutes > 75 })
	if w := m.Warning(); w.Text != "" {
		t.Errorf("unexpected warning %q", w.Text)
	}
}
