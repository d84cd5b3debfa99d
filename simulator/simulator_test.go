package simulator

import (
	"testing"

	"github.com/w1xm/mount_interface/catalog"
)

type exchange struct {
	cmd   string
	reply string
	ok    bool
}

func run(t *testing.T, s *Simulator, exchanges []exchange) {
	t.Helper()
	for _, e := range exchanges {
		reply, ok := s.handle(e.cmd)
		if reply != e.reply || ok != e.ok {
			t.Errorf("handle(%q) = %q, %v; want %q, %v", e.cmd, reply, ok, e.reply, e.ok)
		}
	}
}

// settle steps the simulation until cond holds.
func settle(t *testing.T, s *Simulator, what string, cond func(*model) bool) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		s.mu.Lock()
		done := cond(&s.mount)
		s.mu.Unlock()
		if done {
			return
		}
		s.step()
	}
	t.Fatalf("simulation never reached %s", what)
}

func TestHandle(t *testing.T) {
	s, conn := New()
	defer conn.Close()
	run(t, s, []exchange{
		{":U2", "", false},
		{":Gstat", "5#", true},
		{":GR", "06:00:00.00#", true},
		{":GD", "+90*00:00.0#", true},
		{":GDA", "1800#", true},
		{":GDS", "1#", true},
		{":Glmt", "10#", true},
		{":MS", "4Mount Parked                #", true},
		{":Sd+95*00:00", "0#", true},
		{":Sdnorth", "0#", true},
		{":Sr07:30:00", "1#", true},
		{":Gr", "07:30:00.00#", true},
		{":Slmt40", "0#", true},
		{":Slmt05", "1#", true},
		{":Glmt", "05#", true},
		{":Suaf1", "1#", true},
		{":Sw08", "", false},
		{":STOP", "", false},
		{":Gstat", "1#", true},
		{":XYZ", "", false},
	})
	if s.mount.slewRate != 8 {
		t.Errorf("slewRate = %v, want 8", s.mount.slewRate)
	}
}

func TestSlewAndTrack(t *testing.T) {
	s, conn := New()
	defer conn.Close()
	s.SetSpeed(100)
	ra := wrapHours(s.SiderealTime() - 1)
	run(t, s, []exchange{
		{":PO", "", false},
		{":Gstat", "0#", true},
		{":Sr" + catalog.FormatHours(ra), "1#", true},
		{":Sd+30*00:00.0", "1#", true},
		{":MS", "0#", true},
		{":Gstat", "6#", true},
	})
	settle(t, s, "tracking", func(m *model) bool { return m.status == catalog.CodeTracking })
	if !s.mount.pierWest {
		t.Error("target west of the meridian was not reached on the west pier")
	}
	if d := hourDiff(s.mount.ra, ra); d > 1e-6 || d < -1e-6 {
		t.Errorf("ra = %v, want %v", s.mount.ra, ra)
	}
	// One hour past the meridian leaves five hours on the west pier.
	if got := s.mount.minutesToLimit(); got < 290 || got > 300 {
		t.Errorf("minutesToLimit() = %d, want about 300", got)
	}
}

func TestSlewBelowHorizon(t *testing.T) {
	s, conn := New()
	defer conn.Close()
	run(t, s, []exchange{
		{":PO", "", false},
		{":Sd-50*00:00.0", "1#", true},
		{":MS", "1Object Below Horizon        #", true},
		{":Gstat", "0#", true},
	})
}

func TestFlip(t *testing.T) {
	s, conn := New()
	defer conn.Close()
	s.SetSpeed(100)
	s.mount.status = catalog.CodeTracking
	s.mount.tracking = true
	s.mount.ra = wrapHours(s.mount.lst - 0.5)
	s.mount.dec = 20
	if got := s.mount.minutesToLimit(); got < 9 || got > 10 {
		t.Fatalf("minutesToLimit() = %d before flip, want about 10", got)
	}

	run(t, s, []exchange{{":FLIP", "1#", true}})
	settle(t, s, "flip", func(m *model) bool { return m.status == catalog.CodeTracking })
	if !s.mount.pierWest {
		t.Fatal("pier side unchanged after flip")
	}
	if got := s.mount.minutesToLimit(); got < 320 {
		t.Errorf("minutesToLimit() = %d after flip, want over 320", got)
	}
	run(t, s, []exchange{{":FLIP", "0#", true}})
}

func TestTrackingLimit(t *testing.T) {
	s, conn := New()
	defer conn.Close()
	s.mount.status = catalog.CodeTracking
	s.mount.tracking = true
	s.mount.ra = wrapHours(s.mount.lst - 0.7)
	s.step()
	if s.mount.status != catalog.CodeOutsideLimits || s.mount.tracking {
		t.Errorf("status = %d, tracking %v; want stopped outside limits", s.mount.status, s.mount.tracking)
	}
}

func TestPark(t *testing.T) {
	s, conn := New()
	defer conn.Close()
	s.SetSpeed(100)
	s.mount.status = catalog.CodeTracking
	s.mount.tracking = true
	s.mount.ra = wrapHours(s.mount.lst + 2)
	s.mount.dec = 10

	run(t, s, []exchange{
		{":hP", "", false},
		{":Gstat", "2#", true},
	})
	settle(t, s, "park", func(m *model) bool { return m.status == catalog.CodeParked })
	if s.mount.dec != 90 {
		t.Errorf("parked at dec %v, want 90", s.mount.dec)
	}
}

func TestShutter(t *testing.T) {
	s, conn := New()
	defer conn.Close()
	s.SetSpeed(100)
	run(t, s, []exchange{
		{":SDS2", "1#", true},
		{":GDS", "1#", true},
	})
	settle(t, s, "open shutter", func(m *model) bool { return m.shutter == catalog.ShutterOpen })
}
