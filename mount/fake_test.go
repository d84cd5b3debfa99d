package mount

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/w1xm/mount_interface/transport"
)

// fakeTransport answers commands from a prefix table and records the order
// and concurrency of calls.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []string
	replies map[string]string
	// hold blocks a command until its channel is closed.
	hold map[string]chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
	down        atomic.Bool
}

func newFakeTransport(replies map[string]string) *fakeTransport {
	return &fakeTransport{replies: replies, hold: make(map[string]chan struct{})}
}

func (f *fakeTransport) Send(ctx context.Context, command string) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, command)
	hold := f.hold[command]
	f.mu.Unlock()
	if hold != nil {
		<-hold
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.down.Load() {
		return "", transport.ErrNotConnected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	best := ""
	reply, ok := "", false
	for prefix, r := range f.replies {
		if strings.HasPrefix(command, prefix) && len(prefix) >= len(best) {
			best, reply, ok = prefix, r, true
		}
	}
	if !ok {
		return "", transport.ErrNoResponse
	}
	return reply, nil
}

func (f *fakeTransport) Connected() bool { return !f.down.Load() }
func (f *fakeTransport) Close() error    { return nil }

func (f *fakeTransport) setReply(prefix, reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[prefix] = reply
}

func (f *fakeTransport) holdCommand(command string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.hold[command] = ch
	return ch
}

func (f *fakeTransport) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) sent(command string) bool {
	for _, c := range f.history() {
		if c == command {
			return true
		}
	}
	return false
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// fastTiming keeps tests quick while preserving the attempt counts.
func fastTiming() Timing {
	return Timing{
		StepDelay:     time.Millisecond,
		MatchInterval: 5 * time.Millisecond,
		EmptyAttempts: 5,
		MatchAttempts: 10,
		ResponseTTL:   time.Minute,
	}
}

// mountReplies is a healthy mount tracking near the meridian.
func mountReplies() map[string]string {
	return map[string]string{
		":U2#:Gr#": "05:30:00.00#",
		":U2#:Gd#": "+20*00:00.0#",
		":U2#:GR#": "05:29:30.00#",
		":U2#:GD#": "+19*59:00.0#",
		":Gstat#":  "0#",
		":GDA#":    "1800#",
		":GDS#":    "2#",
		":Gmte#":   "0120#",
		":Sr":      "1#",
		":Sd":      "1#",
		":MS#":     "0#",
		":STOP#":   "",
		":FLIP#":   "1#",
	}
}
