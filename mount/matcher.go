package mount

import (
	"context"
	"sync"
	"time"

	"github.com/w1xm/mount_interface/transport"
)

// ErrNoResponse is returned when no reply for a request arrives in time.
var ErrNoResponse = transport.ErrNoResponse

// Response is a reply tagged with the id of the request that produced it.
type Response struct {
	ID      uint64
	Payload string
	// Err is the transport failure, if any.
	Err     error
	Arrived time.Time
}

// Matcher correlates replies with requests. It is a bounded map keyed by
// request id whose entries expire after Timing.ResponseTTL.
type Matcher struct {
	timing Timing
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	entries map[uint64]Response
	// wake is closed and replaced on every Put.
	wake chan struct{}
}

func NewMatcher(timing Timing) *Matcher {
	return &Matcher{
		timing:  timing.withDefaults(),
		now:     time.Now,
		after:   time.After,
		entries: make(map[uint64]Response),
		wake:    make(chan struct{}),
	}
}

// Put stores a response, evicting the oldest entry when full.
func (m *Matcher) Put(r Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[r.ID]; !ok && len(m.entries) >= m.timing.MatcherCapacity {
		var oldest uint64
		first := true
		for id, e := range m.entries {
			if first || e.Arrived.Before(m.entries[oldest].Arrived) {
				oldest, first = id, false
			}
		}
		delete(m.entries, oldest)
	}
	m.entries[r.ID] = r
	close(m.wake)
	m.wake = make(chan struct{})
}

// Len returns the number of unclaimed responses.
func (m *Matcher) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Prune drops responses older than the TTL and returns how many it dropped.
func (m *Matcher) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prune(m.now())
}

func (m *Matcher) prune(now time.Time) int {
	n := 0
	for id, e := range m.entries {
		if now.Sub(e.Arrived) >= m.timing.ResponseTTL {
			delete(m.entries, id)
			n++
		}
	}
	return n
}

// take prunes stale entries, then removes and returns the response for id.
func (m *Matcher) take(id uint64) (Response, bool) {
	m.prune(m.now())
	r, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
	}
	return r, ok
}

// Await waits for the response to request id. While the matcher is empty it
// gives up after EmptyAttempts intervals; once it has seen data it retries
// up to MatchAttempts intervals. New arrivals trigger a rescan without
// using up an attempt.
func (m *Matcher) Await(ctx context.Context, id uint64) (Response, error) {
	var emptyWaits, matchWaits int
	seen := false
	for {
		m.mu.Lock()
		r, ok := m.take(id)
		empty := len(m.entries) == 0
		wake := m.wake
		m.mu.Unlock()
		if ok {
			return r, nil
		}
		if !empty {
			seen = true
		}
		if seen && matchWaits >= m.timing.MatchAttempts {
			return Response{}, ErrNoResponse
		}
		if !seen && emptyWaits >= m.timing.EmptyAttempts {
			return Response{}, ErrNoResponse
		}
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-wake:
		case <-m.after(m.timing.MatchInterval):
			if seen {
				matchWaits++
			} else {
				emptyWaits++
			}
		}
	}
}

// Run prunes expired responses on a timer until ctx is canceled.
func (m *Matcher) Run(ctx context.Context) {
	t := time.NewTicker(m.timing.ResponseTTL / 4)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Prune()
		}
	}
}
