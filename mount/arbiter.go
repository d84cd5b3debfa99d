package mount

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/w1xm/mount_interface/transport"
)

// Arbiter lets exactly one command be in flight on the transport. Foreground
// callers take the arbitration token before queueing for the link; the poll
// loop yields while the token is held.
type Arbiter struct {
	transport transport.Transport
	matcher   *Matcher

	// gate has capacity one and is full while a command is in flight. It is
	// released when the transport call returns, not when the submitter stops
	// waiting.
	gate   chan struct{}
	nextID atomic.Uint64

	mu      sync.Mutex
	waiting int
	// clear is closed while no foreground caller holds the token.
	clear chan struct{}
}

func NewArbiter(t transport.Transport, m *Matcher) *Arbiter {
	a := &Arbiter{
		transport: t,
		matcher:   m,
		gate:      make(chan struct{}, 1),
		clear:     make(chan struct{}),
	}
	close(a.clear)
	return a
}

func (a *Arbiter) takeToken() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.waiting == 0 {
		a.clear = make(chan struct{})
	}
	a.waiting++
}

func (a *Arbiter) releaseToken() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.waiting--
	if a.waiting == 0 {
		close(a.clear)
	}
}

// Waiting returns the number of foreground callers holding the token.
func (a *Arbiter) Waiting() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.waiting
}

// Yield blocks while any foreground caller holds the token.
func (a *Arbiter) Yield(ctx context.Context) error {
	a.mu.Lock()
	clear := a.clear
	a.mu.Unlock()
	select {
	case <-clear:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit sends command ahead of the poll loop and returns the reply.
// A missing reply is reported as ErrNoResponse; callers must treat any error
// as "unknown".
func (a *Arbiter) Submit(ctx context.Context, command string) (string, error) {
	a.takeToken()
	defer a.releaseToken()
	return a.submit(ctx, command)
}

// SubmitAsync submits command in the background and reports the outcome to
// done, which may be nil.
func (a *Arbiter) SubmitAsync(command string, done func(string, error)) {
	go func() {
		reply, err := a.Submit(context.Background(), command)
		if done != nil {
			done(reply, err)
		}
	}()
}

// submit runs one round trip without taking the token.
func (a *Arbiter) submit(ctx context.Context, command string) (string, error) {
	select {
	case a.gate <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	id := a.nextID.Add(1)
	start := time.Now()
	go func() {
		defer func() { <-a.gate }()
		// An in-flight transport call is never interrupted.
		payload, err := a.transport.Send(context.WithoutCancel(ctx), command)
		a.matcher.Put(Response{ID: id, Payload: payload, Err: err, Arrived: time.Now()})
	}()
	r, err := a.matcher.Await(ctx, id)
	if err != nil {
		log.Printf("%s (request %d): %v after %v", command, id, err, time.Since(start).Round(time.Millisecond))
		return "", err
	}
	if r.Err != nil {
		return "", r.Err
	}
	return r.Payload, nil
}
