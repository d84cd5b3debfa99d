// Package transport carries commands to the mount over a serial port or a
// TCP socket and returns the mount's '#'-terminated replies.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoResponse is returned when the mount does not answer within the reply timeout.
	ErrNoResponse = errors.New("no response")
	// ErrNotConnected is returned when no link to the mount is open.
	ErrNotConnected = errors.New("not connected")
)

// Transport sends one command and returns the raw reply.
type Transport interface {
	Send(ctx context.Context, command string) (string, error)
	Connected() bool
	Close() error
}

// DefaultReplyTimeout stays below the arbiter's default empty-queue wait of
// 2.5s.
const DefaultReplyTimeout = 2 * time.Second

type Config struct {
	// ReplyTimeout bounds the wait for a reply. Defaults to DefaultReplyTimeout.
	ReplyTimeout time.Duration
	// RetryDelay is the pause between reconnect attempts. Defaults to 1s.
	RetryDelay time.Duration
	// NoReply reports commands that the mount never answers.
	NoReply func(command string) bool
}

func (c Config) withDefaults() Config {
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = DefaultReplyTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 1 * time.Second
	}
	if c.NoReply == nil {
		c.NoReply = func(string) bool { return false }
	}
	return c
}

// link is a single open connection and its reader.
type link struct {
	conn   io.ReadWriteCloser
	frames chan string
	done   chan struct{}
	err    error
}

func newLink(conn io.ReadWriteCloser) *link {
	return &link{
		conn:   conn,
		frames: make(chan string, 16),
		done:   make(chan struct{}),
	}
}

func (lk *link) read() error {
	defer close(lk.done)
	br := bufio.NewReader(lk.conn)
	for {
		frame, err := br.ReadString('#')
		if err != nil {
			lk.err = err
			return fmt.Errorf("reading port: %w", err)
		}
		select {
		case lk.frames <- frame:
		default:
			log.Printf("dropping unsolicited reply %q", frame)
		}
	}
}

// Line is a Transport over any byte stream carrying the mount protocol.
type Line struct {
	cfg    Config
	cancel context.CancelFunc

	// sendMu serializes Send.
	sendMu sync.Mutex
	mu     sync.Mutex
	link   *link
}

func newLine(ctx context.Context, cfg Config) (*Line, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &Line{cfg: cfg.withDefaults(), cancel: cancel}, ctx
}

// Dial keeps a connection open using open, reconnecting after failures
// until ctx is canceled or Close is called.
func Dial(ctx context.Context, name string, cfg Config, open func(context.Context) (io.ReadWriteCloser, error)) *Line {
	l, ctx := newLine(ctx, cfg)
	go l.reconnectLoop(ctx, name, open)
	return l
}

// NewPipe runs the protocol over an already open connection. It does not
// reconnect.
func NewPipe(ctx context.Context, conn io.ReadWriteCloser, cfg Config) *Line {
	l, ctx := newLine(ctx, cfg)
	lk := newLink(conn)
	l.setLink(lk)
	go func() {
		if err := l.watch(ctx, lk); err != nil {
			log.Printf("pipe closed: %v", err)
		}
		l.setLink(nil)
	}()
	return l
}

func (l *Line) reconnectLoop(ctx context.Context, name string, open func(context.Context) (io.ReadWriteCloser, error)) {
	for {
		conn, err := open(ctx)
		if err != nil {
			log.Printf("opening %q: %v", name, err)
		} else {
			log.Printf("opened %q", name)
			lk := newLink(conn)
			l.setLink(lk)
			if err := l.watch(ctx, lk); err != nil {
				log.Printf("watching %q: %v", name, err)
			}
			l.setLink(nil)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.cfg.RetryDelay):
		}
	}
}

func (l *Line) watch(ctx context.Context, lk *link) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Close the connection when the context is canceled or the reader exits.
		select {
		case <-ctx.Done():
		case <-lk.done:
		}
		return lk.conn.Close()
	})
	g.Go(lk.read)
	return g.Wait()
}

func (l *Line) setLink(lk *link) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.link = lk
}

func (l *Line) current() *link {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.link
}

// Connected reports whether a link is currently open.
func (l *Line) Connected() bool {
	return l.current() != nil
}

// Send writes command and waits for the next reply frame.
func (l *Line) Send(ctx context.Context, command string) (string, error) {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	lk := l.current()
	if lk == nil {
		return "", ErrNotConnected
	}
	// Anything already queued answers an earlier command.
drain:
	for {
		select {
		case frame := <-lk.frames:
			log.Printf("discarding stale reply %q", frame)
		default:
			break drain
		}
	}
	if _, err := io.WriteString(lk.conn, command); err != nil {
		lk.conn.Close()
		return "", fmt.Errorf("writing %q: %w", command, err)
	}
	if l.cfg.NoReply(command) {
		return "", nil
	}
	timer := time.NewTimer(l.cfg.ReplyTimeout)
	defer timer.Stop()
	select {
	case frame := <-lk.frames:
		return frame, nil
	case <-lk.done:
		return "", fmt.Errorf("%w: %v", ErrNotConnected, lk.err)
	case <-timer.C:
		return "", ErrNoResponse
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close stops reconnecting and closes the current link.
func (l *Line) Close() error {
	l.cancel()
	if lk := l.current(); lk != nil {
		return lk.conn.Close()
	}
	return nil
}
