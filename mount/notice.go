package mount

import (
	"sync"
	"time"
)

// Message is a user-visible condition raised by the safety monitor.
type Message struct {
	Text   string
	Posted time.Time
	Read   bool
}

// Notices holds the pending warning and information messages. Observers
// mark each one read independently of the monitor's own state.
type Notices struct {
	mu          sync.Mutex
	warning     Message
	information Message
}

func (n *Notices) PostWarning(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warning = Message{Text: text, Posted: time.Now()}
}

func (n *Notices) PostInformation(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.information = Message{Text: text, Posted: time.Now()}
}

func (n *Notices) Warning() Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.warning
}

func (n *Notices) Information() Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.information
}

// ReadWarning returns the warning and marks it read.
func (n *Notices) ReadWarning() Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	m := n.warning
	n.warning.Read = true
	return m
}

// ReadInformation returns the information message and marks it read.
func (n *Notices) ReadInformation() Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	m := n.information
	n.information.Read = true
	return m
}
