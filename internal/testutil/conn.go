package testutil

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cory-johannsen/tambola/internal/protocol"
	"github.com/cory-johannsen/tambola/internal/transport"
)

// FakeConn is an in-memory transport.Conn that records every event sent to it.
type FakeConn struct {
	id     transport.ID
	mu     sync.Mutex
	events []protocol.Event
	closed bool
}

// NewFakeConn returns an open FakeConn with a fresh id.
func NewFakeConn() *FakeConn {
	return &FakeConn{id: transport.NewID()}
}

// ID returns the connection handle.
func (c *FakeConn) ID() transport.ID { return c.id }

// Send records ev, or fails if the connection is closed.
func (c *FakeConn) Send(ev protocol.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("fake connection closed")
	}
	c.events = append(c.events, ev)
	return nil
}

// IsOpen reports whether Close has not been called.
func (c *FakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close marks the connection closed. Later sends fail.
func (c *FakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Events returns a copy of every recorded event in delivery order.
func (c *FakeConn) Events() []protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Event(nil), c.events...)
}

// OfKind returns the recorded events of the given kind.
func (c *FakeConn) OfKind(kind protocol.Kind) []protocol.Event {
	var out []protocol.Event
	for _, ev := range c.Events() {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Last returns the most recent event, or nil.
func (c *FakeConn) Last() protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

// Reset discards the recorded events.
func (c *FakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// WaitFor blocks until at least n events of kind have been recorded, failing
// the test after timeout.
//
// Postcondition: Returns the recorded events of kind.
func (c *FakeConn) WaitFor(t testing.TB, kind protocol.Kind, n int, timeout time.Duration) []protocol.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		evs := c.OfKind(kind)
		if len(evs) >= n {
			return evs
		}
		if time.Now().After(deadline) {
			t.Fatalf("waited %s for %d %q events, got %d", timeout, n, kind, len(evs))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
