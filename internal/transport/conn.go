// Package transport defines the connection abstraction the game core talks to.
//
// The core never holds a live transport object. Player records store an ID; the
// Table resolves an ID to the live connection at send time, so a closed or
// forgotten connection is simply a miss.
package transport

import (
	"sync"

	"github.com/google/uuid"

	"github.com/cory-johannsen/tambola/internal/protocol"
)

// ID is an opaque connection handle. The zero value names no connection.
type ID string

// NewID returns a fresh connection handle.
func NewID() ID {
	return ID(uuid.NewString())
}

// Conn is a live duplex connection.
type Conn interface {
	// ID returns the connection's handle.
	ID() ID
	// Send enqueues ev for delivery. It never blocks on the network.
	Send(ev protocol.Event) error
	// IsOpen reports whether the connection can still deliver events.
	IsOpen() bool
}

// Table maps handles to live connections. It is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	conns map[ID]Conn
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{conns: make(map[ID]Conn)}
}

// Add registers c under c.ID(), replacing any previous entry.
//
// Precondition: c must be non-nil.
func (t *Table) Add(c Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c.ID()] = c
}

// Remove forgets id. Removing an unknown id is a no-op.
func (t *Table) Remove(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, id)
}

// Get returns the connection registered under id.
func (t *Table) Get(id ID) (Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[id]
	return c, ok
}

// IsOpen reports whether id names a registered, open connection.
func (t *Table) IsOpen(id ID) bool {
	if id == "" {
		return false
	}
	c, ok := t.Get(id)
	return ok && c.IsOpen()
}

// Send delivers ev to id on a best-effort basis.
//
// Postcondition: Returns true if ev was enqueued; unknown, closed, or failing
// connections are silently skipped and return false.
func (t *Table) Send(id ID, ev protocol.Event) bool {
	if id == "" {
		return false
	}
	c, ok := t.Get(id)
	if !ok || !c.IsOpen() {
		return false
	}
	return c.Send(ev) == nil
}

// Len returns the number of registered connections.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
