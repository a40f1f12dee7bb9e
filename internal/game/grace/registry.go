// Package grace manages deferred player removals keyed by room and player slot.
package grace

import (
	"sync"
	"time"
)

// Key identifies a player slot within a room.
type Key struct {
	RoomID   string
	PlayerID int
}

type entry struct {
	id    uint64
	timer *time.Timer
}

// Registry holds at most one pending single-shot timer per Key.
// It is safe for concurrent use.
//
// Firing and cancellation are made mutually exclusive by the caller: the fire
// callback receives the timer's id and must Claim it, under the same lock the
// cancelling path holds, before acting. A timer that was cancelled, replaced,
// or moved away by Rekey cannot be claimed.
type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[Key]*entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[Key]*entry)}
}

// Schedule arms a timer for key that calls onFire(id) after d, cancelling any
// timer already pending for key. onFire runs on its own goroutine.
//
// Precondition: d > 0; onFire must not be nil.
// Postcondition: IsPending(key) is true; returns the new timer's id.
func (r *Registry) Schedule(key Key, d time.Duration, onFire func(id uint64)) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.pending[key]; ok {
		old.timer.Stop()
	}
	r.nextID++
	id := r.nextID
	r.pending[key] = &entry{
		id:    id,
		timer: time.AfterFunc(d, func() { onFire(id) }),
	}
	return id
}

// Cancel stops the timer pending for key.
//
// Postcondition: IsPending(key) is false. Returns true if a timer was pending.
func (r *Registry) Cancel(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.pending, key)
	return true
}

// IsPending reports whether a timer is armed for key.
func (r *Registry) IsPending(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[key]
	return ok
}

// Claim consumes the timer pending for key if it is still the one with the given id.
//
// Postcondition: Returns true exactly once per fired timer that was not
// cancelled, replaced, or moved; the entry is removed.
func (r *Registry) Claim(key Key, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pending[key]
	if !ok || e.id != id {
		return false
	}
	delete(r.pending, key)
	return true
}

// Rekey moves the timer pending for from so it is pending for to instead.
// A timer already pending for to is cancelled.
//
// Postcondition: IsPending(from) is false.
func (r *Registry) Rekey(from, to Key) {
	if from == to {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pending[from]
	if !ok {
		return
	}
	delete(r.pending, from)
	if old, ok := r.pending[to]; ok {
		old.timer.Stop()
	}
	r.pending[to] = e
}

// CancelRoom stops every timer pending for roomID.
//
// Postcondition: Returns the number of timers cancelled.
func (r *Registry) CancelRoom(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for key, e := range r.pending {
		if key.RoomID == roomID {
			e.timer.Stop()
			delete(r.pending, key)
			n++
		}
	}
	return n
}

// CancelAll stops every pending timer.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, e := range r.pending {
		e.timer.Stop()
		delete(r.pending, key)
	}
}

// Len returns the number of pending timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
