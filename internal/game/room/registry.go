// Package room holds the room registry and each room's player slot table.
package room

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cory-johannsen/tambola/internal/random"
	"github.com/cory-johannsen/tambola/internal/transport"
)

var (
	// ErrNoSuchRoom reports a room id that does not exist in the requested namespace.
	ErrNoSuchRoom = errors.New("no such room")
	// ErrRoomFull reports a room at capacity.
	ErrRoomFull = errors.New("room full")
	// ErrNoRoomIDs reports that no free room id was found.
	ErrNoRoomIDs = errors.New("no free room id")
)

const (
	minRoomID     = 10000
	roomIDSpan    = 90000
	maxIDAttempts = 1000
)

// Joined is the result of creating or joining a room: what the caller must
// relay to the requesting connection.
type Joined struct {
	RoomID       string
	PlayerID     int
	SessionToken string
}

// Match locates one player holding a connection.
type Match struct {
	Room     *Room
	PlayerID int
	Phase    Phase
}

// Registry maps room ids to rooms in two namespaces, public and private.
// It is safe for concurrent use.
//
// Lock order: a room lock may be held while taking the registry lock, never
// the reverse. Registry methods therefore never lock a room while holding mu.
//
// Invariant: no room with zero players is reachable through the registry.
type Registry struct {
	mu         sync.RWMutex
	rooms      map[Visibility]map[string]*Room
	src        random.Source
	maxPlayers int
}

// NewRegistry creates an empty Registry.
//
// Precondition: src must be non-nil; maxPlayers >= 1.
func NewRegistry(src random.Source, maxPlayers int) *Registry {
	return &Registry{
		rooms: map[Visibility]map[string]*Room{
			Public:  make(map[string]*Room),
			Private: make(map[string]*Room),
		},
		src:        src,
		maxPlayers: maxPlayers,
	}
}

// MaxPlayers returns the room capacity.
func (g *Registry) MaxPlayers() int { return g.maxPlayers }

// Create inserts a new room whose only player, in slot 0, is the host.
//
// The id is a 5-digit code drawn at random and retried on collision. Ids are
// kept unique across both namespaces so that requests naming only a room id
// are unambiguous.
//
// Postcondition: Returns the new room, the host's session token, and PlayerID 0.
func (g *Registry) Create(vis Visibility, info Info, conn transport.ID) (*Room, Joined, error) {
	token, hash, err := issueToken()
	if err != nil {
		return nil, Joined{}, err
	}
	host := &Player{Username: info.Username, Icon: info.Icon, IndexConn: conn, tokenHash: hash}

	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := g.freeIDLocked()
	if err != nil {
		return nil, Joined{}, err
	}
	r := newRoom(id, vis, host)
	g.rooms[vis][id] = r
	return r, Joined{RoomID: id, PlayerID: 0, SessionToken: token}, nil
}

func (g *Registry) freeIDLocked() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := fmt.Sprintf("%d", minRoomID+g.src.Intn(roomIDSpan))
		_, inPublic := g.rooms[Public][id]
		_, inPrivate := g.rooms[Private][id]
		if !inPublic && !inPrivate {
			return id, nil
		}
	}
	return "", ErrNoRoomIDs
}

// Join appends a player to the room id in namespace vis.
//
// Postcondition: On success the player occupies slot Len()-1 of the room.
// Returns ErrNoSuchRoom or ErrRoomFull otherwise, without mutating any room.
func (g *Registry) Join(id string, vis Visibility, info Info, conn transport.ID) (*Room, Joined, error) {
	r, ok := g.Get(vis, id)
	if !ok {
		return nil, Joined{}, ErrNoSuchRoom
	}
	token, hash, err := issueToken()
	if err != nil {
		return nil, Joined{}, err
	}

	r.Lock()
	defer r.Unlock()
	if r.closed {
		return nil, Joined{}, ErrNoSuchRoom
	}
	if len(r.players) >= g.maxPlayers {
		return nil, Joined{}, ErrRoomFull
	}
	p := &Player{Username: info.Username, Icon: info.Icon, IndexConn: conn, tokenHash: hash}
	r.add(p)
	return r, Joined{RoomID: r.id, PlayerID: p.ID, SessionToken: token}, nil
}

// Get returns the room id in namespace vis.
func (g *Registry) Get(vis Visibility, id string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[vis][id]
	return r, ok
}

// Lookup returns the room id from whichever namespace holds it.
func (g *Registry) Lookup(id string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if r, ok := g.rooms[Public][id]; ok {
		return r, true
	}
	r, ok := g.rooms[Private][id]
	return r, ok
}

// Rooms returns every room in both namespaces.
func (g *Registry) Rooms() []*Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Room, 0, len(g.rooms[Public])+len(g.rooms[Private]))
	for _, ns := range []Visibility{Public, Private} {
		for _, r := range g.rooms[ns] {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of rooms in both namespaces.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms[Public]) + len(g.rooms[Private])
}

// FindByConnection scans every player of every room for conn in either
// connection field. Each room is locked only while it is scanned, so callers
// must re-validate a match under the room lock before acting on it.
func (g *Registry) FindByConnection(conn transport.ID) []Match {
	var out []Match
	for _, r := range g.Rooms() {
		r.Lock()
		if !r.closed {
			if p, phase, ok := r.FindByConn(conn); ok {
				out = append(out, Match{Room: r, PlayerID: p.ID, Phase: phase})
			}
		}
		r.Unlock()
	}
	return out
}

// DeleteIfEmpty removes r from the registry if it has no players. It is
// idempotent.
//
// Precondition: caller holds r's lock.
// Postcondition: Returns true only for the call that deleted the room. A
// deleted room is closed and its draw scheduler is stopped.
func (g *Registry) DeleteIfEmpty(r *Room) bool {
	if r.closed || len(r.players) > 0 {
		return false
	}
	g.deleteLocked(r)
	return true
}

func (g *Registry) deleteLocked(r *Room) {
	r.closed = true
	r.StopScheduler()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rooms[r.visibility][r.id] == r {
		delete(g.rooms[r.visibility], r.id)
	}
}
