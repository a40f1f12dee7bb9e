package room

import (
	"fmt"
	"sync"

	"github.com/cory-johannsen/tambola/internal/game/draw"
	"github.com/cory-johannsen/tambola/internal/protocol"
	"github.com/cory-johannsen/tambola/internal/transport"
)

// Visibility selects a room's namespace.
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// ParseVisibility maps a wire value to a Visibility. An empty value means Public.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case Public, "":
		return Public, nil
	case Private:
		return Private, nil
	default:
		return "", fmt.Errorf("unknown visibility %q", s)
	}
}

// Move records a player whose slot changed during renumbering.
type Move struct {
	From int
	To   int
}

// Room is a bounded group of players plus the state of their game.
//
// Every method other than Lock, Unlock, ID, and Visibility requires the
// caller to hold the room lock. Holding it across a whole
// read-modify-broadcast sequence is what serialises handlers for one room.
//
// Invariant: players[i].ID == i for every i; players[0].IsHost and no other
// player is host.
type Room struct {
	mu         sync.Mutex
	id         string
	visibility Visibility
	players    []*Player
	closed     bool

	started   bool
	announced bool
	pool      *draw.Pool
	scheduler *draw.Scheduler
}

func newRoom(id string, vis Visibility, host *Player) *Room {
	host.ID = 0
	host.IsHost = true
	return &Room{id: id, visibility: vis, players: []*Player{host}}
}

// Lock acquires the room lock.
func (r *Room) Lock() { r.mu.Lock() }

// Unlock releases the room lock.
func (r *Room) Unlock() { r.mu.Unlock() }

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// Visibility returns the room's namespace.
func (r *Room) Visibility() Visibility { return r.visibility }

// IsPublic reports whether the room is advertised to discovery connections.
func (r *Room) IsPublic() bool { return r.visibility == Public }

// Closed reports whether the room has been deleted from the registry.
// A room reference obtained before deletion must be re-validated with Closed
// after locking.
func (r *Room) Closed() bool { return r.closed }

// Len returns the number of players.
func (r *Room) Len() int { return len(r.players) }

// Player returns the player in slot id.
func (r *Room) Player(id int) (*Player, bool) {
	if id < 0 || id >= len(r.players) {
		return nil, false
	}
	return r.players[id], true
}

// Host returns the slot-0 player, or nil for an empty room.
func (r *Room) Host() *Player {
	if len(r.players) == 0 {
		return nil
	}
	return r.players[0]
}

// Players returns the players in slot order. The slice is a copy; the
// pointed-to players are not.
func (r *Room) Players() []*Player {
	return append([]*Player(nil), r.players...)
}

// Summaries returns the roster snapshot in slot order.
func (r *Room) Summaries() []protocol.PlayerSummary {
	out := make([]protocol.PlayerSummary, len(r.players))
	for i, p := range r.players {
		out[i] = p.Summary()
	}
	return out
}

// FindByConn returns the player whose index or game connection is conn.
// A game-connection match takes precedence.
func (r *Room) FindByConn(conn transport.ID) (*Player, Phase, bool) {
	if conn == "" {
		return nil, 0, false
	}
	for _, p := range r.players {
		if p.GameConn == conn {
			return p, PhaseGame, true
		}
	}
	for _, p := range r.players {
		if p.IndexConn == conn {
			return p, PhaseIndex, true
		}
	}
	return nil, 0, false
}

// add appends a player in the next free slot.
func (r *Room) add(p *Player) {
	p.ID = len(r.players)
	p.IsHost = p.ID == 0
	r.players = append(r.players, p)
}

// Remove vacates slot id and compacts the remaining players, preserving their
// relative order, so slots stay dense from 0. Slot 0 is re-derived as host.
//
// Postcondition: Returns the removed player and the slot changes of every
// player that moved, in ascending order of their old slot.
func (r *Room) Remove(id int) (*Player, []Move, bool) {
	if id < 0 || id >= len(r.players) {
		return nil, nil, false
	}
	removed := r.players[id]
	r.players = append(r.players[:id], r.players[id+1:]...)

	var moves []Move
	for i, p := range r.players {
		if p.ID != i {
			moves = append(moves, Move{From: p.ID, To: i})
			p.ID = i
		}
		p.IsHost = i == 0
	}
	removed.IsHost = false
	return removed, moves, true
}

// Started reports whether the game has started. It never reverts to false.
func (r *Room) Started() bool { return r.started }

// Announced reports whether the room has been advertised to discovery.
func (r *Room) Announced() bool { return r.announced }

// MarkAnnounced records that the room has been advertised.
func (r *Room) MarkAnnounced() { r.announced = true }

// Start moves the room into the started state with the given draw pool.
//
// Precondition: !Started().
func (r *Room) Start(pool *draw.Pool) error {
	if r.started {
		return fmt.Errorf("room %s already started", r.id)
	}
	r.started = true
	r.pool = pool
	return nil
}

// Pool returns the draw pool, or nil before the game starts.
func (r *Room) Pool() *draw.Pool { return r.pool }

// SetScheduler attaches the running draw scheduler.
func (r *Room) SetScheduler(s *draw.Scheduler) { r.scheduler = s }

// StopScheduler stops the draw scheduler if one is running.
//
// Postcondition: Returns true if a scheduler was attached.
func (r *Room) StopScheduler() bool {
	if r.scheduler == nil {
		return false
	}
	r.scheduler.Stop()
	r.scheduler = nil
	return true
}
