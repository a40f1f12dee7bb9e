// Package discovery fans public room listings out to connections that are
// browsing for a room to join.
package discovery

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tambola/internal/protocol"
	"github.com/cory-johannsen/tambola/internal/transport"
)

// Broadcaster tracks which connections are in discovery mode and the public
// rooms currently advertised to them. It is safe for concurrent use.
//
// Invariant: every listing change is broadcast while holding the same lock
// that Subscribe holds while taking its snapshot, so a subscriber sees its
// snapshot followed by every later change and nothing in between is lost.
type Broadcaster struct {
	conns  *transport.Table
	logger *zap.Logger

	mu          sync.Mutex
	subscribers map[transport.ID]struct{}
	listing     map[string]protocol.RoomSummary
}

// New creates a Broadcaster that delivers through conns.
//
// Precondition: conns and logger must be non-nil.
func New(conns *transport.Table, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		conns:       conns,
		logger:      logger,
		subscribers: make(map[transport.ID]struct{}),
		listing:     make(map[string]protocol.RoomSummary),
	}
}

// Subscribe flags id for discovery and immediately sends it a LobbyList
// snapshot of every advertised room.
//
// Postcondition: IsSubscribed(id) is true.
func (b *Broadcaster) Subscribe(id transport.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = struct{}{}
	b.conns.Send(id, protocol.LobbyList{Rooms: b.snapshotLocked()})
}

// Flag puts id in discovery mode without sending a snapshot.
func (b *Broadcaster) Flag(id transport.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = struct{}{}
}

// Unflag takes id out of discovery mode. Unknown ids are ignored.
func (b *Broadcaster) Unflag(id transport.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// IsSubscribed reports whether id is in discovery mode.
func (b *Broadcaster) IsSubscribed(id transport.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subscribers[id]
	return ok
}

// Announce advertises a room and broadcasts NewLobby.
func (b *Broadcaster) Announce(room protocol.RoomSummary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listing[room.RoomID] = room
	b.broadcastLocked(protocol.NewLobby{RoomSummary: room})
}

// Update replaces an advertised room's listing, picking up a new host name,
// and broadcasts PlayerCountChanged. Rooms that were never announced are left
// alone.
//
// Postcondition: Returns true if the room is advertised.
func (b *Broadcaster) Update(room protocol.RoomSummary) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.listing[room.RoomID]; !ok {
		return false
	}
	b.listing[room.RoomID] = room
	b.broadcastLocked(protocol.PlayerCountChanged{RoomID: room.RoomID, Count: room.PlayerCount})
	return true
}

// Remove withdraws a room and broadcasts RoomRemoved, whether or not the room
// had been announced.
func (b *Broadcaster) Remove(roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listing, roomID)
	b.broadcastLocked(protocol.RoomRemoved{RoomID: roomID})
}

// IsListed reports whether roomID is advertised.
func (b *Broadcaster) IsListed(roomID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.listing[roomID]
	return ok
}

// Broadcast sends ev to every open connection in discovery mode.
func (b *Broadcaster) Broadcast(ev protocol.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcastLocked(ev)
}

// Snapshot returns the advertised rooms ordered by room id.
func (b *Broadcaster) Snapshot() []protocol.RoomSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Broadcaster) snapshotLocked() []protocol.RoomSummary {
	rooms := make([]protocol.RoomSummary, 0, len(b.listing))
	for _, r := range b.listing {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomID < rooms[j].RoomID })
	return rooms
}

func (b *Broadcaster) broadcastLocked(ev protocol.Event) {
	delivered := 0
	for id := range b.subscribers {
		if b.conns.Send(id, ev) {
			delivered++
			continue
		}
		if !b.conns.IsOpen(id) {
			delete(b.subscribers, id)
		}
	}
	b.logger.Debug("discovery broadcast",
		zap.String("kind", string(ev.Kind())),
		zap.Int("delivered", delivered),
	)
}
