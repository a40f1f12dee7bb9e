package lobby

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/tambola/internal/game/grace"
	"github.com/cory-johannsen/tambola/internal/game/room"
	"github.com/cory-johannsen/tambola/internal/protocol"
	"github.com/cory-johannsen/tambola/internal/transport"
)

// HandleClose cleans up after conn has closed.
//
// A closed game connection removes its player immediately. A closed index
// connection starts the player's grace timer unless the player already has an
// open game connection. A connection no player holds only leaves discovery.
func (s *Service) HandleClose(conn transport.ID) {
	s.discovery.Unflag(conn)
	s.conns.Remove(conn)

	for _, m := range s.rooms.FindByConnection(conn) {
		s.closeInRoom(m.Room, conn)
	}
}

func (s *Service) closeInRoom(r *room.Room, conn transport.ID) {
	r.Lock()
	defer r.Unlock()
	if r.Closed() {
		return
	}
	// The match was found without the lock held; look again.
	p, phase, ok := r.FindByConn(conn)
	if !ok {
		return
	}

	switch phase {
	case room.PhaseGame:
		p.GameConn = ""
		if p.IndexConn == conn {
			p.IndexConn = ""
		}
		s.removeLocked(r, p, "disconnected")
	case room.PhaseIndex:
		p.IndexConn = ""
		if s.conns.IsOpen(p.GameConn) {
			return
		}
		s.scheduleGraceLocked(r, p)
	}
}

// scheduleGraceLocked starts or restarts p's grace timer.
//
// Precondition: caller holds r's lock.
func (s *Service) scheduleGraceLocked(r *room.Room, p *room.Player) {
	key := grace.Key{RoomID: r.ID(), PlayerID: p.ID}
	s.graces.Schedule(key, s.opts.GracePeriod, func(id uint64) {
		s.expireGrace(r, p, id)
	})
	s.roomLogger(r).Info("grace period started",
		zap.Int("player_id", p.ID),
		zap.Duration("grace", s.opts.GracePeriod),
	)
}

// expireGrace removes p once its grace timer fires, unless the timer was
// cancelled, replaced, or p has left in the meantime. p.ID is read under the
// room lock, so a renumbered player is still found.
func (s *Service) expireGrace(r *room.Room, p *room.Player, id uint64) {
	r.Lock()
	defer r.Unlock()
	if r.Closed() {
		return
	}
	if cur, ok := r.Player(p.ID); !ok || cur != p {
		return
	}
	if !s.graces.Claim(grace.Key{RoomID: r.ID(), PlayerID: p.ID}, id) {
		return
	}
	if s.conns.IsOpen(p.GameConn) {
		return
	}
	s.removeLocked(r, p, "grace expired")
}

// removeLocked removes p from r, renumbers the survivors, and reports the
// change to the room and, for public rooms, to discovery. An emptied room is
// deleted.
//
// Precondition: caller holds r's lock; p is in r.
func (s *Service) removeLocked(r *room.Room, p *room.Player, reason string) {
	log := s.roomLogger(r)
	oldID := p.ID
	s.graces.Cancel(grace.Key{RoomID: r.ID(), PlayerID: oldID})

	removed, moves, ok := r.Remove(oldID)
	if !ok {
		return
	}
	for _, mv := range moves {
		s.graces.Rekey(
			grace.Key{RoomID: r.ID(), PlayerID: mv.From},
			grace.Key{RoomID: r.ID(), PlayerID: mv.To},
		)
	}

	s.broadcastLocked(r, protocol.PlayerLeft{PlayerID: oldID, Username: removed.Username})
	s.broadcastLocked(r, protocol.PlayersReshuffled{Players: r.Summaries()})
	log.Info("player removed",
		zap.Int("player_id", oldID),
		zap.String("username", removed.Username),
		zap.String("reason", reason),
		zap.Int("remaining", r.Len()),
	)

	if s.rooms.DeleteIfEmpty(r) {
		s.graces.CancelRoom(r.ID())
		if r.IsPublic() {
			s.discovery.Remove(r.ID())
		}
		log.Info("room deleted")
		return
	}
	if r.IsPublic() {
		s.discovery.Update(roomSummaryLocked(r))
	}
}
