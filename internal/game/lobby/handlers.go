package lobby

import (
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tambola/internal/game/grace"
	"github.com/cory-johannsen/tambola/internal/game/room"
	"github.com/cory-johannsen/tambola/internal/protocol"
	"github.com/cory-johannsen/tambola/internal/transport"
)

func (s *Service) handleCreate(conn transport.ID, req protocol.CreateLobby) {
	vis, err := room.ParseVisibility(req.Visibility)
	if err != nil {
		s.logger.Debug("dropping createLobby", zap.String("conn", string(conn)), zap.Error(err))
		return
	}
	r, joined, err := s.rooms.Create(vis, room.Info{Username: req.Username, Icon: req.Icon}, conn)
	if err != nil {
		s.logger.Error("creating room", zap.String("conn", string(conn)), zap.Error(err))
		return
	}
	s.discovery.Flag(conn)
	s.reply(conn, protocol.LobbyCreated{
		RoomID:       joined.RoomID,
		PlayerID:     joined.PlayerID,
		SessionToken: joined.SessionToken,
	})
	s.roomLogger(r).Info("room created", zap.String("host", req.Username))
}

func (s *Service) handleJoin(conn transport.ID, req protocol.JoinLobby) {
	vis, err := room.ParseVisibility(req.Visibility)
	if err != nil {
		s.logger.Debug("dropping joinLobby", zap.String("conn", string(conn)), zap.Error(err))
		return
	}
	r, joined, err := s.rooms.Join(req.RoomID, vis, room.Info{Username: req.Username, Icon: req.Icon}, conn)
	switch {
	case errors.Is(err, room.ErrNoSuchRoom):
		s.reply(conn, protocol.NoRoom{RoomID: req.RoomID})
		return
	case errors.Is(err, room.ErrRoomFull):
		s.logger.Debug("room full",
			zap.String("room_id", req.RoomID),
			zap.Int("max_players", s.rooms.MaxPlayers()),
		)
		s.reply(conn, protocol.RoomFull{RoomID: req.RoomID})
		return
	case err != nil:
		s.logger.Error("joining room", zap.String("room_id", req.RoomID), zap.Error(err))
		return
	}
	s.discovery.Flag(conn)
	s.reply(conn, protocol.LobbyJoined{
		RoomID:       joined.RoomID,
		PlayerID:     joined.PlayerID,
		SessionToken: joined.SessionToken,
	})
	s.roomLogger(r).Info("player joined",
		zap.String("username", req.Username),
		zap.Int("player_id", joined.PlayerID),
	)
}

// authorizeLocked resolves the player a token-gated request names, replying
// invalid or tokenMismatch on failure.
//
// Precondition: caller holds r's lock.
func (s *Service) authorizeLocked(conn transport.ID, r *room.Room, roomID string, playerID int, token string) (*room.Player, bool) {
	if r.Closed() {
		s.reply(conn, protocol.Invalid{RoomID: roomID, PlayerID: playerID})
		return nil, false
	}
	p, ok := r.Player(playerID)
	if !ok {
		s.reply(conn, protocol.Invalid{RoomID: roomID, PlayerID: playerID})
		return nil, false
	}
	if !p.TokenMatches(token) {
		s.reply(conn, protocol.TokenMismatch{RoomID: roomID, PlayerID: playerID})
		return nil, false
	}
	return p, true
}

// handlePageEntered moves a player into the game phase on conn.
//
// Postcondition: On a valid token the player's GameConn is conn, any pending
// grace timer for the player is cancelled, and every open game connection in
// the room has the new roster. An invalid request changes nothing.
func (s *Service) handlePageEntered(conn transport.ID, req protocol.PageEntered) {
	r, ok := s.rooms.Lookup(req.RoomID)
	if !ok {
		s.reply(conn, protocol.Invalid{RoomID: req.RoomID, PlayerID: req.PlayerID})
		return
	}

	r.Lock()
	defer r.Unlock()
	p, ok := s.authorizeLocked(conn, r, req.RoomID, req.PlayerID, req.SessionToken)
	if !ok {
		return
	}
	log := s.roomLogger(r)

	p.GameConn = conn
	s.discovery.Unflag(conn)
	if s.graces.Cancel(grace.Key{RoomID: r.ID(), PlayerID: p.ID}) {
		log.Info("reconnected within grace period", zap.Int("player_id", p.ID))
	}

	if p.IsHost {
		s.reply(conn, protocol.HostEntered{RoomID: r.ID()})
	}
	s.broadcastLocked(r, protocol.PlayerJoined{Player: p.Summary(), Players: r.Summaries()})

	if r.IsPublic() {
		switch {
		case p.IsHost && !r.Announced():
			r.MarkAnnounced()
			s.discovery.Announce(roomSummaryLocked(r))
		case r.Announced():
			s.discovery.Update(roomSummaryLocked(r))
		}
	}

	if r.Started() {
		if p.Ticket != nil {
			s.reply(conn, protocol.TicketAssigned{RoomID: r.ID(), PlayerID: p.ID, Ticket: p.Ticket})
		}
		pool := r.Pool()
		s.reply(conn, protocol.GameState{RoomID: r.ID(), Drawn: pool.Drawn(), Remaining: pool.Remaining()})
	}
	log.Info("player entered game", zap.Int("player_id", p.ID), zap.Bool("host", p.IsHost))
}

// handleLeave removes a player at their own request.
func (s *Service) handleLeave(conn transport.ID, req protocol.LeaveLobby) {
	r, ok := s.rooms.Lookup(req.RoomID)
	if !ok {
		s.reply(conn, protocol.Invalid{RoomID: req.RoomID, PlayerID: req.PlayerID})
		return
	}

	r.Lock()
	defer r.Unlock()
	p, ok := s.authorizeLocked(conn, r, req.RoomID, req.PlayerID, req.SessionToken)
	if !ok {
		return
	}
	s.removeLocked(r, p, "left")
	s.reply(conn, protocol.LeftLobby{RoomID: req.RoomID})
}
