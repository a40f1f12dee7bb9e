package lobby

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tambola/internal/game/draw"
	"github.com/cory-johannsen/tambola/internal/game/room"
	"github.com/cory-johannsen/tambola/internal/game/ticket"
	"github.com/cory-johannsen/tambola/internal/protocol"
	"github.com/cory-johannsen/tambola/internal/transport"
)

// Reasons carried by StartRejected.
const (
	RejectNoRoom         = "noRoom"
	RejectAlreadyStarted = "alreadyStarted"
	RejectNotHost        = "notHost"
)

// maxTicketAttempts bounds regeneration of a ticket that duplicates another
// player's in the same room.
const maxTicketAttempts = 16

// handleStartGame starts the room's draw if conn is the host's open game
// connection.
//
// Postcondition: On success every player has a ticket, the pool holds the
// full value range, and a scheduler is attached to the room. A rejected
// request changes nothing and is answered with StartRejected.
func (s *Service) handleStartGame(conn transport.ID, req protocol.StartGame) {
	r, ok := s.rooms.Lookup(req.RoomID)
	if !ok {
		s.reply(conn, protocol.StartRejected{RoomID: req.RoomID, Reason: RejectNoRoom})
		return
	}

	r.Lock()
	defer r.Unlock()
	if r.Closed() {
		s.reply(conn, protocol.StartRejected{RoomID: req.RoomID, Reason: RejectNoRoom})
		return
	}
	if r.Started() {
		s.reply(conn, protocol.StartRejected{RoomID: req.RoomID, Reason: RejectAlreadyStarted})
		return
	}
	host := r.Host()
	if host.GameConn != conn || !s.conns.IsOpen(conn) {
		s.reply(conn, protocol.StartRejected{RoomID: req.RoomID, Reason: RejectNotHost})
		return
	}

	pool := draw.NewPool(s.src, s.rules)
	if err := r.Start(pool); err != nil {
		s.logger.Error("starting game", zap.Error(err))
		return
	}
	s.dealTicketsLocked(r)
	s.broadcastLocked(r, protocol.GameStarted{RoomID: r.ID(), Total: pool.Total()})
	r.SetScheduler(draw.Start(s.opts.DrawInterval, func() bool {
		return s.drawNext(r)
	}))
	s.roomLogger(r).Info("game started",
		zap.Int("players", r.Len()),
		zap.Int("values", pool.Total()),
		zap.Duration("interval", s.opts.DrawInterval),
	)
}

// dealTicketsLocked gives every player a ticket no other player in the room holds.
//
// Precondition: caller holds r's lock.
func (s *Service) dealTicketsLocked(r *room.Room) {
	dealt := make(map[string]bool, r.Len())
	for _, p := range r.Players() {
		var t ticket.Ticket
		for i := 0; i < maxTicketAttempts; i++ {
			t = ticket.Generate(s.src, s.rules)
			if !dealt[fmt.Sprint(t)] {
				break
			}
		}
		dealt[fmt.Sprint(t)] = true
		p.Ticket = t
		if p.GameConn != "" {
			s.conns.Send(p.GameConn, protocol.TicketAssigned{RoomID: r.ID(), PlayerID: p.ID, Ticket: t})
		}
	}
}

// drawNext pops one value and announces it to the room.
//
// Postcondition: Returns false once the pool is exhausted or the room is
// gone; the last value is followed by GameOver.
func (s *Service) drawNext(r *room.Room) bool {
	r.Lock()
	defer r.Unlock()
	if r.Closed() {
		return false
	}
	pool := r.Pool()
	v, ok := pool.Pop()
	if !ok {
		return false
	}
	s.broadcastLocked(r, protocol.NumberDrawn{
		Value:     v,
		Sequence:  pool.Total() - pool.Remaining(),
		Remaining: pool.Remaining(),
	})
	if pool.Remaining() > 0 {
		return true
	}
	s.broadcastLocked(r, protocol.GameOver{RoomID: r.ID(), Drawn: pool.Total()})
	s.roomLogger(r).Info("game over", zap.Int("drawn", pool.Total()))
	return false
}
