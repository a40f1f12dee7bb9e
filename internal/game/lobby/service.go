// Package lobby turns client requests and connection closes into room,
// discovery, grace, and draw operations, and fans the resulting events out.
package lobby

import (
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tambola/internal/game/discovery"
	"github.com/cory-johannsen/tambola/internal/game/grace"
	"github.com/cory-johannsen/tambola/internal/game/room"
	"github.com/cory-johannsen/tambola/internal/game/rules"
	"github.com/cory-johannsen/tambola/internal/observability"
	"github.com/cory-johannsen/tambola/internal/protocol"
	"github.com/cory-johannsen/tambola/internal/random"
	"github.com/cory-johannsen/tambola/internal/transport"
)

// Options holds the lobby timings.
type Options struct {
	// GracePeriod is how long a player whose index connection closed keeps
	// their slot while they open the game view.
	GracePeriod time.Duration
	// DrawInterval is the time between drawn numbers.
	DrawInterval time.Duration
}

// Service is the request/event protocol layer. It is safe for concurrent use:
// every handler that reads or mutates a room holds that room's lock for its
// whole read-modify-broadcast sequence.
type Service struct {
	rooms     *room.Registry
	conns     *transport.Table
	discovery *discovery.Broadcaster
	graces    *grace.Registry
	rules     rules.Rules
	src       random.Source
	opts      Options
	logger    *zap.Logger
}

// NewService creates a Service with the given dependencies.
//
// Precondition: every pointer argument must be non-nil; r.Validate() == nil;
// opts durations must be > 0.
// Postcondition: Returns a Service with no rooms and no pending timers.
func NewService(
	rooms *room.Registry,
	conns *transport.Table,
	disc *discovery.Broadcaster,
	graces *grace.Registry,
	r rules.Rules,
	src random.Source,
	opts Options,
	logger *zap.Logger,
) *Service {
	return &Service{
		rooms:     rooms,
		conns:     conns,
		discovery: disc,
		graces:    graces,
		rules:     r,
		src:       src,
		opts:      opts,
		logger:    logger,
	}
}

// Register makes c reachable for event delivery.
func (s *Service) Register(c transport.Conn) {
	s.conns.Add(c)
	s.logger.Debug("connection registered", zap.String("conn", string(c.ID())))
}

// HandleMessage decodes one raw client message from conn and dispatches it.
// Malformed and unknown messages are dropped.
func (s *Service) HandleMessage(conn transport.ID, raw []byte) {
	req, err := protocol.Decode(raw)
	if err != nil {
		s.logger.Debug("dropping message",
			zap.String("conn", string(conn)),
			zap.Error(err),
		)
		return
	}
	s.Dispatch(conn, req)
}

// Dispatch routes a decoded request to its handler.
func (s *Service) Dispatch(conn transport.ID, req protocol.Request) {
	switch r := req.(type) {
	case protocol.CreateLobby:
		s.handleCreate(conn, r)
	case protocol.JoinLobby:
		s.handleJoin(conn, r)
	case protocol.PageEntered:
		s.handlePageEntered(conn, r)
	case protocol.DiscoverySubscribe:
		s.discovery.Subscribe(conn)
	case protocol.StartGame:
		s.handleStartGame(conn, r)
	case protocol.LeaveLobby:
		s.handleLeave(conn, r)
	default:
		s.logger.Debug("no handler for request",
			zap.String("conn", string(conn)),
			zap.String("kind", string(req.Kind())),
		)
	}
}

// Shutdown stops every draw scheduler and pending grace timer. Rooms are left
// in place.
func (s *Service) Shutdown() {
	for _, r := range s.rooms.Rooms() {
		r.Lock()
		r.StopScheduler()
		r.Unlock()
	}
	s.graces.CancelAll()
	s.logger.Info("lobby stopped", zap.Int("rooms", s.rooms.Len()))
}

func (s *Service) roomLogger(r *room.Room) *zap.Logger {
	return observability.RoomLogger(s.logger, r.ID(), string(r.Visibility()))
}

// reply sends ev to conn alone.
func (s *Service) reply(conn transport.ID, ev protocol.Event) {
	s.conns.Send(conn, ev)
}

// broadcastLocked sends ev to every open game connection in r.
//
// Precondition: caller holds r's lock.
func (s *Service) broadcastLocked(r *room.Room, ev protocol.Event) {
	for _, p := range r.Players() {
		if p.GameConn != "" {
			s.conns.Send(p.GameConn, ev)
		}
	}
}

// roomSummaryLocked returns r's discovery listing entry.
//
// Precondition: caller holds r's lock; r is not empty.
func roomSummaryLocked(r *room.Room) protocol.RoomSummary {
	return protocol.RoomSummary{
		RoomID:      r.ID(),
		HostName:    r.Host().Username,
		PlayerCount: r.Len(),
	}
}
