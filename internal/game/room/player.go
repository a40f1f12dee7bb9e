package room

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/tambola/internal/game/ticket"
	"github.com/cory-johannsen/tambola/internal/protocol"
	"github.com/cory-johannsen/tambola/internal/transport"
)

// Info is the display metadata a player supplies. It is not validated.
type Info struct {
	Username string
	Icon     string
}

// Phase says which of a player's two connections matched.
type Phase int

const (
	// PhaseIndex is the lobby/discovery connection that created or joined the room.
	PhaseIndex Phase = iota
	// PhaseGame is the connection authenticated into the game view.
	PhaseGame
)

func (p Phase) String() string {
	if p == PhaseGame {
		return "game"
	}
	return "index"
}

// Player is one occupant of a room slot. Fields are guarded by the owning
// room's lock.
type Player struct {
	// ID is the player's slot, dense from 0. It changes when a lower slot is vacated.
	ID int
	// Username and Icon are opaque display metadata.
	Username string
	Icon     string
	// IsHost is true exactly for slot 0.
	IsHost bool
	// IndexConn is the connection that created or joined the room; empty once closed.
	IndexConn transport.ID
	// GameConn is the connection authenticated into the game view; empty until then.
	GameConn transport.ID
	// Ticket is assigned when the game starts; nil before.
	Ticket ticket.Ticket

	tokenHash []byte
}

// TokenMatches reports whether token is this player's session token.
func (p *Player) TokenMatches(token string) bool {
	if token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(p.tokenHash, []byte(token)) == nil
}

// Summary returns the player's public view.
func (p *Player) Summary() protocol.PlayerSummary {
	return protocol.PlayerSummary{PlayerID: p.ID, Username: p.Username, Icon: p.Icon}
}

// issueToken returns a fresh session token and the hash stored in its place.
// The hash uses the minimum bcrypt cost: tokens are random, not user-chosen.
func issueToken() (string, []byte, error) {
	token := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	if err != nil {
		return "", nil, fmt.Errorf("hashing session token: %w", err)
	}
	return token, hash, nil
}
