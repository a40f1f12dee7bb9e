// Package protocol defines the JSON messages exchanged with clients.
//
// Every message is a JSON object whose "type" field names its kind. Each kind
// maps to exactly one Go struct: requests implement Request, server events
// implement Event.
package protocol

// Kind is the value of a message's "type" discriminator.
type Kind string

// Request kinds.
const (
	KindCreateLobby        Kind = "createLobby"
	KindJoinLobby          Kind = "joinLobby"
	KindPageEntered        Kind = "pageEntered"
	KindDiscoverySubscribe Kind = "discoverySubscribe"
	KindStartGame          Kind = "startGame"
	KindLeaveLobby         Kind = "leaveLobby"

	// kindLobbyEntered is the legacy name of pageEntered. Its token field is "wscode".
	kindLobbyEntered Kind = "lobbyEntered"
)

// Request is a decoded client message.
type Request interface {
	Kind() Kind
}

// CreateLobby asks for a new room with the sender as host.
type CreateLobby struct {
	Username   string `json:"username"`
	Icon       string `json:"icon"`
	Visibility string `json:"visibility"`
}

// JoinLobby asks to join an existing room.
type JoinLobby struct {
	Username   string `json:"username"`
	Icon       string `json:"icon"`
	Visibility string `json:"visibility"`
	RoomID     string `json:"roomId"`
}

// PageEntered authenticates the sending connection as a player's game connection.
type PageEntered struct {
	RoomID       string `json:"roomId"`
	PlayerID     int    `json:"playerId"`
	SessionToken string `json:"sessionToken"`
}

// DiscoverySubscribe subscribes the sender to public room listings.
type DiscoverySubscribe struct{}

// StartGame asks to start the room's number draw. Only the host may send it.
type StartGame struct {
	RoomID   string `json:"roomId"`
	PlayerID int    `json:"playerId"`
}

// LeaveLobby removes the player from the room immediately.
type LeaveLobby struct {
	RoomID       string `json:"roomId"`
	PlayerID     int    `json:"playerId"`
	SessionToken string `json:"sessionToken"`
}

func (CreateLobby) Kind() Kind        { return KindCreateLobby }
func (JoinLobby) Kind() Kind          { return KindJoinLobby }
func (PageEntered) Kind() Kind        { return KindPageEntered }
func (DiscoverySubscribe) Kind() Kind { return KindDiscoverySubscribe }
func (StartGame) Kind() Kind          { return KindStartGame }
func (LeaveLobby) Kind() Kind         { return KindLeaveLobby }
