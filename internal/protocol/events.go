package protocol

// Event kinds.
const (
	KindLobbyCreated       Kind = "lobbyCreated"
	KindLobbyJoined        Kind = "lobbyJoined"
	KindNoRoom             Kind = "noRoom"
	KindRoomFull           Kind = "roomFull"
	KindInvalid            Kind = "invalid"
	KindTokenMismatch      Kind = "tokenMismatch"
	KindHostEntered        Kind = "hostEntered"
	KindPlayerJoined       Kind = "playerJoined"
	KindPlayerLeft         Kind = "playerLeft"
	KindPlayersReshuffled  Kind = "playersReshuffled"
	KindNewLobby           Kind = "newLobby"
	KindRoomRemoved        Kind = "roomRemoved"
	KindPlayerCountChanged Kind = "playerCountChanged"
	KindLobbyList          Kind = "lobbyList"
	KindTicketAssigned     Kind = "ticketAssigned"
	KindGameStarted        Kind = "gameStarted"
	KindNumberDrawn        Kind = "numberDrawn"
	KindGameState          Kind = "gameState"
	KindGameOver           Kind = "gameOver"
	KindStartRejected      Kind = "startRejected"
	KindLeftLobby          Kind = "leftLobby"
)

// Event is a server message.
type Event interface {
	Kind() Kind
}

// PlayerSummary is the public view of one player.
type PlayerSummary struct {
	PlayerID int    `json:"playerId"`
	Username string `json:"username"`
	Icon     string `json:"icon"`
}

// RoomSummary is the discovery listing entry of one public room.
type RoomSummary struct {
	RoomID      string `json:"roomId"`
	HostName    string `json:"hostName"`
	PlayerCount int    `json:"playerCount"`
}

// LobbyCreated answers CreateLobby.
type LobbyCreated struct {
	RoomID       string `json:"roomId"`
	PlayerID     int    `json:"playerId"`
	SessionToken string `json:"sessionToken"`
}

// LobbyJoined answers a successful JoinLobby.
type LobbyJoined struct {
	RoomID       string `json:"roomId"`
	PlayerID     int    `json:"playerId"`
	SessionToken string `json:"sessionToken"`
}

// NoRoom answers a JoinLobby naming a room that does not exist.
type NoRoom struct {
	RoomID string `json:"roomId"`
}

// RoomFull answers a JoinLobby for a room at capacity.
type RoomFull struct {
	RoomID string `json:"roomId"`
}

// Invalid answers a token-gated request naming an unknown room or player.
type Invalid struct {
	RoomID   string `json:"roomId"`
	PlayerID int    `json:"playerId"`
}

// TokenMismatch answers a token-gated request whose session token is wrong.
type TokenMismatch struct {
	RoomID   string `json:"roomId"`
	PlayerID int    `json:"playerId"`
}

// HostEntered tells the host its game connection is live.
type HostEntered struct {
	RoomID string `json:"roomId"`
}

// PlayerJoined announces a player entering the game view, with the full roster.
type PlayerJoined struct {
	Player  PlayerSummary   `json:"player"`
	Players []PlayerSummary `json:"players"`
}

// PlayerLeft announces a removed player by the id it held before renumbering.
type PlayerLeft struct {
	PlayerID int    `json:"playerId"`
	Username string `json:"username"`
}

// PlayersReshuffled replaces the client's roster after renumbering.
type PlayersReshuffled struct {
	Players []PlayerSummary `json:"players"`
}

// NewLobby advertises a public room on the discovery channel.
type NewLobby struct {
	RoomSummary
}

// RoomRemoved withdraws a public room from the discovery channel.
type RoomRemoved struct {
	RoomID string `json:"roomId"`
}

// PlayerCountChanged updates a public room's occupancy on the discovery channel.
type PlayerCountChanged struct {
	RoomID string `json:"roomId"`
	Count  int    `json:"count"`
}

// LobbyList is the discovery snapshot sent on subscription.
type LobbyList struct {
	Rooms []RoomSummary `json:"rooms"`
}

// TicketAssigned delivers a player's ticket.
type TicketAssigned struct {
	RoomID   string  `json:"roomId"`
	PlayerID int     `json:"playerId"`
	Ticket   [][]int `json:"ticket"`
}

// GameStarted announces the start of the draw.
type GameStarted struct {
	RoomID string `json:"roomId"`
	Total  int    `json:"total"`
}

// NumberDrawn announces one drawn value. Sequence counts from 1.
type NumberDrawn struct {
	Value     int `json:"value"`
	Sequence  int `json:"sequence"`
	Remaining int `json:"remaining"`
}

// GameState brings a reconnecting player up to date with the draw.
type GameState struct {
	RoomID    string `json:"roomId"`
	Drawn     []int  `json:"drawn"`
	Remaining int    `json:"remaining"`
}

// GameOver announces that every value has been drawn.
type GameOver struct {
	RoomID string `json:"roomId"`
	Drawn  int    `json:"drawn"`
}

// StartRejected answers a StartGame that was not honoured.
type StartRejected struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// LeftLobby answers a successful LeaveLobby.
type LeftLobby struct {
	RoomID string `json:"roomId"`
}

func (LobbyCreated) Kind() Kind       { return KindLobbyCreated }
func (LobbyJoined) Kind() Kind        { return KindLobbyJoined }
func (NoRoom) Kind() Kind             { return KindNoRoom }
func (RoomFull) Kind() Kind           { return KindRoomFull }
func (Invalid) Kind() Kind            { return KindInvalid }
func (TokenMismatch) Kind() Kind      { return KindTokenMismatch }
func (HostEntered) Kind() Kind        { return KindHostEntered }
func (PlayerJoined) Kind() Kind       { return KindPlayerJoined }
func (PlayerLeft) Kind() Kind         { return KindPlayerLeft }
func (PlayersReshuffled) Kind() Kind  { return KindPlayersReshuffled }
func (NewLobby) Kind() Kind           { return KindNewLobby }
func (RoomRemoved) Kind() Kind        { return KindRoomRemoved }
func (PlayerCountChanged) Kind() Kind { return KindPlayerCountChanged }
func (LobbyList) Kind() Kind          { return KindLobbyList }
func (TicketAssigned) Kind() Kind     { return KindTicketAssigned }
func (GameStarted) Kind() Kind        { return KindGameStarted }
func (NumberDrawn) Kind() Kind        { return KindNumberDrawn }
func (GameState) Kind() Kind          { return KindGameState }
func (GameOver) Kind() Kind           { return KindGameOver }
func (StartRejected) Kind() Kind      { return KindStartRejected }
func (LeftLobby) Kind() Kind          { return KindLeftLobby }
