package lobby_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/tambola/internal/game/discovery"
	"github.com/cory-johannsen/tambola/internal/game/grace"
	"github.com/cory-johannsen/tambola/internal/game/lobby"
	"github.com/cory-johannsen/tambola/internal/game/room"
	"github.com/cory-johannsen/tambola/internal/game/rules"
	"github.com/cory-johannsen/tambola/internal/protocol"
	"github.com/cory-johannsen/tambola/internal/random"
	"github.com/cory-johannsen/tambola/internal/testutil"
	"github.com/cory-johannsen/tambola/internal/transport"
)

const (
	testGrace = 50 * time.Millisecond
	waitLimit = 2 * time.Second
)

type harness struct {
	svc    *lobby.Service
	rooms  *room.Registry
	graces *grace.Registry
	disc   *discovery.Broadcaster
}

func smallRules() rules.Rules {
	r := rules.Default()
	r.MaxValue = 27
	return r
}

func newHarness(t *testing.T, drawInterval time.Duration) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	src := random.NewSeededSource(42)
	conns := transport.NewTable()
	h := &harness{
		rooms:  room.NewRegistry(src, 8),
		graces: grace.NewRegistry(),
		disc:   discovery.New(conns, logger),
	}
	h.svc = lobby.NewService(h.rooms, conns, h.disc, h.graces, smallRules(), src,
		lobby.Options{GracePeriod: testGrace, DrawInterval: drawInterval}, logger)
	t.Cleanup(h.svc.Shutdown)
	return h
}

func (h *harness) connect() *testutil.FakeConn {
	c := testutil.NewFakeConn()
	h.svc.Register(c)
	return c
}

func (h *harness) close(c *testutil.FakeConn) {
	c.Close()
	h.svc.HandleClose(c.ID())
}

func (h *harness) create(t *testing.T, c *testutil.FakeConn, name string, vis room.Visibility) protocol.LobbyCreated {
	t.Helper()
	h.svc.Dispatch(c.ID(), protocol.CreateLobby{Username: name, Icon: "icon", Visibility: string(vis)})
	evs := c.OfKind(protocol.KindLobbyCreated)
	require.Len(t, evs, 1)
	return evs[0].(protocol.LobbyCreated)
}

func (h *harness) join(t *testing.T, c *testutil.FakeConn, name, roomID string, vis room.Visibility) protocol.LobbyJoined {
	t.Helper()
	h.svc.Dispatch(c.ID(), protocol.JoinLobby{Username: name, Icon: "icon", Visibility: string(vis), RoomID: roomID})
	evs := c.OfKind(protocol.KindLobbyJoined)
	require.NotEmpty(t, evs)
	return evs[len(evs)-1].(protocol.LobbyJoined)
}

func (h *harness) enter(c *testutil.FakeConn, roomID string, playerID int, token string) {
	h.svc.Dispatch(c.ID(), protocol.PageEntered{RoomID: roomID, PlayerID: playerID, SessionToken: token})
}

func (h *harness) room(t *testing.T, id string) *room.Room {
	t.Helper()
	r, ok := h.rooms.Lookup(id)
	require.True(t, ok, "room %s not found", id)
	return r
}

func usernames(r *room.Room) []string {
	r.Lock()
	defer r.Unlock()
	var out []string
	for _, p := range r.Players() {
		out = append(out, p.Username)
	}
	return out
}

// Alice creates a public room; a discovery subscriber hears nothing until she
// enters the game view.
func TestScenarioA_CreatePublicRoom(t *testing.T) {
	h := newHarness(t, time.Hour)
	watcher := h.connect()
	h.svc.HandleMessage(watcher.ID(), []byte(`{"type":"discoverySubscribe"}`))
	require.Len(t, watcher.Events(), 1)

	alice := h.connect()
	h.svc.HandleMessage(alice.ID(), []byte(`{"type":"createLobby","username":"Alice","icon":"cat","visibility":"public"}`))

	created := alice.Last().(protocol.LobbyCreated)
	assert.Equal(t, 0, created.PlayerID)
	assert.Len(t, created.RoomID, 5)
	assert.NotEmpty(t, created.SessionToken)
	assert.Len(t, watcher.Events(), 1)
	assert.True(t, h.disc.IsSubscribed(alice.ID()))
}

func TestScenarioB_JoinUnknownRoom(t *testing.T) {
	h := newHarness(t, time.Hour)
	alice := h.connect()
	created := h.create(t, alice, "Alice", room.Public)

	bob := h.connect()
	h.svc.Dispatch(bob.ID(), protocol.JoinLobby{Username: "Bob", RoomID: "00001"})

	assert.Equal(t, protocol.NoRoom{RoomID: "00001"}, bob.Last())
	assert.Equal(t, 1, h.rooms.Len())
	assert.Equal(t, []string{"Alice"}, usernames(h.room(t, created.RoomID)))
}

func TestJoin_FullRoom(t *testing.T) {
	h := newHarness(t, time.Hour)
	created := h.create(t, h.connect(), "Alice", room.Private)
	for i := 1; i < 8; i++ {
		h.join(t, h.connect(), "p", created.RoomID, room.Private)
	}
	late := h.connect()
	h.svc.Dispatch(late.ID(), protocol.JoinLobby{Username: "late", RoomID: created.RoomID, Visibility: "private"})
	assert.Equal(t, protocol.RoomFull{RoomID: created.RoomID}, late.Last())
}

// Alice's index connection closes and she never comes back: after the grace
// period she is removed, the room is deleted, and discovery hears about it.
func TestScenarioC_GraceExpiryDeletesRoom(t *testing.T) {
	h := newHarness(t, time.Hour)
	watcher := h.connect()
	h.svc.Dispatch(watcher.ID(), protocol.DiscoverySubscribe{})

	alice := h.connect()
	created := h.create(t, alice, "Alice", room.Public)
	h.close(alice)
	assert.True(t, h.graces.IsPending(grace.Key{RoomID: created.RoomID, PlayerID: 0}))
	assert.Equal(t, 1, h.rooms.Len())

	removed := watcher.WaitFor(t, protocol.KindRoomRemoved, 1, waitLimit)
	assert.Equal(t, protocol.RoomRemoved{RoomID: created.RoomID}, removed[0])
	assert.Equal(t, 0, h.rooms.Len())
	assert.Equal(t, 0, h.graces.Len())
}

func TestReconnectWithinGrace_CancelsRemoval(t *testing.T) {
	h := newHarness(t, time.Hour)
	alice := h.connect()
	created := h.create(t, alice, "Alice", room.Public)
	bobIndex := h.connect()
	bob := h.join(t, bobIndex, "Bob", created.RoomID, room.Public)
	aliceGame := h.connect()
	h.enter(aliceGame, created.RoomID, 0, created.SessionToken)

	h.close(bobIndex)
	bobGame := h.connect()
	h.enter(bobGame, created.RoomID, bob.PlayerID, bob.SessionToken)
	assert.False(t, h.graces.IsPending(grace.Key{RoomID: created.RoomID, PlayerID: bob.PlayerID}))

	time.Sleep(3 * testGrace)
	assert.Empty(t, aliceGame.OfKind(protocol.KindPlayerLeft))
	assert.Equal(t, []string{"Alice", "Bob"}, usernames(h.room(t, created.RoomID)))
}

func TestPageEntered_WrongTokenChangesNothing(t *testing.T) {
	h := newHarness(t, time.Hour)
	alice := h.connect()
	created := h.create(t, alice, "Alice", room.Public)
	h.close(alice)
	key := grace.Key{RoomID: created.RoomID, PlayerID: 0}
	require.True(t, h.graces.IsPending(key))

	intruder := h.connect()
	h.enter(intruder, created.RoomID, 0, "guess")
	assert.Equal(t, protocol.TokenMismatch{RoomID: created.RoomID, PlayerID: 0}, intruder.Last())
	assert.True(t, h.graces.IsPending(key))

	r := h.room(t, created.RoomID)
	r.Lock()
	host := r.Host()
	assert.Empty(t, host.GameConn)
	assert.Empty(t, host.IndexConn)
	r.Unlock()

	h.enter(intruder, created.RoomID, 3, created.SessionToken)
	assert.Equal(t, protocol.Invalid{RoomID: created.RoomID, PlayerID: 3}, intruder.Last())
	h.enter(intruder, "00000", 0, created.SessionToken)
	assert.Equal(t, protocol.Invalid{RoomID: "00000", PlayerID: 0}, intruder.Last())
}

func TestPageEntered_AnnouncesThenCounts(t *testing.T) {
	h := newHarness(t, time.Hour)
	watcher := h.connect()
	h.svc.Dispatch(watcher.ID(), protocol.DiscoverySubscribe{})

	aliceIndex := h.connect()
	created := h.create(t, aliceIndex, "Alice", room.Public)
	bob := h.join(t, h.connect(), "Bob", created.RoomID, room.Public)

	// Bob enters before the host: the room is not advertised yet.
	bobGame := h.connect()
	h.enter(bobGame, created.RoomID, bob.PlayerID, bob.SessionToken)
	assert.Len(t, watcher.Events(), 1)

	aliceGame := h.connect()
	h.enter(aliceGame, created.RoomID, 0, created.SessionToken)
	assert.Equal(t, protocol.NewLobby{RoomSummary: protocol.RoomSummary{
		RoomID: created.RoomID, HostName: "Alice", PlayerCount: 2,
	}}, watcher.Last())
	assert.Len(t, aliceGame.OfKind(protocol.KindHostEntered), 1)
	assert.False(t, h.disc.IsSubscribed(aliceGame.ID()))

	joined := bobGame.OfKind(protocol.KindPlayerJoined)
	require.Len(t, joined, 2)
	assert.Equal(t, "Alice", joined[1].(protocol.PlayerJoined).Player.Username)
	assert.Len(t, joined[1].(protocol.PlayerJoined).Players, 2)

	carol := h.join(t, h.connect(), "Carol", created.RoomID, room.Public)
	h.enter(h.connect(), created.RoomID, carol.PlayerID, carol.SessionToken)
	assert.Equal(t, protocol.PlayerCountChanged{RoomID: created.RoomID, Count: 3}, watcher.Last())

	late := h.connect()
	h.svc.Dispatch(late.ID(), protocol.DiscoverySubscribe{})
	assert.Equal(t, protocol.LobbyList{Rooms: []protocol.RoomSummary{
		{RoomID: created.RoomID, HostName: "Alice", PlayerCount: 3},
	}}, late.Last())
}

func TestPrivateRoom_NeverInDiscovery(t *testing.T) {
	h := newHarness(t, time.Hour)
	watcher := h.connect()
	h.svc.Dispatch(watcher.ID(), protocol.DiscoverySubscribe{})

	alice := h.connect()
	created := h.create(t, alice, "Alice", room.Private)
	aliceGame := h.connect()
	h.enter(aliceGame, created.RoomID, 0, created.SessionToken)
	bob := h.join(t, h.connect(), "Bob", created.RoomID, room.Private)
	bobGame := h.connect()
	h.enter(bobGame, created.RoomID, bob.PlayerID, bob.SessionToken)
	h.close(bobGame)
	h.close(aliceGame)

	assert.Len(t, watcher.Events(), 1)
	assert.Equal(t, 0, h.rooms.Len())

	late := h.connect()
	h.svc.Dispatch(late.ID(), protocol.DiscoverySubscribe{})
	assert.Equal(t, protocol.LobbyList{Rooms: []protocol.RoomSummary{}}, late.Last())
}

func TestGameConnClose_RemovesImmediatelyAndRenumbers(t *testing.T) {
	h := newHarness(t, time.Hour)
	watcher := h.connect()
	h.svc.Dispatch(watcher.ID(), protocol.DiscoverySubscribe{})

	created := h.create(t, h.connect(), "Alice", room.Public)
	aliceGame := h.connect()
	h.enter(aliceGame, created.RoomID, 0, created.SessionToken)
	bob := h.join(t, h.connect(), "Bob", created.RoomID, room.Public)
	bobGame := h.connect()
	h.enter(bobGame, created.RoomID, bob.PlayerID, bob.SessionToken)
	carol := h.join(t, h.connect(), "Carol", created.RoomID, room.Public)
	carolGame := h.connect()
	h.enter(carolGame, created.RoomID, carol.PlayerID, carol.SessionToken)

	h.close(aliceGame)

	assert.Equal(t, []string{"Bob", "Carol"}, usernames(h.room(t, created.RoomID)))
	assert.Equal(t, protocol.PlayerLeft{PlayerID: 0, Username: "Alice"}, carolGame.OfKind(protocol.KindPlayerLeft)[0])
	assert.Equal(t, protocol.PlayersReshuffled{Players: []protocol.PlayerSummary{
		{PlayerID: 0, Username: "Bob", Icon: "icon"},
		{PlayerID: 1, Username: "Carol", Icon: "icon"},
	}}, carolGame.Last())
	assert.Equal(t, protocol.PlayerCountChanged{RoomID: created.RoomID, Count: 2}, watcher.Last())

	r := h.room(t, created.RoomID)
	r.Lock()
	assert.True(t, r.Host().IsHost)
	assert.Equal(t, bobGame.ID(), r.Host().GameConn)
	r.Unlock()
}

func TestIndexCloseWithOpenGameConn_KeepsPlayer(t *testing.T) {
	h := newHarness(t, time.Hour)
	index := h.connect()
	created := h.create(t, index, "Alice", room.Public)
	game := h.connect()
	h.enter(game, created.RoomID, 0, created.SessionToken)

	h.close(index)
	assert.Equal(t, 0, h.graces.Len())
	assert.Equal(t, []string{"Alice"}, usernames(h.room(t, created.RoomID)))
}

// A pending grace timer follows its player through renumbering.
func TestGraceTimer_FollowsRenumbering(t *testing.T) {
	h := newHarness(t, time.Hour)
	created := h.create(t, h.connect(), "Alice", room.Public)
	aliceGame := h.connect()
	h.enter(aliceGame, created.RoomID, 0, created.SessionToken)
	bob := h.join(t, h.connect(), "Bob", created.RoomID, room.Public)
	carolIndex := h.connect()
	h.join(t, carolIndex, "Carol", created.RoomID, room.Public)

	h.close(carolIndex)
	h.svc.Dispatch(h.connect().ID(), protocol.LeaveLobby{RoomID: created.RoomID, PlayerID: bob.PlayerID, SessionToken: bob.SessionToken})
	assert.True(t, h.graces.IsPending(grace.Key{RoomID: created.RoomID, PlayerID: 1}))
	assert.False(t, h.graces.IsPending(grace.Key{RoomID: created.RoomID, PlayerID: 2}))

	left := aliceGame.WaitFor(t, protocol.KindPlayerLeft, 2, waitLimit)
	assert.Equal(t, protocol.PlayerLeft{PlayerID: 1, Username: "Carol"}, left[1])
	assert.Equal(t, []string{"Alice"}, usernames(h.room(t, created.RoomID)))
}

func TestLeaveLobby(t *testing.T) {
	h := newHarness(t, time.Hour)
	alice := h.connect()
	created := h.create(t, alice, "Alice", room.Public)

	h.svc.Dispatch(alice.ID(), protocol.LeaveLobby{RoomID: created.RoomID, PlayerID: 0, SessionToken: "wrong"})
	assert.Equal(t, protocol.TokenMismatch{RoomID: created.RoomID, PlayerID: 0}, alice.Last())
	assert.Equal(t, 1, h.rooms.Len())

	h.svc.Dispatch(alice.ID(), protocol.LeaveLobby{RoomID: created.RoomID, PlayerID: 0, SessionToken: created.SessionToken})
	assert.Equal(t, protocol.LeftLobby{RoomID: created.RoomID}, alice.Last())
	assert.Equal(t, 0, h.rooms.Len())

	// the leaving connection's later close is untracked
	h.close(alice)
	assert.Equal(t, 0, h.graces.Len())
}

func TestScenarioD_HostStartsGame(t *testing.T) {
	h := newHarness(t, time.Millisecond)
	created := h.create(t, h.connect(), "Alice", room.Public)
	aliceGame := h.connect()
	h.enter(aliceGame, created.RoomID, 0, created.SessionToken)
	bob := h.join(t, h.connect(), "Bob", created.RoomID, room.Public)
	bobGame := h.connect()
	h.enter(bobGame, created.RoomID, bob.PlayerID, bob.SessionToken)

	h.svc.Dispatch(bobGame.ID(), protocol.StartGame{RoomID: created.RoomID, PlayerID: bob.PlayerID})
	assert.Equal(t, protocol.StartRejected{RoomID: created.RoomID, Reason: lobby.RejectNotHost}, bobGame.Last())
	r := h.room(t, created.RoomID)
	r.Lock()
	assert.False(t, r.Started())
	r.Unlock()

	h.svc.Dispatch(aliceGame.ID(), protocol.StartGame{RoomID: created.RoomID, PlayerID: 0})

	aliceTicket := aliceGame.OfKind(protocol.KindTicketAssigned)
	bobTicket := bobGame.OfKind(protocol.KindTicketAssigned)
	require.Len(t, aliceTicket, 1)
	require.Len(t, bobTicket, 1)
	assert.NotEqual(t, aliceTicket[0].(protocol.TicketAssigned).Ticket, bobTicket[0].(protocol.TicketAssigned).Ticket)

	aliceGame.WaitFor(t, protocol.KindGameOver, 1, waitLimit)
	bobGame.WaitFor(t, protocol.KindGameOver, 1, waitLimit)

	total := smallRules().Span()
	aliceDraws := aliceGame.OfKind(protocol.KindNumberDrawn)
	require.Len(t, aliceDraws, total)
	assert.Len(t, bobGame.OfKind(protocol.KindNumberDrawn), total)

	seen := make(map[int]bool)
	for i, ev := range aliceDraws {
		d := ev.(protocol.NumberDrawn)
		assert.False(t, seen[d.Value], "value %d drawn twice", d.Value)
		seen[d.Value] = true
		assert.Equal(t, i+1, d.Sequence)
		assert.Equal(t, total-i-1, d.Remaining)
	}
	assert.Equal(t, protocol.GameOver{RoomID: created.RoomID, Drawn: total}, aliceGame.Last())

	h.svc.Dispatch(aliceGame.ID(), protocol.StartGame{RoomID: created.RoomID, PlayerID: 0})
	assert.Equal(t, protocol.StartRejected{RoomID: created.RoomID, Reason: lobby.RejectAlreadyStarted}, aliceGame.Last())
}

func TestStartGame_UnknownRoom(t *testing.T) {
	h := newHarness(t, time.Hour)
	c := h.connect()
	h.svc.Dispatch(c.ID(), protocol.StartGame{RoomID: "55555"})
	assert.Equal(t, protocol.StartRejected{RoomID: "55555", Reason: lobby.RejectNoRoom}, c.Last())
}

func TestStartGame_HostIndexConnIsNotEnough(t *testing.T) {
	h := newHarness(t, time.Hour)
	alice := h.connect()
	created := h.create(t, alice, "Alice", room.Public)
	h.svc.Dispatch(alice.ID(), protocol.StartGame{RoomID: created.RoomID, PlayerID: 0})
	assert.Equal(t, protocol.StartRejected{RoomID: created.RoomID, Reason: lobby.RejectNotHost}, alice.Last())
}

func TestPageEntered_CatchesUpRunningGame(t *testing.T) {
	h := newHarness(t, 5*time.Millisecond)
	created := h.create(t, h.connect(), "Alice", room.Public)
	aliceGame := h.connect()
	h.enter(aliceGame, created.RoomID, 0, created.SessionToken)
	bob := h.join(t, h.connect(), "Bob", created.RoomID, room.Public)
	h.svc.Dispatch(aliceGame.ID(), protocol.StartGame{RoomID: created.RoomID})
	aliceGame.WaitFor(t, protocol.KindNumberDrawn, 3, waitLimit)

	bobGame := h.connect()
	h.enter(bobGame, created.RoomID, bob.PlayerID, bob.SessionToken)

	tickets := bobGame.OfKind(protocol.KindTicketAssigned)
	require.Len(t, tickets, 1)
	assert.Equal(t, bob.PlayerID, tickets[0].(protocol.TicketAssigned).PlayerID)
	states := bobGame.OfKind(protocol.KindGameState)
	require.Len(t, states, 1)
	state := states[0].(protocol.GameState)
	assert.GreaterOrEqual(t, len(state.Drawn), 3)
	assert.Equal(t, smallRules().Span(), len(state.Drawn)+state.Remaining)
}

func TestRoomDeletion_StopsDraw(t *testing.T) {
	h := newHarness(t, 10*time.Millisecond)
	created := h.create(t, h.connect(), "Alice", room.Public)
	aliceGame := h.connect()
	h.enter(aliceGame, created.RoomID, 0, created.SessionToken)
	h.svc.Dispatch(aliceGame.ID(), protocol.StartGame{RoomID: created.RoomID})
	aliceGame.WaitFor(t, protocol.KindNumberDrawn, 1, waitLimit)
	r := h.room(t, created.RoomID)

	h.close(aliceGame)
	assert.Equal(t, 0, h.rooms.Len())

	r.Lock()
	remaining := r.Pool().Remaining()
	r.Unlock()
	time.Sleep(50 * time.Millisecond)
	r.Lock()
	assert.Equal(t, remaining, r.Pool().Remaining())
	assert.True(t, r.Closed())
	r.Unlock()
}

func TestMalformedAndUntracked_AreNoOps(t *testing.T) {
	h := newHarness(t, time.Hour)
	c := h.connect()
	h.svc.HandleMessage(c.ID(), []byte(`not json`))
	h.svc.HandleMessage(c.ID(), []byte(`{"type":"dance"}`))
	h.svc.HandleMessage(c.ID(), []byte(`{"type":"createLobby","username":"A","visibility":"secret"}`))
	assert.Empty(t, c.Events())
	assert.Equal(t, 0, h.rooms.Len())

	h.svc.HandleClose(c.ID())
	h.svc.HandleClose(transport.NewID())
	assert.Equal(t, 0, h.graces.Len())
}

func TestShutdown_StopsTimers(t *testing.T) {
	h := newHarness(t, time.Hour)
	alice := h.connect()
	h.create(t, alice, "Alice", room.Public)
	h.close(alice)
	require.Equal(t, 1, h.graces.Len())

	h.svc.Shutdown()
	assert.Equal(t, 0, h.graces.Len())
	time.Sleep(3 * testGrace)
	assert.Equal(t, 1, h.rooms.Len())
}

// When the host leaves a public room, discovery lists the new slot-0 player
// as host.
func TestHostLeaves_ListingNamesNewHost(t *testing.T) {
	h := newHarness(t, time.Hour)
	watcher := h.connect()
	h.svc.Dispatch(watcher.ID(), protocol.DiscoverySubscribe{})

	created := h.create(t, h.connect(), "Alice", room.Public)
	aliceGame := h.connect()
	h.enter(aliceGame, created.RoomID, 0, created.SessionToken)
	bob := h.join(t, h.connect(), "Bob", created.RoomID, room.Public)
	h.enter(h.connect(), created.RoomID, bob.PlayerID, bob.SessionToken)

	h.close(aliceGame)
	assert.Equal(t, protocol.PlayerCountChanged{RoomID: created.RoomID, Count: 1}, watcher.Last())

	late := h.connect()
	h.svc.Dispatch(late.ID(), protocol.DiscoverySubscribe{})
	assert.Equal(t, protocol.LobbyList{Rooms: []protocol.RoomSummary{
		{RoomID: created.RoomID, HostName: "Bob", PlayerCount: 1},
	}}, late.Last())
}

func TestLegacyLobbyEntered_AuthenticatesWithWscode(t *testing.T) {
	h := newHarness(t, time.Hour)
	created := h.create(t, h.connect(), "Alice", room.Private)

	game := h.connect()
	h.svc.HandleMessage(game.ID(), []byte(`{"type":"lobbyEntered","roomID":"`+created.RoomID+
		`","playerID":0,"wscode":"`+created.SessionToken+`"}`))

	assert.Len(t, game.OfKind(protocol.KindHostEntered), 1)
	assert.Empty(t, game.OfKind(protocol.KindTokenMismatch))
}
