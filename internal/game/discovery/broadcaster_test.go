package discovery_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/tambola/internal/game/discovery"
	"github.com/cory-johannsen/tambola/internal/protocol"
	"github.com/cory-johannsen/tambola/internal/testutil"
	"github.com/cory-johannsen/tambola/internal/transport"
)

func setup(t *testing.T, n int) (*discovery.Broadcaster, []*testutil.FakeConn) {
	t.Helper()
	tbl := transport.NewTable()
	conns := make([]*testutil.FakeConn, n)
	for i := range conns {
		conns[i] = testutil.NewFakeConn()
		tbl.Add(conns[i])
	}
	return discovery.New(tbl, zaptest.NewLogger(t)), conns
}

func TestSubscribe_SendsSnapshot(t *testing.T) {
	b, conns := setup(t, 1)
	b.Announce(protocol.RoomSummary{RoomID: "20000", HostName: "Zed", PlayerCount: 2})
	b.Announce(protocol.RoomSummary{RoomID: "10000", HostName: "Alice", PlayerCount: 1})

	b.Subscribe(conns[0].ID())

	require.Len(t, conns[0].Events(), 1)
	assert.Equal(t, protocol.LobbyList{Rooms: []protocol.RoomSummary{
		{RoomID: "10000", HostName: "Alice", PlayerCount: 1},
		{RoomID: "20000", HostName: "Zed", PlayerCount: 2},
	}}, conns[0].Last())
	assert.True(t, b.IsSubscribed(conns[0].ID()))
}

func TestSubscribe_EmptySnapshot(t *testing.T) {
	b, conns := setup(t, 1)
	b.Subscribe(conns[0].ID())
	assert.Equal(t, protocol.LobbyList{Rooms: []protocol.RoomSummary{}}, conns[0].Last())
}

func TestBroadcast_OnlyFlaggedOpenConnections(t *testing.T) {
	b, conns := setup(t, 3)
	b.Flag(conns[0].ID())
	b.Flag(conns[1].ID())
	conns[1].Close()

	b.Announce(protocol.RoomSummary{RoomID: "12345", HostName: "Alice", PlayerCount: 1})

	assert.Len(t, conns[0].OfKind(protocol.KindNewLobby), 1)
	assert.Empty(t, conns[1].Events())
	assert.Empty(t, conns[2].Events())
	// closed subscribers are pruned on the first failed delivery
	assert.False(t, b.IsSubscribed(conns[1].ID()))
}

func TestUnflag_StopsDelivery(t *testing.T) {
	b, conns := setup(t, 1)
	b.Flag(conns[0].ID())
	b.Unflag(conns[0].ID())
	b.Remove("12345")
	assert.Empty(t, conns[0].Events())
}

func TestUpdate_ReplacesHostName(t *testing.T) {
	b, conns := setup(t, 2)
	b.Flag(conns[0].ID())

	assert.False(t, b.Update(protocol.RoomSummary{RoomID: "99999", HostName: "Bob", PlayerCount: 1}))
	assert.Empty(t, conns[0].Events())

	b.Announce(protocol.RoomSummary{RoomID: "12345", HostName: "Alice", PlayerCount: 2})
	assert.True(t, b.Update(protocol.RoomSummary{RoomID: "12345", HostName: "Bob", PlayerCount: 1}))
	assert.Equal(t, protocol.PlayerCountChanged{RoomID: "12345", Count: 1}, conns[0].Last())

	b.Subscribe(conns[1].ID())
	assert.Equal(t, protocol.LobbyList{Rooms: []protocol.RoomSummary{
		{RoomID: "12345", HostName: "Bob", PlayerCount: 1},
	}}, conns[1].Last())
}

func TestBroadcast_ReachesSubscribersOnly(t *testing.T) {
	b, conns := setup(t, 2)
	b.Subscribe(conns[0].ID())

	b.Broadcast(protocol.RoomRemoved{RoomID: "12345"})

	assert.Equal(t, protocol.RoomRemoved{RoomID: "12345"}, conns[0].Last())
	assert.Empty(t, conns[1].Events())
}

func TestRemove_AlwaysBroadcasts(t *testing.T) {
	b, conns := setup(t, 1)
	b.Flag(conns[0].ID())
	b.Announce(protocol.RoomSummary{RoomID: "12345", HostName: "Alice", PlayerCount: 1})

	b.Remove("12345")
	b.Remove("54321")

	removed := conns[0].OfKind(protocol.KindRoomRemoved)
	require.Len(t, removed, 2)
	assert.Equal(t, protocol.RoomRemoved{RoomID: "12345"}, removed[0])
	assert.False(t, b.IsListed("12345"))
	assert.Empty(t, b.Snapshot())
}

func TestSnapshotThenIncremental(t *testing.T) {
	b, conns := setup(t, 2)
	b.Announce(protocol.RoomSummary{RoomID: "11111", HostName: "A", PlayerCount: 1})
	b.Subscribe(conns[0].ID())
	b.Announce(protocol.RoomSummary{RoomID: "22222", HostName: "B", PlayerCount: 1})
	b.Subscribe(conns[1].ID())
	b.Update(protocol.RoomSummary{RoomID: "11111", HostName: "A", PlayerCount: 4})

	// both subscribers converge on the same view
	early := conns[0].Events()
	require.Len(t, early, 3)
	assert.Equal(t, protocol.KindLobbyList, early[0].Kind())
	assert.Equal(t, protocol.KindNewLobby, early[1].Kind())
	assert.Equal(t, protocol.KindPlayerCountChanged, early[2].Kind())

	late := conns[1].Events()
	require.Len(t, late, 2)
	assert.Len(t, late[0].(protocol.LobbyList).Rooms, 2)
	assert.Equal(t, protocol.KindPlayerCountChanged, late[1].Kind())
}
