package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/jiminy/pkg/chatwire"
	"github.com/go-go-golems/jiminy/pkg/sessionlist"
)

func newStartedConsole(t *testing.T) (*Console, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	c, err := NewConsole(ConsoleConfig{Channel: tr})
	require.NoError(t, err)
	c.Start()
	return c, tr
}

func TestConsoleConnectSetup(t *testing.T) {
	c, tr := newStartedConsole(t)
	defer c.Close()

	// Channel was already connected, so setup ran from Start.
	assert.Equal(t, []string{chatwire.EventAdminConnect, chatwire.EventGetAllSessions}, tr.emitted())
}

func TestConsoleSessionListAndFilter(t *testing.T) {
	c, tr := newStartedConsole(t)
	defer c.Close()

	tr.fire(chatwire.EventAllSessionsList, []chatwire.Session{
		{SessionID: "s1", User: "Ada", IsActive: true},
		{SessionID: "s2", User: "Ben", IsActive: false},
	})
	require.Len(t, c.Sessions(), 2)

	c.SetFilter(sessionlist.FilterPast)
	got := c.Sessions()
	require.Len(t, got, 1)
	assert.Equal(t, "s2", got[0].SessionID)

	// Active-list change notification triggers a full re-request.
	before := len(tr.emitted())
	tr.fire(chatwire.EventSessionsList, nil)
	emitted := tr.emitted()
	require.Len(t, emitted, before+1)
	assert.Equal(t, chatwire.EventGetAllSessions, emitted[before])
}

func TestConsoleSelectThenSendScenario(t *testing.T) {
	c, tr := newStartedConsole(t)
	defer c.Close()

	tr.fire(chatwire.EventAllSessionsList, []chatwire.Session{{SessionID: "S1", User: "Ada", IsActive: true}})

	c.Select(chatwire.Session{SessionID: "S1", User: "Ada", IsActive: true})
	tr.fire(chatwire.EventMessagesHistory, []chatwire.HistoryRecord{
		{ID: "1", Sender: chatwire.SenderUser, Content: "hi"},
	})

	require.True(t, c.SendMessage("hello"))

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, chatwire.SenderUser, msgs[0].Sender)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, chatwire.SenderAdmin, msgs[1].Sender)
	assert.Equal(t, "hello", msgs[1].Content)

	s, ok := c.list.Get("S1")
	require.True(t, ok)
	assert.Equal(t, "Admin: hello", s.LastMessage, "preview updates immediately, before any server confirmation")
}

func TestConsoleSendWithoutSelectionIgnored(t *testing.T) {
	c, tr := newStartedConsole(t)
	defer c.Close()

	before := len(tr.emitted())
	assert.False(t, c.SendMessage("hello"))
	assert.False(t, c.SendMessage("   "))
	assert.Len(t, tr.emitted(), before)
}

func TestConsoleSessionSwitchClearsStateAndReordersRooms(t *testing.T) {
	c, tr := newStartedConsole(t)
	defer c.Close()

	a := chatwire.Session{SessionID: "A", User: "Ada"}
	b := chatwire.Session{SessionID: "B", User: "Ben"}

	c.Select(a)
	tr.fire(chatwire.EventMessagesHistory, []chatwire.HistoryRecord{{ID: "1", Sender: chatwire.SenderUser, Content: "from A"}})
	c.ToggleAIMode()
	require.True(t, c.AIModeEnabled())
	require.Equal(t, 1, len(c.Messages()))

	c.Select(b)
	assert.Empty(t, c.Messages(), "timeline cleared on switch")
	assert.False(t, c.AIModeEnabled(), "AI mode reset on switch")
	assert.Equal(t, "B", c.JoinedRoom())

	c.Select(a)
	assert.Empty(t, c.Messages())
	assert.Equal(t, "A", c.JoinedRoom())

	// Room traffic is strictly leave-then-join, one room at a time.
	var roomCalls []string
	for i, ev := range tr.emitted() {
		if ev == chatwire.EventAdminJoinSession || ev == chatwire.EventAdminLeaveSession {
			req := tr.payloads[i].(chatwire.RoomRequest)
			roomCalls = append(roomCalls, ev+":"+req.SessionID)
		}
	}
	assert.Equal(t, []string{
		"admin-join-session:A",
		"admin-leave-session:A",
		"admin-join-session:B",
		"admin-leave-session:B",
		"admin-join-session:A",
	}, roomCalls)
}

func TestConsoleAIModeBroadcastScoping(t *testing.T) {
	c, tr := newStartedConsole(t)
	defer c.Close()

	c.Select(chatwire.Session{SessionID: "S1"})

	tr.fire(chatwire.EventAIModeChanged, chatwire.AIModeChange{SessionID: "S2", Enabled: true})
	assert.False(t, c.AIModeEnabled(), "broadcast for another session is ignored")

	tr.fire(chatwire.EventAIModeChanged, chatwire.AIModeChange{SessionID: "S1", Enabled: true})
	assert.True(t, c.AIModeEnabled())
}

func TestConsoleReconnectSetupIsIdempotent(t *testing.T) {
	c, tr := newStartedConsole(t)
	defer c.Close()

	c.Select(chatwire.Session{SessionID: "S1"})

	// Simulate reconnect: the connect notification re-runs setup.
	tr.fire(chatwire.EventConnect, nil)

	emitted := tr.emitted()
	assert.Equal(t, chatwire.EventAdminConnect, emitted[len(emitted)-4])
	assert.Equal(t, chatwire.EventGetAllSessions, emitted[len(emitted)-3])
	assert.Equal(t, chatwire.EventAdminJoinSession, emitted[len(emitted)-2], "room rejoined after reconnect")
	assert.Equal(t, chatwire.EventGetMessages, emitted[len(emitted)-1], "history refreshed after reconnect")

	// Repeated Start does not stack handlers.
	c.Start()
	assert.Equal(t, 1, tr.handlerCount(chatwire.EventMessage))
}

func TestConsoleCloseLeavesRoomAndRemovesHandlers(t *testing.T) {
	c, tr := newStartedConsole(t)

	c.Select(chatwire.Session{SessionID: "S1"})
	c.Close()

	emitted := tr.emitted()
	assert.Equal(t, chatwire.EventAdminLeaveSession, emitted[len(emitted)-1])
	assert.Equal(t, 0, tr.handlerCount(chatwire.EventMessage))
	assert.Equal(t, 0, tr.handlerCount(chatwire.EventConnect))
}
