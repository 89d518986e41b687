package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/jiminy/pkg/chatwire"
)

// echoServer acks init_session frames and mirrors everything else back as a
// message event, which is enough surface to exercise the channel.
type echoServer struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	conns    []*websocket.Conn
}

func (s *echoServer) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := chatwire.DecodeEnvelope(data)
		if err != nil {
			continue
		}
		var reply chatwire.Envelope
		if env.AckID != "" {
			reply, _ = chatwire.AckEnvelope(env.AckID, chatwire.InitSessionAck{SessionID: "srv-1"})
		} else {
			reply = chatwire.Envelope{Event: chatwire.EventMessage, Data: env.Data}
		}
		b, _ := json.Marshal(reply)
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}
}

func (s *echoServer) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func startChannel(t *testing.T) (*Channel, *echoServer, context.CancelFunc) {
	t.Helper()
	srv := &echoServer{}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(ts.Close)

	ch, err := New(Config{
		URL:          "ws" + strings.TrimPrefix(ts.URL, "http"),
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = ch.Run(ctx) }()
	require.Eventually(t, ch.Connected, 2*time.Second, 10*time.Millisecond)
	return ch, srv, cancel
}

func TestChannelEmitWithAck(t *testing.T) {
	ch, _, cancel := startChannel(t)
	defer cancel()

	got := make(chan chatwire.InitSessionAck, 1)
	err := ch.EmitWithAck(chatwire.EventInitSession, chatwire.InitSessionRequest{}, func(data json.RawMessage) {
		var ack chatwire.InitSessionAck
		_ = json.Unmarshal(data, &ack)
		got <- ack
	})
	require.NoError(t, err)

	select {
	case ack := <-got:
		assert.Equal(t, "srv-1", ack.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("ack never arrived")
	}
}

func TestChannelDispatchesSubscribedEvents(t *testing.T) {
	ch, _, cancel := startChannel(t)
	defer cancel()

	var mu sync.Mutex
	var contents []string
	sub := ch.Subscribe(chatwire.EventMessage, func(data json.RawMessage) {
		var out chatwire.OutgoingMessage
		_ = json.Unmarshal(data, &out)
		mu.Lock()
		contents = append(contents, out.Content)
		mu.Unlock()
	})
	defer sub.Cancel()

	require.NoError(t, ch.Emit(chatwire.EventUserMessage, chatwire.OutgoingMessage{SessionID: "s1", Content: "hello"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(contents) == 1 && contents[0] == "hello"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChannelEmitWhileDisconnected(t *testing.T) {
	ch, err := New(Config{URL: "ws://127.0.0.1:1/ws"})
	require.NoError(t, err)
	require.Error(t, ch.Emit(chatwire.EventAdminConnect, nil))
	require.Error(t, ch.EmitWithAck(chatwire.EventInitSession, nil, func(json.RawMessage) {}))
}

func TestChannelReconnectNotifiesConnectHandlers(t *testing.T) {
	ch, srv, cancel := startChannel(t)
	defer cancel()

	var mu sync.Mutex
	connects := 0
	sub := ch.Subscribe(chatwire.EventConnect, func(json.RawMessage) {
		mu.Lock()
		connects++
		mu.Unlock()
	})
	defer sub.Cancel()

	srv.dropAll()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connects >= 1
	}, 2*time.Second, 10*time.Millisecond, "connect notification after redial")
	require.Eventually(t, ch.Connected, 2*time.Second, 10*time.Millisecond)
}

func TestChannelDropsPendingAcksOnDisconnect(t *testing.T) {
	ch, srv, cancel := startChannel(t)
	defer cancel()

	// Register a pending ack directly so no server reply races the disconnect.
	ch.mu.Lock()
	fired := false
	ch.pending["never"] = func(json.RawMessage) { fired = true }
	ch.mu.Unlock()

	srv.dropAll()
	require.Eventually(t, func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		_, ok := ch.pending["never"]
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, fired)
}
