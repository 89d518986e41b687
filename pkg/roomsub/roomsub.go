package roomsub

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jiminy/pkg/channel"
	"github.com/go-go-golems/jiminy/pkg/chatwire"
)

// Manager keeps the admin client joined to at most one per-session room. Every
// selection change leaves the previous room before joining the next one, so the
// server never fans out two sessions' pushes to this client at once.
type Manager struct {
	emit channel.Emitter
	log  zerolog.Logger

	mu     sync.Mutex
	joined string
}

func New(emit channel.Emitter) *Manager {
	return &Manager{
		emit: emit,
		log:  log.With().Str("component", "roomsub").Logger(),
	}
}

// Select switches the joined room to sessionID. Passing "" just leaves the
// current room. Emit failures are logged and left to the reconnect path:
// Rejoin re-issues the join idempotently once the channel is back.
func (m *Manager) Select(sessionID string) {
	if m == nil || m.emit == nil {
		return
	}
	m.mu.Lock()
	prev := m.joined
	m.joined = sessionID
	m.mu.Unlock()

	if prev != "" {
		if err := m.emit.Emit(chatwire.EventAdminLeaveSession, chatwire.RoomRequest{SessionID: prev}); err != nil {
			m.log.Debug().Err(err).Str("session_id", prev).Msg("leave emit failed")
		}
	}
	if sessionID != "" {
		if err := m.emit.Emit(chatwire.EventAdminJoinSession, chatwire.RoomRequest{SessionID: sessionID}); err != nil {
			m.log.Debug().Err(err).Str("session_id", sessionID).Msg("join emit failed")
		}
	}
}

// Rejoin re-emits the join for the current room, used from the connect
// notification after a transport reconnect. Joining a room the server already
// has this client in is harmless.
func (m *Manager) Rejoin() {
	if m == nil || m.emit == nil {
		return
	}
	m.mu.Lock()
	joined := m.joined
	m.mu.Unlock()
	if joined == "" {
		return
	}
	if err := m.emit.Emit(chatwire.EventAdminJoinSession, chatwire.RoomRequest{SessionID: joined}); err != nil {
		m.log.Debug().Err(err).Str("session_id", joined).Msg("rejoin emit failed")
	}
}

// Close leaves the current room, the teardown path when the admin view
// unmounts.
func (m *Manager) Close() {
	m.Select("")
}

// Joined reports the currently joined session, "" when none.
func (m *Manager) Joined() string {
	if m == nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joined
}
