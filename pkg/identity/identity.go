package identity

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jiminy/pkg/channel"
	"github.com/go-go-golems/jiminy/pkg/chatwire"
)

var (
	errNilEmitter = errors.New("identity: emitter is nil")
	errNilStore   = errors.New("identity: store is nil")
)

// Manager obtains, persists and reconciles the client's session identifier.
// Handshake is safe to re-run on every connect notification: resuming an
// identifier the server still recognizes writes nothing, and a differing
// canonical identifier is reconciled silently by overwriting the stored value.
// There is no local timeout; a handshake whose ack never arrives is simply
// superseded by the next connect.
type Manager struct {
	emit      channel.Emitter
	store     Store
	log       zerolog.Logger
	onSession func(sessionID string)

	mu        sync.Mutex
	sessionID string
}

type ManagerConfig struct {
	Emitter channel.Emitter
	Store   Store
	// OnSession runs after every successful handshake with the canonical id.
	OnSession func(sessionID string)
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Emitter == nil {
		return nil, errNilEmitter
	}
	if cfg.Store == nil {
		return nil, errNilStore
	}
	return &Manager{
		emit:      cfg.Emitter,
		store:     cfg.Store,
		onSession: cfg.OnSession,
		log:       log.With().Str("component", "identity").Logger(),
	}, nil
}

// Handshake sends init_session with the stored identifier (if any) and
// reconciles the ack. Errors from a disconnected channel are swallowed: the
// next connect notification re-runs the handshake.
func (m *Manager) Handshake() {
	if m == nil {
		return
	}
	stored, err := m.store.Load()
	if err != nil {
		m.log.Warn().Err(err).Msg("loading stored session id failed, creating a fresh session")
		stored = ""
	}

	req := chatwire.InitSessionRequest{SessionID: stored}
	err = m.emit.EmitWithAck(chatwire.EventInitSession, req, func(data json.RawMessage) {
		var ack chatwire.InitSessionAck
		if err := json.Unmarshal(data, &ack); err != nil || ack.SessionID == "" {
			m.log.Warn().Err(err).Msg("unusable init_session ack")
			return
		}
		m.reconcile(stored, ack.SessionID)
	})
	if err != nil {
		m.log.Debug().Err(err).Msg("init_session emit failed, waiting for reconnect")
	}
}

func (m *Manager) reconcile(stored, canonical string) {
	if canonical != stored {
		if err := m.store.Save(canonical); err != nil {
			m.log.Warn().Err(err).Msg("persisting session id failed")
		} else if stored == "" {
			m.log.Info().Str("session_id", canonical).Msg("session created")
		} else {
			// Expired or unknown stored id; the server minted a replacement.
			m.log.Info().Str("stale_session_id", stored).Str("session_id", canonical).Msg("session id reconciled")
		}
	}

	m.mu.Lock()
	m.sessionID = canonical
	m.mu.Unlock()

	if m.onSession != nil {
		m.onSession(canonical)
	}
}

// SessionID returns the canonical identifier, or "" before the first handshake
// completes (the implicit "connecting" state).
func (m *Manager) SessionID() string {
	if m == nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}
