package identity

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/jiminy/pkg/channel"
	"github.com/go-go-golems/jiminy/pkg/chatwire"
)

// scriptedEmitter records emits and answers init_session acks with a fixed id.
type scriptedEmitter struct {
	ackSessionID string
	silent       bool
	emits        []string
	payloads     []any
}

func (e *scriptedEmitter) Emit(event string, payload any) error {
	e.emits = append(e.emits, event)
	e.payloads = append(e.payloads, payload)
	return nil
}

func (e *scriptedEmitter) EmitWithAck(event string, payload any, ack channel.AckHandler) error {
	e.emits = append(e.emits, event)
	e.payloads = append(e.payloads, payload)
	if e.silent {
		return nil
	}
	b, _ := json.Marshal(chatwire.InitSessionAck{SessionID: e.ackSessionID})
	ack(b)
	return nil
}

func TestHandshakeCreatesAndPersistsNewSession(t *testing.T) {
	store := &MemStore{}
	emitter := &scriptedEmitter{ackSessionID: "fresh-1"}

	m, err := NewManager(ManagerConfig{Emitter: emitter, Store: store})
	require.NoError(t, err)

	m.Handshake()

	assert.Equal(t, "fresh-1", m.SessionID())
	assert.Equal(t, 1, store.Saves)
	stored, _ := store.Load()
	assert.Equal(t, "fresh-1", stored)

	require.Len(t, emitter.payloads, 1)
	req := emitter.payloads[0].(chatwire.InitSessionRequest)
	assert.Empty(t, req.SessionID, "creation handshake carries no identifier")
}

func TestHandshakeResumeUnchangedWritesNothing(t *testing.T) {
	store := &MemStore{}
	require.NoError(t, store.Save("abc"))
	store.Saves = 0

	emitter := &scriptedEmitter{ackSessionID: "abc"}
	m, err := NewManager(ManagerConfig{Emitter: emitter, Store: store})
	require.NoError(t, err)

	m.Handshake()

	assert.Equal(t, "abc", m.SessionID())
	assert.Equal(t, 0, store.Saves, "unchanged id must not be re-persisted")

	req := emitter.payloads[0].(chatwire.InitSessionRequest)
	assert.Equal(t, "abc", req.SessionID)
}

func TestHandshakeReconcilesExpiredSession(t *testing.T) {
	store := &MemStore{}
	require.NoError(t, store.Save("stale"))
	store.Saves = 0

	emitter := &scriptedEmitter{ackSessionID: "minted"}
	m, err := NewManager(ManagerConfig{Emitter: emitter, Store: store})
	require.NoError(t, err)

	var notified string
	m.onSession = func(id string) { notified = id }

	m.Handshake()

	assert.Equal(t, "minted", m.SessionID())
	assert.Equal(t, "minted", notified)
	assert.Equal(t, 1, store.Saves)
	stored, _ := store.Load()
	assert.Equal(t, "minted", stored)

	// Only the resume handshake went out; no second creation handshake.
	assert.Equal(t, []string{chatwire.EventInitSession}, emitter.emits)
}

func TestHandshakeWithoutAckLeavesStateUntouched(t *testing.T) {
	store := &MemStore{}
	emitter := &scriptedEmitter{silent: true}
	m, err := NewManager(ManagerConfig{Emitter: emitter, Store: store})
	require.NoError(t, err)

	m.Handshake()

	assert.Empty(t, m.SessionID(), "stays in implicit connecting state")
	assert.Equal(t, 0, store.Saves)
}

func TestHandshakeRerunIsIdempotent(t *testing.T) {
	store := &MemStore{}
	emitter := &scriptedEmitter{ackSessionID: "s-1"}
	m, err := NewManager(ManagerConfig{Emitter: emitter, Store: store})
	require.NoError(t, err)

	m.Handshake()
	m.Handshake()
	m.Handshake()

	assert.Equal(t, "s-1", m.SessionID())
	assert.Equal(t, 1, store.Saves, "re-running the resume handshake creates no duplicate state")
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session-id")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Save("abc-123"))
	got, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc-123", got)

	require.Error(t, s.Save("  "))
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(ManagerConfig{Store: &MemStore{}})
	require.Error(t, err)
	_, err = NewManager(ManagerConfig{Emitter: &scriptedEmitter{}})
	require.Error(t, err)
}
