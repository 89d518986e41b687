package aimode

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jiminy/pkg/channel"
	"github.com/go-go-golems/jiminy/pkg/chatwire"
)

// State tracks the admin's local copy of a session's AI-assistance flag. The
// server owns the authoritative value; toggles flip locally and emit an intent,
// and whatever the server broadcasts last wins. Selecting any session, even the
// one already selected, resets the copy to disabled so a stale mode never leaks
// between sessions.
type State struct {
	emit channel.Emitter
	log  zerolog.Logger

	mu        sync.Mutex
	sessionID string
	enabled   bool
}

func New(emit channel.Emitter) *State {
	return &State{
		emit: emit,
		log:  log.With().Str("component", "aimode").Logger(),
	}
}

// SelectSession switches the state machine to sessionID and resets the local
// copy to disabled, pending the next authoritative broadcast.
func (s *State) SelectSession(sessionID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.sessionID = sessionID
	s.enabled = false
	s.mu.Unlock()
}

// Toggle flips the local copy optimistically and emits the toggle intent,
// returning the new local value. With no session selected it does nothing and
// emits nothing.
func (s *State) Toggle() (enabled bool, ok bool) {
	if s == nil || s.emit == nil {
		return false, false
	}
	s.mu.Lock()
	if s.sessionID == "" {
		s.mu.Unlock()
		s.log.Debug().Msg("toggle with no session selected, ignoring")
		return false, false
	}
	s.enabled = !s.enabled
	target := chatwire.AIModeChange{SessionID: s.sessionID, Enabled: s.enabled}
	s.mu.Unlock()

	// Fire and forget; the real transition is the server's broadcast.
	if err := s.emit.Emit(chatwire.EventToggleAIMode, target); err != nil {
		s.log.Debug().Err(err).Msg("toggle intent emit failed")
	}
	return target.Enabled, true
}

// Apply installs an authoritative broadcast. Broadcasts for other sessions are
// ignored; repeated identical broadcasts are idempotent.
func (s *State) Apply(change chatwire.AIModeChange) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if change.SessionID == "" || change.SessionID != s.sessionID {
		return
	}
	s.enabled = change.Enabled
}

// Enabled reports the local copy for the currently selected session.
func (s *State) Enabled() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SessionID reports the selected session, "" when none.
func (s *State) SessionID() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}
