package client

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jiminy/pkg/aimode"
	"github.com/go-go-golems/jiminy/pkg/channel"
	"github.com/go-go-golems/jiminy/pkg/chatwire"
	"github.com/go-go-golems/jiminy/pkg/roomsub"
	"github.com/go-go-golems/jiminy/pkg/sessionlist"
	"github.com/go-go-golems/jiminy/pkg/timeline"
)

// Console is the admin-role client. It aggregates the session list, keeps at
// most one room joined, replays history into the timeline on selection, and
// reconciles AI mode with the server's broadcasts.
type Console struct {
	ch       channel.Transport
	scope    *channel.Scope
	list     *sessionlist.Aggregator
	rooms    *roomsub.Manager
	ai       *aimode.State
	timeline *timeline.Timeline
	log      zerolog.Logger

	mu           sync.Mutex
	selected     chatwire.Session
	hasSelection bool
}

type ConsoleConfig struct {
	Channel channel.Transport
}

func NewConsole(cfg ConsoleConfig) (*Console, error) {
	if cfg.Channel == nil {
		return nil, errors.New("console: channel is nil")
	}
	return &Console{
		ch:       cfg.Channel,
		scope:    channel.NewScope(cfg.Channel),
		list:     sessionlist.New(),
		rooms:    roomsub.New(cfg.Channel),
		ai:       aimode.New(cfg.Channel),
		timeline: timeline.New(timeline.AdminRolePolicy),
		log:      log.With().Str("component", "console").Logger(),
	}, nil
}

// Start registers the console's handlers and runs connect setup if the channel
// is already up. Safe to call again; the scope replaces handlers in place.
func (c *Console) Start() {
	if c == nil {
		return
	}
	c.scope.On(chatwire.EventConnect, func(json.RawMessage) { c.connectSetup() })
	c.scope.On(chatwire.EventAllSessionsList, func(data json.RawMessage) {
		var sessions []chatwire.Session
		if err := json.Unmarshal(data, &sessions); err != nil {
			c.log.Warn().Err(err).Msg("dropping undecodable session list")
			return
		}
		c.list.SetSessions(sessions)
	})
	c.scope.On(chatwire.EventSessionsList, func(json.RawMessage) {
		// Active-list change notification: re-request the full list instead
		// of patching incrementally.
		c.emit(chatwire.EventGetAllSessions, nil)
	})
	c.scope.On(chatwire.EventMessage, func(data json.RawMessage) {
		var m chatwire.Message
		if err := json.Unmarshal(data, &m); err != nil {
			c.log.Warn().Err(err).Msg("dropping undecodable message push")
			return
		}
		c.timeline.AppendRemote(m)
	})
	c.scope.On(chatwire.EventMessagesHistory, func(data json.RawMessage) {
		var records []chatwire.HistoryRecord
		if err := json.Unmarshal(data, &records); err != nil {
			c.log.Warn().Err(err).Msg("dropping undecodable history")
			return
		}
		c.timeline.ReplaceHistory(records)
	})
	c.scope.On(chatwire.EventAIModeChanged, func(data json.RawMessage) {
		var change chatwire.AIModeChange
		if err := json.Unmarshal(data, &change); err != nil {
			c.log.Warn().Err(err).Msg("dropping undecodable ai-mode broadcast")
			return
		}
		c.ai.Apply(change)
	})

	if c.ch.Connected() {
		c.connectSetup()
	}
}

// connectSetup runs on every connect notification. Everything here is
// idempotent so a reconnect cannot duplicate state.
func (c *Console) connectSetup() {
	c.emit(chatwire.EventAdminConnect, nil)
	c.emit(chatwire.EventGetAllSessions, nil)
	c.rooms.Rejoin()
	if id, ok := c.selectedID(); ok {
		c.emit(chatwire.EventGetMessages, chatwire.RoomRequest{SessionID: id})
	}
}

// Select switches the console to session. The timeline is cleared before the
// new history arrives, AI mode resets to disabled, and the room membership
// moves leave-then-join.
func (c *Console) Select(session chatwire.Session) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.selected = session
	c.hasSelection = true
	c.mu.Unlock()

	c.timeline.Clear()
	c.ai.SelectSession(session.SessionID)
	c.rooms.Select(session.SessionID)
	c.emit(chatwire.EventGetMessages, chatwire.RoomRequest{SessionID: session.SessionID})
}

// SendMessage appends an optimistic admin message, emits admin_message, and
// updates the sidebar preview immediately. Empty content or no selection is
// silently ignored.
func (c *Console) SendMessage(content string) bool {
	if c == nil {
		return false
	}
	content = strings.TrimSpace(content)
	id, ok := c.selectedID()
	if content == "" || !ok {
		c.log.Debug().Bool("has_selection", ok).Msg("ignoring send")
		return false
	}

	now := time.Now()
	c.timeline.AppendLocal(chatwire.Message{
		ID:        chatwire.DeriveMessageID(chatwire.SenderAdmin),
		Sender:    chatwire.SenderAdmin,
		Content:   content,
		CreatedAt: now,
	})
	c.emit(chatwire.EventAdminMessage, chatwire.OutgoingMessage{SessionID: id, Content: content})
	c.list.TouchPreview(id, "Admin: "+content, now)
	return true
}

// ToggleAIMode flips the optimistic local copy and emits the intent; a no-op
// without a selection.
func (c *Console) ToggleAIMode() (enabled bool, ok bool) {
	if c == nil {
		return false, false
	}
	return c.ai.Toggle()
}

// SetFilter switches the session list view.
func (c *Console) SetFilter(f sessionlist.Filter) {
	if c == nil {
		return
	}
	c.list.SetFilter(f)
}

// Sessions returns the filtered session list view.
func (c *Console) Sessions() []chatwire.Session {
	if c == nil {
		return nil
	}
	return c.list.Filtered()
}

// AllSessions returns the unfiltered list.
func (c *Console) AllSessions() []chatwire.Session {
	if c == nil {
		return nil
	}
	return c.list.All()
}

// Messages returns the selected session's timeline.
func (c *Console) Messages() []chatwire.Message {
	if c == nil {
		return nil
	}
	return c.timeline.Messages()
}

// AIModeEnabled reports the local AI-mode copy for the selected session.
func (c *Console) AIModeEnabled() bool {
	if c == nil {
		return false
	}
	return c.ai.Enabled()
}

// Selected reports the current selection.
func (c *Console) Selected() (chatwire.Session, bool) {
	if c == nil {
		return chatwire.Session{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected, c.hasSelection
}

// JoinedRoom reports the currently joined room, for observability.
func (c *Console) JoinedRoom() string {
	if c == nil {
		return ""
	}
	return c.rooms.Joined()
}

// Close leaves the joined room and removes all handlers, the unmount path.
func (c *Console) Close() {
	if c == nil {
		return
	}
	c.rooms.Close()
	c.scope.Close()
}

func (c *Console) selectedID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasSelection || c.selected.SessionID == "" {
		return "", false
	}
	return c.selected.SessionID, true
}

func (c *Console) emit(event string, payload any) {
	if err := c.ch.Emit(event, payload); err != nil {
		c.log.Debug().Err(err).Str("event", event).Msg("emit failed, waiting for reconnect")
	}
}
