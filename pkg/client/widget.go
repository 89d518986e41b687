package client

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jiminy/pkg/channel"
	"github.com/go-go-golems/jiminy/pkg/chatwire"
	"github.com/go-go-golems/jiminy/pkg/identity"
	"github.com/go-go-golems/jiminy/pkg/timeline"
)

const defaultGreeting = "Hello! How can I assist you?"

// Widget is the user-role client: it owns the session identity handshake and a
// user-policy timeline. Inbound sender=user pushes are the server echoing this
// client's own optimistic messages and are dropped by the timeline policy.
type Widget struct {
	ch       channel.Transport
	scope    *channel.Scope
	identity *identity.Manager
	timeline *timeline.Timeline
	log      zerolog.Logger
}

type WidgetConfig struct {
	Channel channel.Transport
	Store   identity.Store
	// Greeting seeds the empty timeline before any network traffic. Empty
	// picks the default; seeding can not be disabled, matching the widget's
	// always-greet behavior.
	Greeting string
}

func NewWidget(cfg WidgetConfig) (*Widget, error) {
	if cfg.Channel == nil {
		return nil, errors.New("widget: channel is nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("widget: identity store is nil")
	}
	w := &Widget{
		ch:       cfg.Channel,
		scope:    channel.NewScope(cfg.Channel),
		timeline: timeline.New(timeline.UserRolePolicy),
		log:      log.With().Str("component", "widget").Logger(),
	}
	mgr, err := identity.NewManager(identity.ManagerConfig{
		Emitter: cfg.Channel,
		Store:   cfg.Store,
	})
	if err != nil {
		return nil, err
	}
	w.identity = mgr

	greeting := cfg.Greeting
	if greeting == "" {
		greeting = defaultGreeting
	}
	w.timeline.AppendLocal(chatwire.Message{
		ID:        "greeting-bot",
		Sender:    chatwire.SenderBot,
		Content:   greeting,
		CreatedAt: time.Now(),
	})
	return w, nil
}

// Start registers the widget's handlers and, when the channel is already
// connected, runs the handshake immediately. It is idempotent: the scope
// replaces handlers instead of stacking them.
func (w *Widget) Start() {
	if w == nil {
		return
	}
	w.scope.On(chatwire.EventConnect, func(json.RawMessage) {
		w.identity.Handshake()
	})
	w.scope.On(chatwire.EventMessage, func(data json.RawMessage) {
		var m chatwire.Message
		if err := json.Unmarshal(data, &m); err != nil {
			w.log.Warn().Err(err).Msg("dropping undecodable message push")
			return
		}
		w.timeline.AppendRemote(m)
	})
	if w.ch.Connected() {
		w.identity.Handshake()
	}
}

// Send appends content optimistically and emits user_message. Empty content or
// a missing session id are ignored silently, not surfaced as errors.
func (w *Widget) Send(content string) bool {
	if w == nil {
		return false
	}
	content = strings.TrimSpace(content)
	sessionID := w.identity.SessionID()
	if content == "" || sessionID == "" {
		w.log.Debug().Bool("has_session", sessionID != "").Msg("ignoring send")
		return false
	}

	w.timeline.AppendLocal(chatwire.Message{
		ID:        chatwire.DeriveMessageID(chatwire.SenderUser),
		Sender:    chatwire.SenderUser,
		Content:   content,
		CreatedAt: time.Now(),
	})
	if err := w.ch.Emit(chatwire.EventUserMessage, chatwire.OutgoingMessage{
		SessionID: sessionID,
		Content:   content,
	}); err != nil {
		w.log.Debug().Err(err).Msg("user_message emit failed")
	}
	return true
}

// Messages returns the rendered timeline in arrival order.
func (w *Widget) Messages() []chatwire.Message {
	if w == nil {
		return nil
	}
	return w.timeline.Messages()
}

// SessionID reports the canonical session id, "" while still connecting.
func (w *Widget) SessionID() string {
	if w == nil {
		return ""
	}
	return w.identity.SessionID()
}

// Close removes the widget's handlers.
func (w *Widget) Close() {
	if w == nil {
		return
	}
	w.scope.Close()
}
