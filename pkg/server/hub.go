package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jiminy/pkg/chatwire"
)

// botInboxNote tells the responder a user message arrived.
type botInboxNote struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
}

// Hub owns the websocket side of the server: it upgrades connections, routes
// inbound envelopes, and fans outbound frames through the bus so room delivery
// works identically with one server instance or several. AI mode lives here as
// the authoritative in-memory value; it is deliberately not persisted.
type Hub struct {
	store    Store
	bus      *Bus
	rooms    *RoomManager
	admins   *Pool
	baseCtx  context.Context
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	aiMode map[string]bool
}

func NewHub(ctx context.Context, store Store, bus *Bus) (*Hub, error) {
	h := &Hub{
		store:   store,
		bus:     bus,
		rooms:   NewRoomManager(ctx, bus),
		admins:  NewPool("admins"),
		baseCtx: ctx,
		log:     log.With().Str("component", "hub").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		aiMode: map[string]bool{},
	}

	// Session-list change notifications nudge every admin to re-request the
	// full list.
	ch, err := bus.Subscribe(ctx, topicSessionsChanged)
	if err != nil {
		return nil, err
	}
	go func() {
		notice := mustFrame(chatwire.EventSessionsList, nil)
		for msg := range ch {
			h.admins.Broadcast(notice)
			msg.Ack()
		}
	}()
	return h, nil
}

// AIModeEnabled reports the authoritative AI-mode value for a session.
func (h *Hub) AIModeEnabled(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aiMode[sessionID]
}

func (h *Hub) notifySessionsChanged() {
	if err := h.bus.Publish(topicSessionsChanged, []byte(`{}`)); err != nil {
		h.log.Warn().Err(err).Msg("sessions-changed publish failed")
	}
}

// HandleWS upgrades the request and serves the connection until it drops.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &wsclient{
		hub:  h,
		conn: conn,
		log:  h.log.With().Str("remote", conn.RemoteAddr().String()).Logger(),
	}
	c.readLoop()
}

// wsclient is one connected peer. Its role is unknown until the first
// init_session (user) or admin-connect (admin) envelope.
type wsclient struct {
	hub  *Hub
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	role      string
	sessionID string
	joined    string
}

func (c *wsclient) Send(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsclient) Close() error {
	return c.conn.Close()
}

func (c *wsclient) readLoop() {
	defer c.teardown()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Msg("ws read loop end")
			return
		}
		env, err := chatwire.DecodeEnvelope(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.handle(env)
	}
}

func (c *wsclient) teardown() {
	_ = c.conn.Close()

	c.mu.Lock()
	role, sessionID, joined := c.role, c.sessionID, c.joined
	c.mu.Unlock()

	switch role {
	case "user":
		if room, ok := c.hub.rooms.Get(sessionID); ok {
			room.Pool.Remove(c)
		}
		if err := c.hub.store.SetActive(c.hub.baseCtx, sessionID, false); err != nil {
			c.log.Warn().Err(err).Msg("marking session inactive failed")
		}
		c.hub.notifySessionsChanged()
		c.log.Info().Str("session_id", sessionID).Msg("user disconnected")
	case "admin":
		c.hub.admins.Remove(c)
		if joined != "" {
			if room, ok := c.hub.rooms.Get(joined); ok {
				room.Pool.Remove(c)
			}
		}
		c.log.Info().Msg("admin disconnected")
	}
}

func (c *wsclient) handle(env chatwire.Envelope) {
	switch env.Event {
	case chatwire.EventInitSession:
		c.handleInitSession(env)
	case chatwire.EventUserMessage:
		c.handleUserMessage(env)
	case chatwire.EventAdminMessage:
		c.handleAdminMessage(env)
	case chatwire.EventAdminConnect:
		c.handleAdminConnect()
	case chatwire.EventGetAllSessions:
		c.handleGetAllSessions()
	case chatwire.EventAdminJoinSession:
		c.handleJoin(env)
	case chatwire.EventAdminLeaveSession:
		c.handleLeave(env)
	case chatwire.EventGetMessages:
		c.handleGetMessages(env)
	case chatwire.EventToggleAIMode:
		c.handleToggleAIMode(env)
	default:
		c.log.Debug().Str("event", env.Event).Msg("ignoring unknown event")
	}
}

func (c *wsclient) handleInitSession(env chatwire.Envelope) {
	ctx := c.hub.baseCtx
	var req chatwire.InitSessionRequest
	_ = json.Unmarshal(env.Data, &req)

	var sess chatwire.Session
	if id := strings.TrimSpace(req.SessionID); id != "" {
		existing, found, err := c.hub.store.GetSession(ctx, id)
		if err != nil {
			c.log.Warn().Err(err).Msg("session lookup failed")
		}
		if found {
			sess = existing
		}
	}
	if sess.SessionID == "" {
		// Unknown or absent identifier: mint a replacement silently.
		id := uuid.NewString()
		sess = chatwire.Session{
			SessionID: id,
			User:      "Guest-" + id[:8],
			IsActive:  true,
			Timestamp: time.Now(),
		}
		if err := c.hub.store.UpsertSession(ctx, sess); err != nil {
			c.log.Error().Err(err).Msg("session create failed")
			return
		}
	} else if err := c.hub.store.SetActive(ctx, sess.SessionID, true); err != nil {
		c.log.Warn().Err(err).Msg("session activate failed")
	}

	c.mu.Lock()
	c.role = "user"
	c.sessionID = sess.SessionID
	c.mu.Unlock()

	room, err := c.hub.rooms.GetOrCreate(sess.SessionID)
	if err != nil {
		c.log.Error().Err(err).Msg("room create failed")
		return
	}
	room.Pool.Add(c)
	c.hub.notifySessionsChanged()
	c.log.Info().Str("session_id", sess.SessionID).Msg("session initialized")

	if env.AckID != "" {
		ack, err := chatwire.AckEnvelope(env.AckID, chatwire.InitSessionAck{SessionID: sess.SessionID})
		if err == nil {
			if b, err := json.Marshal(ack); err == nil {
				_ = c.Send(b)
			}
		}
	}
}

func (c *wsclient) handleUserMessage(env chatwire.Envelope) {
	var req chatwire.OutgoingMessage
	_ = json.Unmarshal(env.Data, &req)
	if strings.TrimSpace(req.Content) == "" || req.SessionID == "" {
		return
	}
	m := chatwire.Message{
		ID:        chatwire.DeriveMessageID(chatwire.SenderUser),
		SessionID: req.SessionID,
		Sender:    chatwire.SenderUser,
		Content:   req.Content,
		CreatedAt: time.Now(),
	}
	c.hub.deliver(m, req.Content)

	note, _ := json.Marshal(botInboxNote{SessionID: req.SessionID, Content: req.Content})
	if err := c.hub.bus.Publish(topicBotInbox, note); err != nil {
		c.log.Warn().Err(err).Msg("bot inbox publish failed")
	}
}

func (c *wsclient) handleAdminMessage(env chatwire.Envelope) {
	var req chatwire.OutgoingMessage
	_ = json.Unmarshal(env.Data, &req)
	if strings.TrimSpace(req.Content) == "" || req.SessionID == "" {
		return
	}
	m := chatwire.Message{
		ID:        chatwire.DeriveMessageID(chatwire.SenderAdmin),
		SessionID: req.SessionID,
		Sender:    chatwire.SenderAdmin,
		Content:   req.Content,
		CreatedAt: time.Now(),
	}
	c.hub.deliver(m, "Admin: "+req.Content)
}

// deliver stores a message, updates the session preview, and fans the push out
// through the room topic.
func (h *Hub) deliver(m chatwire.Message, preview string) {
	ctx := h.baseCtx
	if err := h.store.SaveMessage(ctx, m); err != nil {
		h.log.Error().Err(err).Str("session_id", m.SessionID).Msg("message save failed")
	}
	if err := h.store.TouchPreview(ctx, m.SessionID, preview, m.CreatedAt); err != nil {
		h.log.Warn().Err(err).Msg("preview update failed")
	}
	if _, err := h.rooms.GetOrCreate(m.SessionID); err != nil {
		h.log.Error().Err(err).Msg("room create failed")
		return
	}
	if err := h.bus.Publish(roomTopic(m.SessionID), mustFrame(chatwire.EventMessage, m)); err != nil {
		h.log.Warn().Err(err).Msg("room publish failed")
	}
	h.notifySessionsChanged()
}

func (c *wsclient) handleAdminConnect() {
	c.mu.Lock()
	c.role = "admin"
	c.mu.Unlock()
	c.hub.admins.Add(c)
	c.log.Info().Msg("admin connected")
}

func (c *wsclient) handleGetAllSessions() {
	sessions, err := c.hub.store.ListSessions(c.hub.baseCtx)
	if err != nil {
		c.log.Error().Err(err).Msg("session list failed")
		return
	}
	_ = c.Send(mustFrame(chatwire.EventAllSessionsList, sessions))
}

func (c *wsclient) handleJoin(env chatwire.Envelope) {
	var req chatwire.RoomRequest
	_ = json.Unmarshal(env.Data, &req)
	if req.SessionID == "" {
		return
	}
	room, err := c.hub.rooms.GetOrCreate(req.SessionID)
	if err != nil {
		c.log.Error().Err(err).Msg("room create failed")
		return
	}

	c.mu.Lock()
	prev := c.joined
	c.joined = req.SessionID
	c.mu.Unlock()

	// Joining twice is idempotent; the pool is a set.
	if prev != "" && prev != req.SessionID {
		if prevRoom, ok := c.hub.rooms.Get(prev); ok {
			prevRoom.Pool.Remove(c)
		}
	}
	room.Pool.Add(c)
	c.log.Debug().Str("session_id", req.SessionID).Msg("admin joined room")
}

func (c *wsclient) handleLeave(env chatwire.Envelope) {
	var req chatwire.RoomRequest
	_ = json.Unmarshal(env.Data, &req)
	if req.SessionID == "" {
		return
	}
	if room, ok := c.hub.rooms.Get(req.SessionID); ok {
		room.Pool.Remove(c)
	}
	c.mu.Lock()
	if c.joined == req.SessionID {
		c.joined = ""
	}
	c.mu.Unlock()
	c.log.Debug().Str("session_id", req.SessionID).Msg("admin left room")
}

func (c *wsclient) handleGetMessages(env chatwire.Envelope) {
	var req chatwire.RoomRequest
	_ = json.Unmarshal(env.Data, &req)
	if req.SessionID == "" {
		return
	}
	msgs, err := c.hub.store.ListMessages(c.hub.baseCtx, req.SessionID)
	if err != nil {
		c.log.Error().Err(err).Msg("history load failed")
		return
	}
	_ = c.Send(mustFrame(chatwire.EventMessagesHistory, msgs))
}

func (c *wsclient) handleToggleAIMode(env chatwire.Envelope) {
	var req chatwire.AIModeChange
	_ = json.Unmarshal(env.Data, &req)
	if req.SessionID == "" {
		return
	}
	c.hub.mu.Lock()
	c.hub.aiMode[req.SessionID] = req.Enabled
	c.hub.mu.Unlock()

	if _, err := c.hub.rooms.GetOrCreate(req.SessionID); err != nil {
		c.log.Error().Err(err).Msg("room create failed")
		return
	}
	if err := c.hub.bus.Publish(roomTopic(req.SessionID), mustFrame(chatwire.EventAIModeChanged, req)); err != nil {
		c.log.Warn().Err(err).Msg("ai-mode broadcast failed")
	}
	c.log.Info().Str("session_id", req.SessionID).Bool("enabled", req.Enabled).Msg("ai mode changed")
}

// mustFrame encodes an outbound envelope; the payloads are our own types, so a
// marshal failure is a programming error.
func mustFrame(event string, payload any) []byte {
	env, err := chatwire.NewEnvelope(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("frame build failed")
		return nil
	}
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("frame marshal failed")
		return nil
	}
	return b
}
