package channel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jiminy/pkg/chatwire"
)

// Handler receives the raw payload of a dispatched event. Handlers run on the
// channel's read goroutine, in delivery order; a slow handler delays everything
// behind it.
type Handler func(data json.RawMessage)

// AckHandler receives the payload of an ack reply. A pending ack is dropped
// without being invoked if the transport disconnects first.
type AckHandler func(data json.RawMessage)

// Subscription undoes a single Subscribe. Cancel is idempotent.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// NewSubscription wraps cancel so alternative Transport implementations can
// hand out cancellable subscriptions.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Subscriber registers handlers for named events.
type Subscriber interface {
	Subscribe(event string, h Handler) *Subscription
}

// Emitter sends events to the remote peer.
type Emitter interface {
	Emit(event string, payload any) error
	EmitWithAck(event string, payload any, ack AckHandler) error
}

// Transport is what client components see: one shared channel instance per
// client role, created once at process start and never disposed by components.
type Transport interface {
	Subscriber
	Emitter
	Connected() bool
}

type Config struct {
	URL string

	// Reconnect backoff bounds. Zero values pick defaults (100ms, 5s).
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

type handlerEntry struct {
	id int64
	fn Handler
}

// Channel is a shared, lazily-connecting event channel over a websocket. It
// redials on transport failure and replays nothing: dependents listen for the
// connect notification and re-run their setup idempotently.
type Channel struct {
	url          string
	dialer       *websocket.Dialer
	reconnectMin time.Duration
	reconnectMax time.Duration
	log          zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	nextSub   int64
	handlers  map[string][]handlerEntry
	pending   map[string]AckHandler
}

var _ Transport = &Channel{}

func New(cfg Config) (*Channel, error) {
	if cfg.URL == "" {
		return nil, errors.New("channel: empty url")
	}
	min := cfg.ReconnectMin
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	max := cfg.ReconnectMax
	if max <= 0 {
		max = 5 * time.Second
	}
	return &Channel{
		url:          cfg.URL,
		dialer:       websocket.DefaultDialer,
		reconnectMin: min,
		reconnectMax: max,
		log:          log.With().Str("component", "channel").Str("url", cfg.URL).Logger(),
		handlers:     map[string][]handlerEntry{},
		pending:      map[string]AckHandler{},
	}, nil
}

// Run drives the dial/read/redial loop until ctx is cancelled. It is meant to be
// started once per process in its own goroutine.
func (c *Channel) Run(ctx context.Context) error {
	if c == nil {
		return errors.New("channel: not initialized")
	}
	if ctx == nil {
		return errors.New("channel: ctx is nil")
	}
	delay := c.reconnectMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.log.Debug().Err(err).Dur("retry_in", delay).Msg("dial failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.reconnectMax {
				delay = c.reconnectMax
			}
			continue
		}
		delay = c.reconnectMin

		c.mu.Lock()
		c.conn = conn
		c.connected = true
		c.mu.Unlock()
		c.log.Info().Msg("channel connected")
		c.dispatch(chatwire.EventConnect, nil)

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.connected = false
		dropped := len(c.pending)
		c.pending = map[string]AckHandler{}
		c.mu.Unlock()
		_ = conn.Close()
		if dropped > 0 {
			c.log.Debug().Int("pending_acks", dropped).Msg("dropped pending acks on disconnect")
		}
		c.log.Info().Msg("channel disconnected")
		c.dispatch(chatwire.EventDisconnect, nil)
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Msg("read loop end")
			return
		}
		env, err := chatwire.DecodeEnvelope(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if env.Event == chatwire.EventAck && env.AckID != "" {
			c.mu.Lock()
			ack, ok := c.pending[env.AckID]
			if ok {
				delete(c.pending, env.AckID)
			}
			c.mu.Unlock()
			if ok && ack != nil {
				ack(env.Data)
			}
			continue
		}
		c.dispatch(env.Event, env.Data)
	}
}

func (c *Channel) dispatch(event string, data json.RawMessage) {
	c.mu.Lock()
	entries := append([]handlerEntry(nil), c.handlers[event]...)
	c.mu.Unlock()
	for _, e := range entries {
		e.fn(data)
	}
}

// Subscribe registers h for event and returns its subscription. Handlers fire
// in registration order. The reserved connect/disconnect names deliver local
// lifecycle notifications.
func (c *Channel) Subscribe(event string, h Handler) *Subscription {
	if c == nil || event == "" || h == nil {
		return &Subscription{}
	}
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.handlers[event] = append(c.handlers[event], handlerEntry{id: id, fn: h})
	c.mu.Unlock()
	return &Subscription{cancel: func() { c.unsubscribe(event, id) }}
}

func (c *Channel) unsubscribe(event string, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.handlers[event]
	for i, e := range entries {
		if e.id == id {
			c.handlers[event] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(c.handlers[event]) == 0 {
		delete(c.handlers, event)
	}
}

// Emit sends a fire-and-forget event. It fails fast when disconnected; callers
// that must survive reconnects re-emit from their connect handler instead of
// retrying here.
func (c *Channel) Emit(event string, payload any) error {
	env, err := chatwire.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return c.write(env)
}

// EmitWithAck sends an event expecting a correlated ack reply. The ack handler
// runs on the read goroutine. There is no timeout: if the reply never arrives
// the ack is dropped on the next disconnect, matching the channel's
// no-local-retry policy.
func (c *Channel) EmitWithAck(event string, payload any, ack AckHandler) error {
	env, err := chatwire.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	env.AckID = uuid.NewString()
	if ack != nil {
		c.mu.Lock()
		c.pending[env.AckID] = ack
		c.mu.Unlock()
	}
	if err := c.write(env); err != nil {
		c.mu.Lock()
		delete(c.pending, env.AckID)
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Channel) write(env chatwire.Envelope) error {
	if c == nil {
		return errors.New("channel: not initialized")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("channel: not connected")
	}
	if err := c.conn.WriteJSON(env); err != nil {
		return errors.Wrap(err, "channel: write")
	}
	return nil
}

func (c *Channel) Connected() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
