package server

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// roomClient is the write side of a connected websocket client. wsclient
// implements it; tests substitute stubs.
type roomClient interface {
	Send(frame []byte) error
	Close() error
}

// Pool fans frames out to a set of clients. A client whose write fails is
// dropped and closed; everyone else keeps receiving.
type Pool struct {
	name string
	mu   sync.Mutex
	set  map[roomClient]struct{}
}

func NewPool(name string) *Pool {
	return &Pool{name: name, set: map[roomClient]struct{}{}}
}

func (p *Pool) Add(c roomClient) {
	if p == nil || c == nil {
		return
	}
	p.mu.Lock()
	p.set[c] = struct{}{}
	p.mu.Unlock()
}

// Remove detaches c without closing it; the caller still owns the connection.
// Leaving a room must not tear down the transport.
func (p *Pool) Remove(c roomClient) {
	if p == nil || c == nil {
		return
	}
	p.mu.Lock()
	delete(p.set, c)
	p.mu.Unlock()
}

func (p *Pool) Broadcast(frame []byte) {
	if p == nil || len(frame) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for c := range p.set {
		if err := c.Send(frame); err != nil {
			log.Warn().Err(err).Str("component", "rooms").Str("pool", p.name).Msg("fanout write failed, dropping client")
			delete(p.set, c)
			_ = c.Close()
		}
	}
}

func (p *Pool) Count() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.set)
}

// Room is one session's fanout group, fed by the bus so frames published on
// any server instance reach the clients attached here.
type Room struct {
	ID   string
	Pool *Pool
}

// RoomManager creates rooms lazily and runs one bus reader per room for the
// manager's lifetime.
type RoomManager struct {
	bus     *Bus
	baseCtx context.Context

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRoomManager(ctx context.Context, bus *Bus) *RoomManager {
	return &RoomManager{bus: bus, baseCtx: ctx, rooms: map[string]*Room{}}
}

// GetOrCreate returns the room for sessionID, starting its bus reader on first
// use. Creating the room before any publish for its topic guarantees no frame
// for an attached client is ever dropped for lack of a subscriber.
func (rm *RoomManager) GetOrCreate(sessionID string) (*Room, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if room, ok := rm.rooms[sessionID]; ok {
		return room, nil
	}

	room := &Room{ID: sessionID, Pool: NewPool("room:" + sessionID)}
	ch, err := rm.bus.Subscribe(rm.baseCtx, roomTopic(sessionID))
	if err != nil {
		return nil, err
	}
	go func() {
		for msg := range ch {
			room.Pool.Broadcast(msg.Payload)
			msg.Ack()
		}
		log.Debug().Str("component", "rooms").Str("session_id", sessionID).Msg("room reader stopped")
	}()

	rm.rooms[sessionID] = room
	return room, nil
}

// Get returns an existing room without creating one.
func (rm *RoomManager) Get(sessionID string) (*Room, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	room, ok := rm.rooms[sessionID]
	return room, ok
}
