package client

import (
	"encoding/json"
	"sync"

	"github.com/go-go-golems/jiminy/pkg/channel"
)

// fakeTransport is an in-memory channel.Transport: it records emits and lets
// tests deliver server events directly to subscribed handlers.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	nextID    int64
	handlers  map[string]map[int64]channel.Handler

	events   []string
	payloads []any

	// initAckID, when set, answers init_session acks with this session id.
	initAckID string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connected: true,
		handlers:  map[string]map[int64]channel.Handler{},
	}
}

func (f *fakeTransport) Subscribe(event string, h channel.Handler) *channel.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	if f.handlers[event] == nil {
		f.handlers[event] = map[int64]channel.Handler{}
	}
	f.handlers[event][id] = h
	return channel.NewSubscription(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[event], id)
	})
}

func (f *fakeTransport) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeTransport) EmitWithAck(event string, payload any, ack channel.AckHandler) error {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
	ackID := f.initAckID
	f.mu.Unlock()
	if ackID != "" && ack != nil {
		b, _ := json.Marshal(map[string]string{"sessionId": ackID})
		ack(b)
	}
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// fire delivers a server event to every subscribed handler.
func (f *fakeTransport) fire(event string, payload any) {
	var data json.RawMessage
	if payload != nil {
		data, _ = json.Marshal(payload)
	}
	f.mu.Lock()
	hs := make([]channel.Handler, 0, len(f.handlers[event]))
	for _, h := range f.handlers[event] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(data)
	}
}

func (f *fakeTransport) emitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeTransport) handlerCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[event])
}
