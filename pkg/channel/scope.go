package channel

import "sync"

// Scope owns the subscriptions of one mounted view. On guarantees at most one
// active handler per event name within the scope: re-registering replaces the
// previous handler instead of accumulating alongside it, so re-running setup
// after a reconnect never double-subscribes. Close tears everything down.
type Scope struct {
	mu     sync.Mutex
	sub    Subscriber
	subs   map[string]*Subscription
	closed bool
}

func NewScope(s Subscriber) *Scope {
	return &Scope{sub: s, subs: map[string]*Subscription{}}
}

// On registers h for event, removing any handler this scope previously
// registered under the same name.
func (sc *Scope) On(event string, h Handler) {
	if sc == nil || sc.sub == nil || event == "" || h == nil {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}
	if prev, ok := sc.subs[event]; ok {
		prev.Cancel()
	}
	sc.subs[event] = sc.sub.Subscribe(event, h)
}

// Off removes the scope's handler for event, if any.
func (sc *Scope) Off(event string) {
	if sc == nil {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if prev, ok := sc.subs[event]; ok {
		prev.Cancel()
		delete(sc.subs, event)
	}
}

// Close cancels every subscription the scope registered. Further On calls are
// no-ops; a view that unmounted stays unmounted.
func (sc *Scope) Close() {
	if sc == nil {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}
	sc.closed = true
	for event, sub := range sc.subs {
		sub.Cancel()
		delete(sc.subs, event)
	}
}
