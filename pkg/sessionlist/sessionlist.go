package sessionlist

import (
	"sync"
	"time"

	"github.com/go-go-golems/jiminy/pkg/chatwire"
)

// Filter selects which slice of the session list the view shows.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterActive Filter = "active"
	FilterPast   Filter = "past"
)

// Aggregator holds the authoritative full session list and derives a filtered
// view. It never patches the list incrementally: on a change notification the
// owner re-requests the whole list and calls SetSessions, which is simpler and
// fine at the list sizes involved.
type Aggregator struct {
	mu       sync.Mutex
	sessions []chatwire.Session
	filter   Filter
}

func New() *Aggregator {
	return &Aggregator{filter: FilterAll}
}

// SetSessions replaces the full list.
func (a *Aggregator) SetSessions(sessions []chatwire.Session) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = append([]chatwire.Session(nil), sessions...)
}

// SetFilter switches the derived view. Unknown values fall back to FilterAll.
func (a *Aggregator) SetFilter(f Filter) {
	if a == nil {
		return
	}
	switch f {
	case FilterAll, FilterActive, FilterPast:
	default:
		f = FilterAll
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter = f
}

func (a *Aggregator) Filter() Filter {
	if a == nil {
		return FilterAll
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filter
}

// Filtered returns the sessions matching the current filter, in list order.
func (a *Aggregator) Filtered() []chatwire.Session {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]chatwire.Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		switch a.filter {
		case FilterActive:
			if !s.IsActive {
				continue
			}
		case FilterPast:
			if s.IsActive {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// All returns the unfiltered list.
func (a *Aggregator) All() []chatwire.Session {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]chatwire.Session(nil), a.sessions...)
}

// ActiveCount reports how many sessions are currently active.
func (a *Aggregator) ActiveCount() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, s := range a.sessions {
		if s.IsActive {
			n++
		}
	}
	return n
}

// TouchPreview updates a session's sidebar preview locally, ahead of any server
// confirmation, so an admin send shows up immediately.
func (a *Aggregator) TouchPreview(sessionID, lastMessage string, ts time.Time) {
	if a == nil || sessionID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.sessions {
		if a.sessions[i].SessionID == sessionID {
			a.sessions[i].LastMessage = lastMessage
			a.sessions[i].Timestamp = ts
			return
		}
	}
}

// Get looks a session up by id.
func (a *Aggregator) Get(sessionID string) (chatwire.Session, bool) {
	if a == nil {
		return chatwire.Session{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.sessions {
		if s.SessionID == sessionID {
			return s, true
		}
	}
	return chatwire.Session{}, false
}
