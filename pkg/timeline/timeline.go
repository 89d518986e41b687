package timeline

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jiminy/pkg/chatwire"
)

// AcceptPolicy decides whether an inbound push belongs in this client's
// timeline. Optimistic local appends bypass the policy.
type AcceptPolicy func(m chatwire.Message) bool

// UserRolePolicy drops sender=user pushes: the user client pre-inserts its own
// messages optimistically, so the server's echo would render a duplicate.
func UserRolePolicy(m chatwire.Message) bool {
	return m.Sender == chatwire.SenderAdmin || m.Sender == chatwire.SenderBot
}

// AdminRolePolicy accepts every push; the room subscription already scopes
// delivery to the selected session.
func AdminRolePolicy(chatwire.Message) bool { return true }

// Timeline is one session's ordered, duplicate-free message sequence. Entries
// are ordered by arrival, never re-sorted by timestamp, and a message id that
// was already appended is ignored. The sequence is append-only between Clear
// and ReplaceHistory calls.
type Timeline struct {
	accept AcceptPolicy
	log    zerolog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
	msgs []chatwire.Message
}

func New(accept AcceptPolicy) *Timeline {
	if accept == nil {
		accept = AdminRolePolicy
	}
	return &Timeline{
		accept: accept,
		log:    log.With().Str("component", "timeline").Logger(),
		seen:   map[string]struct{}{},
	}
}

// AppendLocal appends an optimistic compose-time message, reporting whether it
// was added. The id is minted here when the caller did not provide one.
func (t *Timeline) AppendLocal(m chatwire.Message) bool {
	if t == nil {
		return false
	}
	return t.append(m, false)
}

// AppendRemote appends an inbound push after the role policy and dedup checks.
func (t *Timeline) AppendRemote(m chatwire.Message) bool {
	if t == nil {
		return false
	}
	return t.append(m, true)
}

func (t *Timeline) append(m chatwire.Message, remote bool) bool {
	if remote && !t.accept(m) {
		t.log.Debug().Str("sender", string(m.Sender)).Msg("dropping echoed push")
		return false
	}
	if m.ID == "" {
		m.ID = chatwire.DeriveMessageID(m.Sender)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.seen[m.ID]; dup {
		t.log.Debug().Str("id", m.ID).Msg("dropping duplicate message")
		return false
	}
	t.seen[m.ID] = struct{}{}
	t.msgs = append(t.msgs, m)
	return true
}

// ReplaceHistory swaps the whole sequence for a server-given history. This is a
// replacement, not a merge: optimistic leftovers from before the replay are
// discarded along with everything else. Records are normalized, and duplicate
// ids within the history itself collapse to the first occurrence.
func (t *Timeline) ReplaceHistory(records []chatwire.HistoryRecord) {
	if t == nil {
		return
	}
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = map[string]struct{}{}
	t.msgs = nil
	for _, rec := range records {
		m := rec.Normalize(now)
		if _, dup := t.seen[m.ID]; dup {
			continue
		}
		t.seen[m.ID] = struct{}{}
		t.msgs = append(t.msgs, m)
	}
}

// Clear empties the timeline, used when the selected session changes so a stale
// session's messages never show while the new history is in flight.
func (t *Timeline) Clear() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = map[string]struct{}{}
	t.msgs = nil
}

// Messages returns a copy of the current sequence in arrival order.
func (t *Timeline) Messages() []chatwire.Message {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]chatwire.Message(nil), t.msgs...)
}

// Len reports the number of entries.
func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}
