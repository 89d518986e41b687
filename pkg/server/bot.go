package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jiminy/pkg/chatwire"
)

// Responder consumes user messages off the bot inbox and answers sessions that
// have AI mode enabled. Replies are stored and fanned out like any admin
// message, flagged as AI-generated.
type Responder struct {
	hub   *Hub
	reply string
	log   zerolog.Logger
}

func NewResponder(hub *Hub, reply string) *Responder {
	if reply == "" {
		reply = defaultBotReply
	}
	return &Responder{
		hub:   hub,
		reply: reply,
		log:   log.With().Str("component", "responder").Logger(),
	}
}

// Run blocks consuming the inbox until ctx is canceled.
func (r *Responder) Run(ctx context.Context) error {
	ch, err := r.hub.bus.Subscribe(ctx, topicBotInbox)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.consume(msg.Payload)
			msg.Ack()
		}
	}
}

func (r *Responder) consume(payload []byte) {
	var note botInboxNote
	if err := json.Unmarshal(payload, &note); err != nil {
		r.log.Warn().Err(err).Msg("malformed inbox note")
		return
	}
	if note.SessionID == "" || !r.hub.AIModeEnabled(note.SessionID) {
		return
	}
	m := chatwire.Message{
		ID:        chatwire.DeriveMessageID(chatwire.SenderAdmin),
		SessionID: note.SessionID,
		Sender:    chatwire.SenderAdmin,
		Content:   r.reply,
		IsAI:      true,
		CreatedAt: time.Now(),
	}
	r.hub.deliver(m, "Admin: "+m.Content)
	r.log.Debug().Str("session_id", note.SessionID).Msg("ai reply sent")
}
