package chatwire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFillsFallbacks(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	rec := HistoryRecord{Message: "hi there"}
	msg := rec.Normalize(now)

	require.NotEmpty(t, msg.ID)
	assert.Equal(t, SenderUser, msg.Sender)
	assert.Equal(t, "hi there", msg.Content)
	assert.Equal(t, now, msg.CreatedAt)
	assert.False(t, msg.IsAI)
}

func TestNormalizeFieldVariants(t *testing.T) {
	now := time.Now()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		rec  HistoryRecord
		want Message
	}{
		{
			name: "isAdmin implies admin sender",
			rec:  HistoryRecord{ID: "m1", IsAdmin: true, Content: "hello"},
			want: Message{ID: "m1", Sender: SenderAdmin, Content: "hello", CreatedAt: now},
		},
		{
			name: "content wins over message",
			rec:  HistoryRecord{ID: "m2", Sender: SenderBot, Content: "a", Message: "b"},
			want: Message{ID: "m2", Sender: SenderBot, Content: "a", CreatedAt: now},
		},
		{
			name: "createdAt wins over timestamp",
			rec:  HistoryRecord{ID: "m3", Sender: SenderUser, Content: "x", CreatedAt: &ts, Timestamp: &now},
			want: Message{ID: "m3", Sender: SenderUser, Content: "x", CreatedAt: ts},
		},
		{
			name: "timestamp used when createdAt missing",
			rec:  HistoryRecord{ID: "m4", Sender: SenderUser, Content: "x", Timestamp: &ts},
			want: Message{ID: "m4", Sender: SenderUser, Content: "x", CreatedAt: ts},
		},
		{
			name: "ai flag carried",
			rec:  HistoryRecord{ID: "m5", IsAdmin: true, IsAI: true, Content: "generated"},
			want: Message{ID: "m5", Sender: SenderAdmin, Content: "generated", CreatedAt: now, IsAI: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rec.Normalize(now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveMessageIDUnique(t *testing.T) {
	a := DeriveMessageID(SenderBot)
	b := DeriveMessageID(SenderBot)
	require.NotEqual(t, a, b)
	assert.Contains(t, a, "bot-")
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(EventUserMessage, OutgoingMessage{SessionID: "s1", Content: "hi"})
	require.NoError(t, err)

	b, err := json.Marshal(env)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, EventUserMessage, decoded.Event)

	var out OutgoingMessage
	require.NoError(t, json.Unmarshal(decoded.Data, &out))
	assert.Equal(t, "s1", out.SessionID)
	assert.Equal(t, "hi", out.Content)
}

func TestDecodeEnvelopeRejectsMissingEvent(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"data":{}}`))
	require.Error(t, err)

	_, err = DecodeEnvelope([]byte(`not json`))
	require.Error(t, err)
}

func TestAckEnvelope(t *testing.T) {
	env, err := AckEnvelope("ack-1", InitSessionAck{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, EventAck, env.Event)
	assert.Equal(t, "ack-1", env.AckID)

	_, err = AckEnvelope("", nil)
	require.Error(t, err)
}
