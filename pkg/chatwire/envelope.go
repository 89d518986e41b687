package chatwire

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Envelope is the single frame shape exchanged over the event channel. Data holds
// the event payload verbatim; AckID, when set on an emit, requests an EventAck
// reply carrying the same AckID.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ackId,omitempty"`
}

// NewEnvelope marshals payload into an envelope for event. A nil payload produces
// an envelope with no data, which is valid for bare notifications like admin-connect.
func NewEnvelope(event string, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if event == "" {
		return env, errors.New("envelope: empty event name")
	}
	if payload == nil {
		return env, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return env, errors.Wrap(err, "envelope: marshal payload")
	}
	env.Data = b
	return env, nil
}

// AckEnvelope builds the reply frame for an emit that requested an ack.
func AckEnvelope(ackID string, payload any) (Envelope, error) {
	if ackID == "" {
		return Envelope{}, errors.New("envelope: empty ack id")
	}
	env, err := NewEnvelope(EventAck, payload)
	if err != nil {
		return Envelope{}, err
	}
	env.AckID = ackID
	return env, nil
}

// DecodeEnvelope parses a raw frame. Unknown fields are ignored so older peers
// stay compatible.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, errors.Wrap(err, "envelope: decode")
	}
	if env.Event == "" {
		return Envelope{}, errors.New("envelope: missing event name")
	}
	return env, nil
}
