package actor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// JSONCodec encodes envelopes as one JSON document per mailbox entry.
//
//	{"from":"B","payload":null,"correlation_id":null,"command":"Pong","message_type":"Command"}
type JSONCodec struct{}

// wireEnvelope mirrors Envelope with pointers for the required fields so that
// absence can be told apart from a zero value.
type wireEnvelope struct {
	From          *string      `json:"from"`
	Payload       []byte       `json:"payload"`
	CorrelationID *string      `json:"correlation_id"`
	Command       *Command     `json:"command"`
	MessageType   *MessageType `json:"message_type"`
}

// Encode serializes env. Strings must be valid UTF-8; JSON would otherwise
// replace the bad bytes and the envelope would not decode to itself.
func (JSONCodec) Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("encode envelope: nil envelope")
	}
	if !utf8.ValidString(env.From) {
		return nil, fmt.Errorf("encode envelope: from is not valid UTF-8")
	}
	if env.CorrelationID != nil && !utf8.ValidString(*env.CorrelationID) {
		return nil, fmt.Errorf("encode envelope: correlation_id is not valid UTF-8")
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}

// Decode parses b. Any failure is a *DecodeError.
func (JSONCodec) Decode(b []byte) (*Envelope, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, &DecodeError{Reason: "empty buffer"}
	}
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, &DecodeError{Reason: "malformed envelope", Err: err}
	}
	if w.From == nil {
		return nil, &DecodeError{Reason: "missing field from"}
	}
	if w.MessageType == nil {
		return nil, &DecodeError{Reason: "missing field message_type"}
	}
	return &Envelope{
		From:          *w.From,
		Payload:       w.Payload,
		CorrelationID: w.CorrelationID,
		Command:       w.Command,
		MessageType:   *w.MessageType,
	}, nil
}
