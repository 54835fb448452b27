package actor

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// =============================================================================
// Command - control plane vocabulary
// =============================================================================

// CommandKind is the tag of a Command. The set is closed.
type CommandKind uint8

const (
	CommandPing CommandKind = iota + 1
	CommandPong
	CommandAck
	CommandNoAck
	CommandHealthCheck
	CommandOk
	CommandErr
	CommandSeq
)

var commandNames = map[CommandKind]string{
	CommandPing:        "Ping",
	CommandPong:        "Pong",
	CommandAck:         "Ack",
	CommandNoAck:       "NoAck",
	CommandHealthCheck: "HealthCheck",
	CommandOk:          "Ok",
	CommandErr:         "Err",
	CommandSeq:         "Seq",
}

var commandKinds = func() map[string]CommandKind {
	m := make(map[string]CommandKind, len(commandNames))
	for k, name := range commandNames {
		m[name] = k
	}
	return m
}()

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return fmt.Sprintf("CommandKind(%d)", uint8(k))
}

// Valid reports whether k is one of the known kinds.
func (k CommandKind) Valid() bool {
	_, ok := commandNames[k]
	return ok
}

// Command is an immutable control command. Seq is only meaningful for CommandSeq.
type Command struct {
	Kind CommandKind
	Seq  uint32
}

func Ping() Command        { return Command{Kind: CommandPing} }
func Pong() Command        { return Command{Kind: CommandPong} }
func Ack() Command         { return Command{Kind: CommandAck} }
func NoAck() Command       { return Command{Kind: CommandNoAck} }
func HealthCheck() Command { return Command{Kind: CommandHealthCheck} }
func Ok() Command          { return Command{Kind: CommandOk} }
func Err() Command         { return Command{Kind: CommandErr} }
func Seq(n uint32) Command { return Command{Kind: CommandSeq, Seq: n} }

func (c Command) String() string {
	if c.Kind == CommandSeq {
		return fmt.Sprintf("Seq(%d)", c.Seq)
	}
	return c.Kind.String()
}

// ParseCommand parses the textual forms "Ping", "HealthCheck", "Seq(42)".
func ParseCommand(s string) (Command, error) {
	if k, ok := commandKinds[s]; ok && k != CommandSeq {
		return Command{Kind: k}, nil
	}
	var n uint32
	if _, err := fmt.Sscanf(s, "Seq(%d)", &n); err == nil && s == fmt.Sprintf("Seq(%d)", n) {
		return Seq(n), nil
	}
	return Command{}, fmt.Errorf("unknown command %q", s)
}

// MarshalJSON encodes unit commands as a bare string ("Ping") and Seq as {"Seq":n}.
func (c Command) MarshalJSON() ([]byte, error) {
	switch {
	case c.Kind == CommandSeq:
		return json.Marshal(map[string]uint32{"Seq": c.Seq})
	case c.Kind.Valid():
		return json.Marshal(c.Kind.String())
	default:
		return nil, fmt.Errorf("cannot encode %s", c.Kind)
	}
}

// UnmarshalJSON is the inverse of MarshalJSON and rejects any other shape.
func (c *Command) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty command")
	}
	switch data[0] {
	case '"':
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		k, ok := commandKinds[name]
		if !ok || k == CommandSeq {
			return fmt.Errorf("unknown command %q", name)
		}
		*c = Command{Kind: k}
		return nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return err
		}
		raw, ok := fields["Seq"]
		if !ok || len(fields) != 1 {
			return fmt.Errorf("unknown command object %s", data)
		}
		var n uint32
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("invalid Seq value: %w", err)
		}
		*c = Seq(n)
		return nil
	default:
		return fmt.Errorf("command must be a string or object, got %s", data)
	}
}

// =============================================================================
// MessageType
// =============================================================================

// MessageType tags an envelope as request, response or control traffic.
type MessageType uint8

const (
	MessageTypeRequest MessageType = iota + 1
	MessageTypeResponse
	MessageTypeCommand
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeRequest:
		return "Request"
	case MessageTypeResponse:
		return "Response"
	case MessageTypeCommand:
		return "Command"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// ParseMessageType parses "Request", "Response" or "Command".
func ParseMessageType(s string) (MessageType, error) {
	switch s {
	case "Request":
		return MessageTypeRequest, nil
	case "Response":
		return MessageTypeResponse, nil
	case "Command":
		return MessageTypeCommand, nil
	}
	return 0, fmt.Errorf("unknown message type %q", s)
}

func (t MessageType) MarshalText() ([]byte, error) {
	switch t {
	case MessageTypeRequest, MessageTypeResponse, MessageTypeCommand:
		return []byte(t.String()), nil
	}
	return nil, fmt.Errorf("cannot encode %s", t)
}

func (t *MessageType) UnmarshalText(text []byte) error {
	parsed, err := ParseMessageType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// =============================================================================
// Envelope
// =============================================================================

// Envelope is the unit exchanged between actors. An envelope carrying a
// Command is control traffic and is evaluated before its Payload.
type Envelope struct {
	From          string      `json:"from"`
	Payload       []byte      `json:"payload"`
	CorrelationID *string     `json:"correlation_id"`
	Command       *Command    `json:"command"`
	MessageType   MessageType `json:"message_type"`
}

// NewCommandEnvelope builds a control envelope.
func NewCommandEnvelope(from string, cmd Command) *Envelope {
	return &Envelope{From: from, Command: &cmd, MessageType: MessageTypeCommand}
}

// NewMessageEnvelope builds a payload envelope. An empty correlationID is
// omitted; a nil payload is sent as an empty one.
func NewMessageEnvelope(from string, payload []byte, correlationID string, mt MessageType) *Envelope {
	if payload == nil {
		payload = []byte{}
	}
	env := &Envelope{From: from, Payload: payload, MessageType: mt}
	if correlationID != "" {
		env.CorrelationID = &correlationID
	}
	return env
}

// Correlation returns the correlation id or "".
func (e *Envelope) Correlation() string {
	if e.CorrelationID == nil {
		return ""
	}
	return *e.CorrelationID
}
