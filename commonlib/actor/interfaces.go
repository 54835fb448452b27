package actor

import (
	"context"
)

// =============================================================================
// Core Interfaces
// =============================================================================

// Codec turns envelopes into mailbox entries and back.
type Codec interface {
	Encode(env *Envelope) ([]byte, error)
	Decode(b []byte) (*Envelope, error)
}

// PayloadHandler consumes the payload of an envelope delivered to actor self.
// Errors are logged by the run loop; they never stop it.
type PayloadHandler interface {
	Handle(ctx context.Context, self string, env *Envelope) error
}

// HandlerFunc adapts a function to PayloadHandler.
type HandlerFunc func(ctx context.Context, self string, env *Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, self string, env *Envelope) error {
	return f(ctx, self, env)
}

// Producer is a fallible source of payload bytes.
type Producer func(ctx context.Context) ([]byte, error)

// Sender routes envelopes by actor name. Sends never block and never report
// delivery: an unknown or closed destination is silently dropped.
type Sender interface {
	// SendCommand sends a control command from one actor to another.
	SendCommand(from, to string, cmd Command)

	// SendMessage sends an opaque payload. An empty correlationID is omitted.
	SendMessage(from, to string, payload []byte, correlationID string, mt MessageType)
}

// Directory is the name -> mailbox registry plus the operations built on it.
type Directory interface {
	Sender

	// Start registers name and spawns its run loop with the default handler.
	Start(name string) error

	// StartWithHandler registers name with a specific payload handler.
	StartWithHandler(name string, handler PayloadHandler) error

	// SendPayload runs p and sends its result. Producer errors are returned.
	SendPayload(ctx context.Context, from, to string, p Producer, correlationID string, mt MessageType) error

	// Names returns every registered name, including terminated actors.
	Names() []string

	// State reports the run state of name.
	State(name string) (RunState, bool)

	// Subscribe registers an observer and returns a function removing it.
	Subscribe(o Observer) (unsubscribe func())

	// Shutdown stops every run loop. It is process teardown, not a protocol command.
	Shutdown()
}

// =============================================================================
// Run State
// =============================================================================

// RunState is the state of an actor's run loop.
type RunState int32

const (
	StateWaiting RunState = iota
	StateDispatching
	StateTerminated
)

func (s RunState) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateDispatching:
		return "dispatching"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// =============================================================================
// Observers
// =============================================================================

// Observer is notified about directory events. Callbacks run on the emitting
// goroutine (a run loop or the Start caller) and must not block.
type Observer interface {
	ActorStarted(name string)
	EnvelopeReceived(name string, env *Envelope)
	ActorTerminated(name string, err error)
}

// ObserverFuncs implements Observer with optional callbacks.
type ObserverFuncs struct {
	OnStarted    func(name string)
	OnEnvelope   func(name string, env *Envelope)
	OnTerminated func(name string, err error)
}

func (o ObserverFuncs) ActorStarted(name string) {
	if o.OnStarted != nil {
		o.OnStarted(name)
	}
}

func (o ObserverFuncs) EnvelopeReceived(name string, env *Envelope) {
	if o.OnEnvelope != nil {
		o.OnEnvelope(name, env)
	}
}

func (o ObserverFuncs) ActorTerminated(name string, err error) {
	if o.OnTerminated != nil {
		o.OnTerminated(name, err)
	}
}
