package actor

// =============================================================================
// Command State Machine
// =============================================================================

// ControlSignal tells the run loop what to do with the rest of the envelope.
type ControlSignal uint8

const (
	// Continue hands the envelope's payload (if any) to the payload handler.
	Continue ControlSignal = iota
	// Break skips the rest of this envelope. It does NOT end the run loop:
	// the loop goes back to waiting for the next envelope either way.
	Break
)

func (s ControlSignal) String() string {
	if s == Break {
		return "Break"
	}
	return "Continue"
}

// AckSequence is the sequence number answered to every Ack.
const AckSequence uint32 = 123

// Outgoing is a reply command to be routed through the directory.
type Outgoing struct {
	From    string
	To      string
	Command Command
}

// Evaluate decides the reply and control signal for a command received by
// self from from. It keeps no state between calls, so an unsolicited Pong or
// Ok is accepted like any other.
//
//	Ping        -> Pong to sender,    Break
//	Pong        -> -,                 Break
//	Ack         -> Seq(123) to sender, Continue
//	NoAck       -> -,                 Continue
//	HealthCheck -> Ok to sender,      Break
//	Ok, Err     -> -,                 Break
//	Seq(n)      -> -,                 Continue
func Evaluate(cmd Command, self, from string) (*Outgoing, ControlSignal) {
	reply := func(c Command) *Outgoing {
		return &Outgoing{From: self, To: from, Command: c}
	}

	switch cmd.Kind {
	case CommandPing:
		return reply(Pong()), Break
	case CommandPong:
		return nil, Break
	case CommandAck:
		return reply(Seq(AckSequence)), Continue
	case CommandNoAck:
		return nil, Continue
	case CommandHealthCheck:
		return reply(Ok()), Break
	case CommandOk:
		return nil, Break
	case CommandErr:
		return nil, Break
	case CommandSeq:
		return nil, Continue
	default:
		// unreachable for decoded envelopes
		return nil, Break
	}
}
