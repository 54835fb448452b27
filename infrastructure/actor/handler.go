package actor

import (
	"context"
	"fmt"

	"executor-go/commonlib/actor"
	"executor-go/commonlib/log"
)

// =============================================================================
// Payload Handlers
// =============================================================================

// LogSink logs the size of every payload and discards it.
type LogSink struct {
	logger log.Logger
}

// NewLogSink creates a LogSink writing to logger.
func NewLogSink(logger log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Handle(ctx context.Context, self string, env *actor.Envelope) error {
	s.logger.WithContext(ctx).Info("Payload received",
		log.String("from", env.From),
		log.Stringer("message_type", env.MessageType),
		log.Int("bytes", len(env.Payload)),
	)
	return nil
}

// RespondFunc computes the response payload for a request payload.
type RespondFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Responder answers Request envelopes with a Response envelope sent back to
// the requester under the same correlation id. Other message types are
// accepted and ignored, so two responders never answer each other forever.
type Responder struct {
	sender  actor.Sender
	respond RespondFunc
}

// NewResponder creates a Responder replying through sender.
func NewResponder(sender actor.Sender, respond RespondFunc) *Responder {
	return &Responder{sender: sender, respond: respond}
}

func (r *Responder) Handle(ctx context.Context, self string, env *actor.Envelope) error {
	if env.MessageType != actor.MessageTypeRequest {
		return nil
	}
	out, err := r.respond(ctx, env.Payload)
	if err != nil {
		return fmt.Errorf("respond to %s: %w", env.From, err)
	}
	r.sender.SendMessage(self, env.From, out, env.Correlation(), actor.MessageTypeResponse)
	return nil
}
