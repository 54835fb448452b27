package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"executor-go/commonlib/actor"
	"executor-go/commonlib/log"
)

// =============================================================================
// Run Loop
// =============================================================================

// runLoop owns the receiving end of one actor's mailbox.
type runLoop struct {
	name    string
	entry   *entry
	inbox   *ReceiveHandle
	handler actor.PayloadHandler
	dir     *Directory
	timeout time.Duration
	logger  log.Logger
}

func (l *runLoop) run(ctx context.Context) {
	defer l.dir.wg.Done()

	l.logger.Debug("Actor run loop started", log.Duration("receive_timeout", l.timeout))
	err := l.loop(ctx)

	// the actor is unreachable from here on; its directory entry stays
	l.inbox.Close()
	l.entry.setState(actor.StateTerminated)
	if err != nil {
		l.logger.Warn("Actor terminated", log.Err(err))
	} else {
		l.logger.Debug("Actor run loop stopped")
	}
	l.dir.notify(func(o actor.Observer) { o.ActorTerminated(l.name, err) })
}

// loop returns the decode error that retired the actor, or nil on shutdown.
func (l *runLoop) loop(ctx context.Context) error {
	for {
		b, err := l.inbox.Receive(ctx, l.timeout)
		if errors.Is(err, actor.ErrTimedOut) {
			continue
		}
		if err != nil {
			return nil
		}

		l.entry.setState(actor.StateDispatching)
		if err := l.dispatch(ctx, b); err != nil {
			return err
		}
		l.entry.setState(actor.StateWaiting)
	}
}

func (l *runLoop) dispatch(ctx context.Context, b []byte) error {
	env, err := l.dir.codec.Decode(b)
	if err != nil {
		l.logger.Error("Invalid envelope", log.Int("bytes", len(b)), log.Err(err))
		return err
	}

	l.dir.notify(func(o actor.Observer) { o.EnvelopeReceived(l.name, env) })

	if env.Command != nil {
		out, signal := actor.Evaluate(*env.Command, l.name, env.From)
		l.logger.Debug("Command received",
			log.String("from", env.From),
			log.Stringer("command", *env.Command),
			log.Stringer("signal", signal),
		)
		if out != nil {
			l.dir.SendCommand(out.From, out.To, out.Command)
		}
		// Break only skips the rest of this envelope; the loop keeps running.
		if signal == actor.Break {
			return nil
		}
	}

	if env.Payload != nil {
		l.handlePayload(ctx, env)
	}
	return nil
}

func (l *runLoop) handlePayload(ctx context.Context, env *actor.Envelope) {
	logger := l.logger
	ctx = log.WithActor(ctx, l.name)
	if id := env.Correlation(); id != "" {
		ctx = log.WithCorrelationID(ctx, id)
		logger = logger.With(log.String("correlation_id", id))
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Payload handler panicked",
				log.String("from", env.From),
				log.Any("panic", r),
			)
		}
	}()

	if err := l.handler.Handle(ctx, l.name, env); err != nil {
		logger.Warn("Payload handler failed",
			log.String("from", env.From),
			log.Err(fmt.Errorf("handle payload: %w", err)),
		)
	}
}
