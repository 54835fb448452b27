package actor

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"executor-go/commonlib/actor"
	"executor-go/commonlib/log"
)

const (
	testReceiveTimeout = 20 * time.Millisecond
	expectTimeout      = 2 * time.Second
	quietPeriod        = 150 * time.Millisecond
)

// newTestDirectory returns a directory with a short idle tick and a logger
// recording everything at debug level. It is shut down with the test.
func newTestDirectory(t *testing.T) (*Directory, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	dir := NewDirectory(DirectoryConfig{
		Name:           t.Name(),
		ReceiveTimeout: testReceiveTimeout,
		Logger:         log.NewFromZap(zap.New(core)),
	})
	t.Cleanup(dir.Shutdown)
	return dir, logs
}

// probe collects the envelopes received by one actor.
type probe struct {
	t  *testing.T
	ch chan *actor.Envelope
}

func newProbe(t *testing.T, dir *Directory, name string) *probe {
	t.Helper()
	p := &probe{t: t, ch: make(chan *actor.Envelope, 64)}
	unsubscribe := dir.Subscribe(actor.ObserverFuncs{
		OnEnvelope: func(actorName string, env *actor.Envelope) {
			if actorName != name {
				return
			}
			select {
			case p.ch <- env:
			default:
			}
		},
	})
	t.Cleanup(unsubscribe)
	return p
}

func (p *probe) expect() *actor.Envelope {
	p.t.Helper()
	select {
	case env := <-p.ch:
		return env
	case <-time.After(expectTimeout):
		p.t.Fatalf("timeout waiting for envelope")
		return nil
	}
}

func (p *probe) expectCommand(from string, cmd actor.Command) {
	p.t.Helper()
	env := p.expect()
	if env.From != from || env.Command == nil || *env.Command != cmd || env.MessageType != actor.MessageTypeCommand {
		p.t.Fatalf("expected %s from %s, got %+v", cmd, from, env)
	}
}

func (p *probe) expectNone() {
	p.t.Helper()
	select {
	case env := <-p.ch:
		p.t.Fatalf("unexpected envelope: %+v", env)
	case <-time.After(quietPeriod):
	}
}

// recordingHandler forwards every payload it sees.
type recordingHandler struct {
	ch chan *actor.Envelope
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{ch: make(chan *actor.Envelope, 64)}
}

func (h *recordingHandler) Handle(ctx context.Context, self string, env *actor.Envelope) error {
	h.ch <- env
	return nil
}

func (h *recordingHandler) expect(t *testing.T) *actor.Envelope {
	t.Helper()
	select {
	case env := <-h.ch:
		return env
	case <-time.After(expectTimeout):
		t.Fatalf("timeout waiting for payload")
		return nil
	}
}

func (h *recordingHandler) expectNone(t *testing.T) {
	t.Helper()
	select {
	case env := <-h.ch:
		t.Fatalf("unexpected payload: %+v", env)
	case <-time.After(quietPeriod):
	}
}
