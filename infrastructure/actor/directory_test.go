package actor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"executor-go/commonlib/actor"
)

func requireState(t *testing.T, dir *Directory, name string, want actor.RunState) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, ok := dir.State(name)
		return ok && s == want
	}, expectTimeout, 5*time.Millisecond, "actor %s never reached %s", name, want)
}

func TestStartRejectsDuplicateName(t *testing.T) {
	dir, _ := newTestDirectory(t)

	require.NoError(t, dir.Start("A"))
	err := dir.Start("A")
	assert.ErrorIs(t, err, actor.ErrAlreadyExists)
	assert.Equal(t, []string{"A"}, dir.Names())

	// the original actor keeps working
	require.NoError(t, dir.Start("B"))
	a := newProbe(t, dir, "A")
	b := newProbe(t, dir, "B")
	dir.SendCommand("B", "A", actor.Ping())
	a.expectCommand("B", actor.Ping())
	b.expectCommand("A", actor.Pong())
}

func TestStartRejectsEmptyName(t *testing.T) {
	dir, _ := newTestDirectory(t)
	assert.ErrorIs(t, dir.Start(""), actor.ErrInvalidName)
	assert.ErrorIs(t, dir.Start("bad\xffname"), actor.ErrInvalidName)
	assert.Equal(t, 0, dir.Len())
}

func TestConcurrentStartSameName(t *testing.T) {
	dir, _ := newTestDirectory(t)

	var ok, dup atomic.Int32
	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			err := dir.Start("racer")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, actor.ErrAlreadyExists):
				dup.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(15), dup.Load())
	assert.Equal(t, 1, dir.Len())
}

func TestCommandExchange(t *testing.T) {
	dir, _ := newTestDirectory(t)
	require.NoError(t, dir.Start("A"))
	require.NoError(t, dir.Start("B"))
	a := newProbe(t, dir, "A")
	b := newProbe(t, dir, "B")

	dir.SendCommand("A", "B", actor.Ping())
	b.expectCommand("A", actor.Ping())
	a.expectCommand("B", actor.Pong())

	dir.SendCommand("A", "B", actor.Ack())
	b.expectCommand("A", actor.Ack())
	a.expectCommand("B", actor.Seq(actor.AckSequence))

	dir.SendCommand("A", "B", actor.HealthCheck())
	b.expectCommand("A", actor.HealthCheck())
	a.expectCommand("B", actor.Ok())

	// terminal replies produce nothing further
	a.expectNone()
	b.expectNone()
}

func TestCommandsWithoutReply(t *testing.T) {
	dir, _ := newTestDirectory(t)
	require.NoError(t, dir.Start("A"))
	require.NoError(t, dir.Start("B"))
	a := newProbe(t, dir, "A")
	b := newProbe(t, dir, "B")

	for _, cmd := range []actor.Command{actor.Pong(), actor.NoAck(), actor.Ok(), actor.Err(), actor.Seq(7)} {
		dir.SendCommand("A", "B", cmd)
		b.expectCommand("A", cmd)
	}
	a.expectNone()
}

func TestBreakKeepsLoopRunning(t *testing.T) {
	dir, _ := newTestDirectory(t)
	require.NoError(t, dir.Start("A"))
	require.NoError(t, dir.Start("B"))
	a := newProbe(t, dir, "A")

	for i := 0; i < 5; i++ {
		dir.SendCommand("A", "B", actor.Ping())
		a.expectCommand("B", actor.Pong())
	}
	state, ok := dir.State("B")
	require.True(t, ok)
	assert.NotEqual(t, actor.StateTerminated, state)
}

func TestIdleActorSurvivesTimeouts(t *testing.T) {
	dir, _ := newTestDirectory(t)
	require.NoError(t, dir.Start("A"))
	require.NoError(t, dir.Start("B"))
	a := newProbe(t, dir, "A")

	// several idle ticks elapse before the first message
	time.Sleep(5 * testReceiveTimeout)
	requireState(t, dir, "B", actor.StateWaiting)

	dir.SendCommand("A", "B", actor.Ping())
	a.expectCommand("B", actor.Pong())
}

func TestSendToUnknownIsNoop(t *testing.T) {
	dir, logs := newTestDirectory(t)
	require.NoError(t, dir.Start("A"))
	a := newProbe(t, dir, "A")

	dir.SendCommand("A", "nobody", actor.Ping())
	dir.SendMessage("A", "nobody", []byte("x"), "", actor.MessageTypeRequest)

	a.expectNone()
	assert.Equal(t, []string{"A"}, dir.Names())
	assert.Equal(t, 2, logs.FilterMessage("Envelope dropped, unknown destination").Len())

	// a reply addressed to a sender that is not registered is dropped too
	dir.SendCommand("ghost", "A", actor.Ping())
	a.expectCommand("ghost", actor.Ping())
}

func TestDecodeFailureTerminatesOnlyThatActor(t *testing.T) {
	dir, logs := newTestDirectory(t)
	require.NoError(t, dir.Start("A"))
	require.NoError(t, dir.Start("B"))
	require.NoError(t, dir.Start("C"))
	a := newProbe(t, dir, "A")
	c := newProbe(t, dir, "C")

	terminated := make(chan error, 1)
	unsubscribe := dir.Subscribe(actor.ObserverFuncs{
		OnTerminated: func(name string, err error) {
			if name == "B" {
				terminated <- err
			}
		},
	})
	defer unsubscribe()

	inbox, ok := dir.Lookup("B")
	require.True(t, ok)
	require.True(t, inbox.Send([]byte("xxxxxx")))

	select {
	case err := <-terminated:
		var decodeErr *actor.DecodeError
		assert.ErrorAs(t, err, &decodeErr)
	case <-time.After(expectTimeout):
		t.Fatal("B was not terminated")
	}
	requireState(t, dir, "B", actor.StateTerminated)
	assert.Equal(t, 1, logs.FilterMessage("Invalid envelope").Len())

	// the entry stays, sends to it are silent no-ops
	assert.Contains(t, dir.Names(), "B")
	dir.SendCommand("A", "B", actor.Ping())
	a.expectNone()
	assert.ErrorIs(t, dir.Start("B"), actor.ErrAlreadyExists)

	// everyone else keeps running
	dir.SendCommand("C", "A", actor.Ping())
	c.expectCommand("A", actor.Pong())
}

func TestPayloadSkippedOnBreak(t *testing.T) {
	dir, _ := newTestDirectory(t)
	handler := newRecordingHandler()
	require.NoError(t, dir.Start("A"))
	require.NoError(t, dir.StartWithHandler("B", handler))
	a := newProbe(t, dir, "A")

	inbox, ok := dir.Lookup("B")
	require.True(t, ok)

	send := func(cmd actor.Command, payload string) {
		env := actor.NewCommandEnvelope("A", cmd)
		env.Payload = []byte(payload)
		b, err := actor.JSONCodec{}.Encode(env)
		require.NoError(t, err)
		require.True(t, inbox.Send(b))
	}

	send(actor.Ping(), "dropped")
	a.expectCommand("B", actor.Pong())
	handler.expectNone(t)

	send(actor.Ack(), "kept")
	a.expectCommand("B", actor.Seq(actor.AckSequence))
	env := handler.expect(t)
	assert.Equal(t, []byte("kept"), env.Payload)
	assert.Equal(t, "A", env.From)
}

func TestMessageDelivery(t *testing.T) {
	dir, _ := newTestDirectory(t)
	handler := newRecordingHandler()
	require.NoError(t, dir.StartWithHandler("B", handler))

	dir.SendMessage("A", "B", []byte("hello"), "cor-1", actor.MessageTypeRequest)
	env := handler.expect(t)
	assert.Equal(t, "A", env.From)
	assert.Equal(t, []byte("hello"), env.Payload)
	assert.Equal(t, "cor-1", env.Correlation())
	assert.Equal(t, actor.MessageTypeRequest, env.MessageType)
	assert.Nil(t, env.Command)

	// a message without a body still reaches the handler
	dir.SendMessage("A", "B", nil, "", actor.MessageTypeResponse)
	env = handler.expect(t)
	assert.NotNil(t, env.Payload)
	assert.Empty(t, env.Payload)
	assert.Equal(t, actor.MessageTypeResponse, env.MessageType)
}

func TestResponderAnswersEmptyRequest(t *testing.T) {
	dir, _ := newTestDirectory(t)
	requester := newRecordingHandler()
	require.NoError(t, dir.StartWithHandler("A", requester))
	require.NoError(t, dir.StartWithHandler("B", NewResponder(dir, func(ctx context.Context, payload []byte) ([]byte, error) {
		return append([]byte("len="), byte('0'+len(payload))), nil
	})))

	dir.SendMessage("A", "B", nil, "cor-1", actor.MessageTypeRequest)
	env := requester.expect(t)
	assert.Equal(t, []byte("len=0"), env.Payload)
	assert.Equal(t, "cor-1", env.Correlation())
	assert.Equal(t, actor.MessageTypeResponse, env.MessageType)
}

func TestResponderAnswersRequests(t *testing.T) {
	dir, _ := newTestDirectory(t)
	requester := newRecordingHandler()
	require.NoError(t, dir.StartWithHandler("A", requester))
	require.NoError(t, dir.StartWithHandler("B", NewResponder(dir, func(ctx context.Context, payload []byte) ([]byte, error) {
		return bytes.ToUpper(payload), nil
	})))

	dir.SendMessage("A", "B", []byte("hi"), "cor-7", actor.MessageTypeRequest)
	env := requester.expect(t)
	assert.Equal(t, "B", env.From)
	assert.Equal(t, []byte("HI"), env.Payload)
	assert.Equal(t, "cor-7", env.Correlation())
	assert.Equal(t, actor.MessageTypeResponse, env.MessageType)

	// responses are not answered
	dir.SendMessage("A", "B", []byte("hi"), "cor-8", actor.MessageTypeResponse)
	requester.expectNone(t)
}

func TestHandlerFailuresKeepActorAlive(t *testing.T) {
	dir, logs := newTestDirectory(t)
	calls := make(chan string, 4)
	require.NoError(t, dir.Start("A"))
	require.NoError(t, dir.StartWithHandler("B", actor.HandlerFunc(func(ctx context.Context, self string, env *actor.Envelope) error {
		calls <- string(env.Payload)
		switch string(env.Payload) {
		case "panic":
			panic("boom")
		case "fail":
			return fmt.Errorf("cannot handle")
		}
		return nil
	})))
	a := newProbe(t, dir, "A")

	dir.SendMessage("A", "B", []byte("panic"), "", actor.MessageTypeCommand)
	dir.SendMessage("A", "B", []byte("fail"), "", actor.MessageTypeCommand)
	for _, want := range []string{"panic", "fail"} {
		select {
		case got := <-calls:
			assert.Equal(t, want, got)
		case <-time.After(expectTimeout):
			t.Fatalf("handler not called for %s", want)
		}
	}

	dir.SendCommand("A", "B", actor.Ping())
	a.expectCommand("B", actor.Pong())
	assert.Equal(t, 1, logs.FilterMessage("Payload handler panicked").Len())
	assert.Equal(t, 1, logs.FilterMessage("Payload handler failed").Len())
}

func TestSendPayload(t *testing.T) {
	dir, _ := newTestDirectory(t)
	handler := newRecordingHandler()
	require.NoError(t, dir.StartWithHandler("B", handler))
	ctx := context.Background()

	err := dir.SendPayload(ctx, "A", "B", func(ctx context.Context) ([]byte, error) {
		return []byte("produced"), nil
	}, "cor-3", actor.MessageTypeRequest)
	require.NoError(t, err)
	env := handler.expect(t)
	assert.Equal(t, []byte("produced"), env.Payload)
	assert.Equal(t, "cor-3", env.Correlation())

	produceErr := errors.New("upstream down")
	err = dir.SendPayload(ctx, "A", "B", func(ctx context.Context) ([]byte, error) {
		return nil, produceErr
	}, "", actor.MessageTypeRequest)
	assert.ErrorIs(t, err, produceErr)
	handler.expectNone(t)

	assert.Error(t, dir.SendPayload(ctx, "A", "B", nil, "", actor.MessageTypeRequest))
}

func TestStartUsesConfiguredHandler(t *testing.T) {
	handler := newRecordingHandler()
	dir := NewDirectory(DirectoryConfig{
		ReceiveTimeout: testReceiveTimeout,
		NewHandler: func(name string) actor.PayloadHandler {
			return handler
		},
	})
	defer dir.Shutdown()

	require.NoError(t, dir.Start("B"))
	dir.SendMessage("A", "B", []byte("x"), "", actor.MessageTypeCommand)
	env := handler.expect(t)
	assert.Equal(t, []byte("x"), env.Payload)
}

func TestObserverEvents(t *testing.T) {
	dir, _ := newTestDirectory(t)

	started := make(chan string, 4)
	unsubscribe := dir.Subscribe(actor.ObserverFuncs{
		OnStarted: func(name string) { started <- name },
	})

	require.NoError(t, dir.Start("A"))
	select {
	case name := <-started:
		assert.Equal(t, "A", name)
	case <-time.After(expectTimeout):
		t.Fatal("no start event")
	}

	unsubscribe()
	unsubscribe()
	require.NoError(t, dir.Start("B"))
	select {
	case name := <-started:
		t.Fatalf("unexpected start event for %s", name)
	case <-time.After(quietPeriod):
	}
}

func TestShutdown(t *testing.T) {
	dir, _ := newTestDirectory(t)
	require.NoError(t, dir.Start("A"))
	require.NoError(t, dir.Start("B"))

	terminated := make(chan error, 2)
	dir.Subscribe(actor.ObserverFuncs{
		OnTerminated: func(name string, err error) { terminated <- err },
	})

	dir.Shutdown()
	for i := 0; i < 2; i++ {
		select {
		case err := <-terminated:
			assert.NoError(t, err)
		case <-time.After(expectTimeout):
			t.Fatal("run loop did not stop")
		}
	}

	for _, name := range []string{"A", "B"} {
		state, ok := dir.State(name)
		require.True(t, ok)
		assert.Equal(t, actor.StateTerminated, state)
	}
	assert.ErrorIs(t, dir.Start("C"), actor.ErrDirectoryStopped)

	// sends after shutdown are silent
	dir.SendCommand("A", "B", actor.Ping())
	dir.Shutdown()
}
