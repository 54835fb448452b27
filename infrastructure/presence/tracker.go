package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"executor-go/commonlib/actor"
	"executor-go/commonlib/log"
)

// =============================================================================
// Presence Tracker
// =============================================================================

type eventKind int

const (
	eventRegister eventKind = iota
	eventUnregister
	eventRefresh
)

type event struct {
	kind eventKind
	name string
}

// Tracker mirrors directory lifecycle events and health replies into a
// Store. Events are queued and written from one goroutine, so directory
// observers never wait on the store; a full queue drops the event.
type Tracker struct {
	store   Store
	logger  log.Logger
	timeout time.Duration

	// live is owned by the writer goroutine
	live map[string]struct{}

	events chan event
	done   chan struct{}
	wg     sync.WaitGroup

	mu          sync.Mutex
	unsubscribe []func()
	closeOnce   sync.Once
}

// NewTracker creates a tracker writing to store. Call Start to run it.
func NewTracker(store Store, logger log.Logger) *Tracker {
	if logger == nil {
		logger = log.Default()
	}
	return &Tracker{
		store:   store,
		logger:  logger,
		timeout: 3 * time.Second,
		live:    make(map[string]struct{}),
		events:  make(chan event, 256),
		done:    make(chan struct{}),
	}
}

// Attach subscribes to dir and registers the actors it already holds.
func (t *Tracker) Attach(dir actor.Directory) {
	unsubscribe := dir.Subscribe(actor.ObserverFuncs{
		OnStarted: func(name string) { t.enqueue(event{kind: eventRegister, name: name}) },
		OnTerminated: func(name string, err error) {
			t.enqueue(event{kind: eventUnregister, name: name})
		},
	})
	t.mu.Lock()
	t.unsubscribe = append(t.unsubscribe, unsubscribe)
	t.mu.Unlock()

	for _, name := range dir.Names() {
		if state, ok := dir.State(name); ok && state != actor.StateTerminated {
			t.enqueue(event{kind: eventRegister, name: name})
		}
	}
}

// Seen refreshes name's record. It is meant as a health monitor callback.
// Names that are not running, or have already terminated, are ignored.
func (t *Tracker) Seen(name string) {
	t.enqueue(event{kind: eventRefresh, name: name})
}

func (t *Tracker) enqueue(e event) {
	select {
	case t.events <- e:
	default:
		t.logger.Warn("Presence event dropped, queue full", log.String("actor", e.name))
	}
}

// Start writes queued events in the background until ctx is done or Close
// is called.
func (t *Tracker) Start(ctx context.Context) {
	t.wg.Add(1)
	go t.run(ctx)
}

func (t *Tracker) run(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case e := <-t.events:
			t.apply(ctx, e)
		}
	}
}

func (t *Tracker) apply(ctx context.Context, e event) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var err error
	switch e.kind {
	case eventRegister:
		t.live[e.name] = struct{}{}
		err = t.store.Register(ctx, e.name)
	case eventUnregister:
		delete(t.live, e.name)
		err = t.store.Unregister(ctx, e.name)
	case eventRefresh:
		if _, ok := t.live[e.name]; !ok {
			return
		}
		err = t.store.Refresh(ctx, e.name)
		if errors.Is(err, ErrNotRegistered) {
			// expired while the actor was unreachable
			err = t.store.Register(ctx, e.name)
		}
	}
	if err != nil {
		t.logger.Warn("Failed to update presence",
			log.String("actor", e.name),
			log.Err(err),
		)
	}
}

// Close detaches from every directory and stops the writer.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		for _, unsubscribe := range t.unsubscribe {
			unsubscribe()
		}
		t.unsubscribe = nil
		t.mu.Unlock()

		close(t.done)
		t.wg.Wait()
	})
}
