package actor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"executor-go/commonlib/actor"
	"executor-go/commonlib/log"
)

// =============================================================================
// Directory Implementation
// =============================================================================

// DefaultReceiveTimeout is the idle tick of every run loop.
const DefaultReceiveTimeout = time.Second

// DirectoryConfig configures a Directory.
type DirectoryConfig struct {
	Name           string
	ReceiveTimeout time.Duration
	Logger         log.Logger
	Codec          actor.Codec
	// NewHandler builds the payload handler for actors started with Start.
	// A nil NewHandler means every actor gets a LogSink.
	NewHandler func(name string) actor.PayloadHandler
}

// DefaultDirectoryConfig returns default configuration.
func DefaultDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		Name:           "default",
		ReceiveTimeout: DefaultReceiveTimeout,
	}
}

type entry struct {
	name  string
	inbox *SendHandle
	state atomic.Int32
}

func (e *entry) setState(s actor.RunState) { e.state.Store(int32(s)) }
func (e *entry) getState() actor.RunState  { return actor.RunState(e.state.Load()) }

// Directory maps actor names to mailboxes and owns their run loops. The
// lock only guards the map; it is never held across a send or a receive.
type Directory struct {
	config DirectoryConfig
	logger log.Logger
	codec  actor.Codec

	mu      sync.Mutex
	entries map[string]*entry
	stopped bool

	obsMu     sync.RWMutex
	observers map[int]actor.Observer
	nextObs   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ actor.Directory = (*Directory)(nil)

// NewDirectory creates an empty directory.
func NewDirectory(config DirectoryConfig) *Directory {
	if config.ReceiveTimeout <= 0 {
		config.ReceiveTimeout = DefaultReceiveTimeout
	}
	if config.Codec == nil {
		config.Codec = actor.JSONCodec{}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Directory{
		config:    config,
		logger:    logger.With(log.String("directory", config.Name)),
		codec:     config.Codec,
		entries:   make(map[string]*entry),
		observers: make(map[int]actor.Observer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers name and spawns its run loop with the configured handler.
func (d *Directory) Start(name string) error {
	var handler actor.PayloadHandler
	if d.config.NewHandler != nil {
		handler = d.config.NewHandler(name)
	}
	return d.StartWithHandler(name, handler)
}

// StartWithHandler registers name and spawns its run loop. It fails with
// actor.ErrAlreadyExists if name is taken; the existing actor is untouched.
func (d *Directory) StartWithHandler(name string, handler actor.PayloadHandler) error {
	if name == "" || !utf8.ValidString(name) {
		return actor.ErrInvalidName
	}
	if handler == nil {
		handler = NewLogSink(d.logger)
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return actor.ErrDirectoryStopped
	}
	if _, exists := d.entries[name]; exists {
		d.mu.Unlock()
		d.logger.Warn("Actor already started", log.String("actor", name))
		return fmt.Errorf("%w: %s", actor.ErrAlreadyExists, name)
	}
	send, recv := NewMailbox()
	e := &entry{name: name, inbox: send}
	d.entries[name] = e
	d.wg.Add(1)
	d.mu.Unlock()

	loop := &runLoop{
		name:    name,
		entry:   e,
		inbox:   recv,
		handler: handler,
		dir:     d,
		timeout: d.config.ReceiveTimeout,
		logger:  d.logger.With(log.String("actor", name)),
	}
	go loop.run(d.ctx)

	d.logger.Info("Actor started", log.String("actor", name))
	d.notify(func(o actor.Observer) { o.ActorStarted(name) })
	return nil
}

// Lookup returns the send handle registered for name.
func (d *Directory) Lookup(name string) (*SendHandle, bool) {
	d.mu.Lock()
	e, ok := d.entries[name]
	d.mu.Unlock()
	if !ok {
		return nil, false
	}
	return e.inbox, true
}

// SendCommand sends cmd from one actor to another. Unknown destinations are dropped.
func (d *Directory) SendCommand(from, to string, cmd actor.Command) {
	d.deliver(to, actor.NewCommandEnvelope(from, cmd))
}

// SendMessage sends payload from one actor to another. Unknown destinations are dropped.
func (d *Directory) SendMessage(from, to string, payload []byte, correlationID string, mt actor.MessageType) {
	d.deliver(to, actor.NewMessageEnvelope(from, payload, correlationID, mt))
}

// SendPayload runs p and sends its result as a message. A producer failure is
// returned to the caller and nothing is sent.
func (d *Directory) SendPayload(ctx context.Context, from, to string, p actor.Producer, correlationID string, mt actor.MessageType) error {
	if p == nil {
		return fmt.Errorf("send payload to %s: nil producer", to)
	}
	payload, err := p(ctx)
	if err != nil {
		return fmt.Errorf("produce payload for %s: %w", to, err)
	}
	d.SendMessage(from, to, payload, correlationID, mt)
	return nil
}

func (d *Directory) deliver(to string, env *actor.Envelope) {
	inbox, ok := d.Lookup(to)
	if !ok {
		d.logger.Debug("Envelope dropped, unknown destination",
			log.String("from", env.From),
			log.String("to", to),
		)
		return
	}
	b, err := d.codec.Encode(env)
	if err != nil {
		d.logger.Error("Envelope dropped, encode failed",
			log.String("from", env.From),
			log.String("to", to),
			log.Err(err),
		)
		return
	}
	if !inbox.Send(b) {
		d.logger.Debug("Envelope dropped, mailbox closed",
			log.String("from", env.From),
			log.String("to", to),
		)
		return
	}
	d.logger.Debug("Envelope sent",
		log.String("from", env.From),
		log.String("to", to),
		log.Stringer("message_type", env.MessageType),
	)
}

// Names returns every registered name in sorted order.
func (d *Directory) Names() []string {
	d.mu.Lock()
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	d.mu.Unlock()
	sort.Strings(names)
	return names
}

// Len returns the number of registered actors.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// State reports the run state of name.
func (d *Directory) State(name string) (actor.RunState, bool) {
	d.mu.Lock()
	e, ok := d.entries[name]
	d.mu.Unlock()
	if !ok {
		return 0, false
	}
	return e.getState(), true
}

// Subscribe registers o and returns a function removing it.
func (d *Directory) Subscribe(o actor.Observer) func() {
	d.obsMu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = o
	d.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.obsMu.Lock()
			delete(d.observers, id)
			d.obsMu.Unlock()
		})
	}
}

func (d *Directory) notify(fn func(o actor.Observer)) {
	d.obsMu.RLock()
	observers := make([]actor.Observer, 0, len(d.observers))
	for _, o := range d.observers {
		observers = append(observers, o)
	}
	d.obsMu.RUnlock()

	for _, o := range observers {
		fn(o)
	}
}

// Shutdown stops every run loop and waits for them to exit. Later calls to
// Start fail with actor.ErrDirectoryStopped.
func (d *Directory) Shutdown() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	d.logger.Info("Actor directory stopped")
}
