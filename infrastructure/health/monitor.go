package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"executor-go/commonlib/actor"
	"executor-go/commonlib/log"
)

// =============================================================================
// Health Monitor
// =============================================================================

// Config configures a Monitor.
type Config struct {
	// Name is the actor the monitor registers to send probes from.
	Name     string
	Interval time.Duration
	Timeout  time.Duration
}

// PeerStatus is the last known health of one actor.
type PeerStatus struct {
	Name     string    `json:"name"`
	LastSeen time.Time `json:"last_seen"`
	Healthy  bool      `json:"healthy"`
}

type peer struct {
	lastSeen time.Time
	healthy  bool
}

// Monitor probes every actor in a directory with HealthCheck and tracks the
// Ok replies. Probes are fire and forget: an actor that never answers is
// reported lost once, then again only after it has recovered.
type Monitor struct {
	dir    actor.Directory
	config Config
	logger log.Logger
	now    func() time.Time

	mu    sync.RWMutex
	peers map[string]*peer

	onLost func(name string)
	onSeen func(name string)

	unsubscribe func()
	done        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewMonitor creates a monitor for dir. Nothing runs until Start.
func NewMonitor(dir actor.Directory, config Config, logger log.Logger) *Monitor {
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{
		dir:    dir,
		config: config,
		logger: logger.With(log.String("monitor", config.Name)),
		now:    time.Now,
		peers:  make(map[string]*peer),
		done:   make(chan struct{}),
	}
}

// SetLostCallback sets the callback for actors that stopped answering.
// It must be called before Start.
func (m *Monitor) SetLostCallback(callback func(name string)) {
	m.onLost = callback
}

// SetSeenCallback sets the callback run for every Ok reply, and for the
// monitor's own name once per probe round. It must not block and must be set
// before Start.
func (m *Monitor) SetSeenCallback(callback func(name string)) {
	m.onSeen = callback
}

// Start registers the monitor actor and begins probing.
func (m *Monitor) Start(ctx context.Context) error {
	if m.config.Interval <= 0 || m.config.Timeout <= 0 {
		return fmt.Errorf("health monitor %s: interval and timeout must be positive", m.config.Name)
	}
	// the monitor needs no payloads; commands are observed below
	if err := m.dir.StartWithHandler(m.config.Name, actor.HandlerFunc(func(context.Context, string, *actor.Envelope) error {
		return nil
	})); err != nil {
		return fmt.Errorf("start health monitor: %w", err)
	}

	m.unsubscribe = m.dir.Subscribe(actor.ObserverFuncs{
		OnEnvelope: func(name string, env *actor.Envelope) {
			if name != m.config.Name || env.Command == nil || env.Command.Kind != actor.CommandOk {
				return
			}
			m.markSeen(env.From)
		},
	})

	m.wg.Add(1)
	go m.probeLoop(ctx)
	m.logger.Info("Health monitor started",
		log.Duration("interval", m.config.Interval),
		log.Duration("timeout", m.config.Timeout),
	)
	return nil
}

// Stop stops probing. The monitor actor itself stays registered.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		m.wg.Wait()
		m.logger.Info("Health monitor stopped")
	})
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe()
			m.checkExpired()
			// the monitor answers no probes; a running loop is its own proof of life
			if m.onSeen != nil {
				m.onSeen(m.config.Name)
			}
		}
	}
}

// probe sends HealthCheck to every other registered actor.
func (m *Monitor) probe() {
	now := m.now()
	for _, name := range m.dir.Names() {
		if name == m.config.Name {
			continue
		}
		m.mu.Lock()
		if _, ok := m.peers[name]; !ok {
			// the grace period of a new actor starts at its first probe
			m.peers[name] = &peer{lastSeen: now, healthy: true}
		}
		m.mu.Unlock()

		m.dir.SendCommand(m.config.Name, name, actor.HealthCheck())
	}
}

func (m *Monitor) checkExpired() {
	now := m.now()
	lost := make([]string, 0)

	m.mu.Lock()
	for name, p := range m.peers {
		if p.healthy && now.Sub(p.lastSeen) > m.config.Timeout {
			p.healthy = false
			lost = append(lost, name)
		}
	}
	m.mu.Unlock()

	sort.Strings(lost)
	for _, name := range lost {
		m.logger.Warn("Actor health check expired", log.String("actor", name))
		if m.onLost != nil {
			m.onLost(name)
		}
	}
}

func (m *Monitor) markSeen(name string) {
	m.mu.Lock()
	p, ok := m.peers[name]
	if !ok {
		p = &peer{}
		m.peers[name] = p
	}
	recovered := ok && !p.healthy
	p.lastSeen = m.now()
	p.healthy = true
	m.mu.Unlock()

	if recovered {
		m.logger.Info("Actor recovered", log.String("actor", name))
	}
	if m.onSeen != nil {
		m.onSeen(name)
	}
}

// Status returns a snapshot of every tracked actor, sorted by name.
func (m *Monitor) Status() []PeerStatus {
	m.mu.RLock()
	out := make([]PeerStatus, 0, len(m.peers))
	for name, p := range m.peers {
		out = append(out, PeerStatus{Name: name, LastSeen: p.lastSeen, Healthy: p.healthy})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Unhealthy returns the number of actors currently reported lost.
func (m *Monitor) Unhealthy() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.peers {
		if !p.healthy {
			n++
		}
	}
	return n
}
