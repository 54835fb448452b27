package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// =============================================================================
// Worker Contract
// =============================================================================

// WorkerType names the kind of resource a worker wraps.
type WorkerType string

const (
	WorkerTypeRedis      WorkerType = "redis"
	WorkerTypeHTTPClient WorkerType = "httpclient"
)

// Worker owns one shared client resource, such as a Redis connection pool
// or the HTTP client used by payload producers.
type Worker interface {
	// Init builds the resource from a typed config. Workers are unusable before Init.
	Init(ctx context.Context, config any) error
	Health(ctx context.Context) error
	// Use hands the resource to fn.
	Use(ctx context.Context, fn func(resource any) error) error
	Close() error
	Name() string
	Type() WorkerType
}

// ErrWorkerNotFound is returned by Get for a name that was never registered.
var ErrWorkerNotFound = errors.New("worker not found")

// =============================================================================
// Pool
// =============================================================================

// Pool is the set of named workers shared by one process.
type Pool struct {
	mu      sync.RWMutex
	workers map[string]Worker
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{workers: make(map[string]Worker)}
}

// Register adds worker under worker.Name(). Names are unique.
func (p *Pool) Register(worker Worker) error {
	name := worker.Name()

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, taken := p.workers[name]; taken {
		return fmt.Errorf("register worker %s: name already taken", name)
	}
	p.workers[name] = worker
	return nil
}

// Get returns the worker registered as name.
func (p *Pool) Get(name string) (Worker, error) {
	p.mu.RLock()
	worker, ok := p.workers[name]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkerNotFound, name)
	}
	return worker, nil
}

// List returns the registered names in sorted order.
func (p *Pool) List() []string {
	p.mu.RLock()
	names := make([]string, 0, len(p.workers))
	for name := range p.workers {
		names = append(names, name)
	}
	p.mu.RUnlock()

	sort.Strings(names)
	return names
}

// WorkerStatus is the health of one worker as reported by Status.
type WorkerStatus struct {
	Name  string     `json:"name"`
	Type  WorkerType `json:"type"`
	Error string     `json:"error,omitempty"`
}

// Healthy reports whether the health check passed.
func (s WorkerStatus) Healthy() bool { return s.Error == "" }

// Status runs every worker's health check, ordered by name. Checks run
// outside the pool lock.
func (p *Pool) Status(ctx context.Context) []WorkerStatus {
	names := p.List()
	statuses := make([]WorkerStatus, 0, len(names))
	for _, name := range names {
		worker, err := p.Get(name)
		if err != nil {
			// closed while we were iterating
			continue
		}
		status := WorkerStatus{Name: name, Type: worker.Type()}
		if err := worker.Health(ctx); err != nil {
			status.Error = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Close closes every worker and empties the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	workers := p.workers
	p.workers = make(map[string]Worker)
	p.mu.Unlock()

	var errs []error
	for name, worker := range workers {
		if err := worker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close worker %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// Typed Access
// =============================================================================

// UseGeneric calls fn with the worker's resource asserted to T.
//
//	err := UseGeneric(ctx, worker, func(client *redis.Client) error {
//	    return client.Ping(ctx).Err()
//	})
func UseGeneric[T any](ctx context.Context, worker Worker, fn func(resource T) error) error {
	return worker.Use(ctx, func(resource any) error {
		typed, ok := resource.(T)
		if !ok {
			return fmt.Errorf("worker %s: resource type mismatch: want %T, have %T", worker.Name(), *new(T), resource)
		}
		return fn(typed)
	})
}
