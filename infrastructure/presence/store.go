package presence

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// Presence Store Interface
// =============================================================================

// Entry is one live actor as recorded by a Store.
type Entry struct {
	Actor        string `json:"actor"`
	Node         string `json:"node"`
	RegisteredAt int64  `json:"registered_at"`
	LastSeen     int64  `json:"last_seen"`
}

// Store records which actors are alive on a node. It is informational only:
// nothing is ever delivered through it.
type Store interface {
	// Register records a started actor.
	Register(ctx context.Context, name string) error
	// Unregister removes a terminated actor.
	Unregister(ctx context.Context, name string) error
	// Refresh extends the lifetime of a healthy actor's record. It never
	// creates one: a missing or expired record yields ErrNotRegistered.
	Refresh(ctx context.Context, name string) error
	// List returns every unexpired record, sorted by actor name.
	List(ctx context.Context) ([]Entry, error)
}

// ErrNotRegistered is returned by Refresh when name has no live record.
var ErrNotRegistered = errors.New("actor not registered")

// DefaultTTL is used when a store is configured without one.
const DefaultTTL = 30 * time.Second
