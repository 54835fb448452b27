package presence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps presence records in process, expiring them after ttl.
type MemoryStore struct {
	node string
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	Entry
	expiresAt time.Time
}

// NewMemoryStore creates an in-process store for node.
func NewMemoryStore(node string, ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		node:    node,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*memoryEntry),
	}
}

func (s *MemoryStore) Register(ctx context.Context, name string) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = &memoryEntry{
		Entry: Entry{
			Actor:        name,
			Node:         s.node,
			RegisteredAt: now.Unix(),
			LastSeen:     now.Unix(),
		},
		expiresAt: now.Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Unregister(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
	return nil
}

// Refresh extends name's record.
func (s *MemoryStore) Refresh(ctx context.Context, name string) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if ok && !now.Before(e.expiresAt) {
		delete(s.entries, name)
		ok = false
	}
	if !ok {
		return ErrNotRegistered
	}
	e.LastSeen = now.Unix()
	e.expiresAt = now.Add(s.ttl)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Entry, error) {
	now := s.now()
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for name, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, name)
			continue
		}
		out = append(out, e.Entry)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Actor < out[j].Actor })
	return out, nil
}
