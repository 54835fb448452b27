package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"executor-go/commonlib/log"
	"executor-go/commonlib/pool"
)

// =============================================================================
// Redis Presence Store
// =============================================================================

// RedisStore records presence in Redis. Each node keeps a set of its actor
// names at <prefix>:node:<node>; each actor has a record with a TTL at
// <prefix>:actor:<node>:<name>. A set member without a record is stale.
type RedisStore struct {
	worker pool.Worker
	logger log.Logger
	node   string
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a store using the client held by worker.
func NewRedisStore(worker pool.Worker, node, prefix string, ttl time.Duration, logger log.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RedisStore{
		worker: worker,
		logger: logger,
		node:   node,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *RedisStore) nodeKey() string {
	return fmt.Sprintf("%s:node:%s", s.prefix, s.node)
}

func (s *RedisStore) actorKey(name string) string {
	return fmt.Sprintf("%s:actor:%s:%s", s.prefix, s.node, name)
}

func (s *RedisStore) use(ctx context.Context, fn func(client *redis.Client) error) error {
	return pool.UseGeneric(ctx, s.worker, fn)
}

// Register registers an actor in Redis
func (s *RedisStore) Register(ctx context.Context, name string) error {
	now := s.now().Unix()
	data, err := json.Marshal(&Entry{
		Actor:        name,
		Node:         s.node,
		RegisteredAt: now,
		LastSeen:     now,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal presence entry: %w", err)
	}

	err = s.use(ctx, func(client *redis.Client) error {
		pipe := client.TxPipeline()
		pipe.Set(ctx, s.actorKey(name), data, s.ttl)
		pipe.SAdd(ctx, s.nodeKey(), name)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to register actor %s: %w", name, err)
	}

	s.logger.Debug("Actor registered in Redis",
		log.String("actor", name),
		log.String("node", s.node),
	)
	return nil
}

// Unregister removes an actor from Redis
func (s *RedisStore) Unregister(ctx context.Context, name string) error {
	err := s.use(ctx, func(client *redis.Client) error {
		pipe := client.TxPipeline()
		pipe.Del(ctx, s.actorKey(name))
		pipe.SRem(ctx, s.nodeKey(), name)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to unregister actor %s: %w", name, err)
	}

	s.logger.Debug("Actor unregistered from Redis", log.String("actor", name))
	return nil
}

// Refresh rewrites the record with a new last-seen time and a fresh TTL.
func (s *RedisStore) Refresh(ctx context.Context, name string) error {
	var entry Entry
	err := s.use(ctx, func(client *redis.Client) error {
		data, err := client.Get(ctx, s.actorKey(name)).Bytes()
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &entry)
	})
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("refresh actor %s: %w", name, ErrNotRegistered)
	}
	if err != nil {
		return fmt.Errorf("failed to load actor %s: %w", name, err)
	}

	entry.LastSeen = s.now().Unix()
	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to marshal presence entry: %w", err)
	}
	var updated bool
	err = s.use(ctx, func(client *redis.Client) error {
		// XX: a record removed since the Get stays removed
		ok, err := client.SetXX(ctx, s.actorKey(name), data, s.ttl).Result()
		updated = ok
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to refresh actor %s: %w", name, err)
	}
	if !updated {
		return fmt.Errorf("refresh actor %s: %w", name, ErrNotRegistered)
	}
	return nil
}

// List returns the node's live actors and prunes stale set members.
func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := s.use(ctx, func(client *redis.Client) error {
		names, err := client.SMembers(ctx, s.nodeKey()).Result()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return nil
		}

		pipe := client.Pipeline()
		cmds := make([]*redis.StringCmd, len(names))
		for i, name := range names {
			cmds[i] = pipe.Get(ctx, s.actorKey(name))
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		stale := make([]any, 0)
		for i, cmd := range cmds {
			data, err := cmd.Bytes()
			if errors.Is(err, redis.Nil) {
				stale = append(stale, names[i])
				continue
			}
			if err != nil {
				return err
			}
			var entry Entry
			if err := json.Unmarshal(data, &entry); err != nil {
				s.logger.Warn("Skipping malformed presence entry",
					log.String("actor", names[i]),
					log.Err(err),
				)
				continue
			}
			entries = append(entries, entry)
		}

		if len(stale) > 0 {
			if err := client.SRem(ctx, s.nodeKey(), stale...).Err(); err != nil {
				s.logger.Warn("Failed to prune stale presence entries", log.Err(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list actors: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Actor < entries[j].Actor })
	return entries, nil
}
