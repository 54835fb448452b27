package pool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrWorkerNotInitialized is returned by Use and Health before Init.
var ErrWorkerNotInitialized = errors.New("worker not initialized")

// =============================================================================
// Redis Worker
// =============================================================================

const (
	redisDialTimeout = 5 * time.Second
	redisIOTimeout   = 3 * time.Second
	redisPingTimeout = 5 * time.Second
)

// RedisWorkerConfig is the connection settings of a RedisWorker.
type RedisWorkerConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

func (c *RedisWorkerConfig) options() *redis.Options {
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.Host, c.Port),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisIOTimeout,
		WriteTimeout: redisIOTimeout,
	}
}

// RedisWorker shares one Redis client, used by the presence store.
type RedisWorker struct {
	name   string
	client *redis.Client
}

// NewRedisWorker returns a worker that connects on Init.
func NewRedisWorker(name string) *RedisWorker {
	return &RedisWorker{name: name}
}

// NewRedisWorkerFromConfig returns a connected worker.
func NewRedisWorkerFromConfig(ctx context.Context, name string, config *RedisWorkerConfig) (*RedisWorker, error) {
	w := NewRedisWorker(name)
	if err := w.Init(ctx, config); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RedisWorker) Type() WorkerType { return WorkerTypeRedis }
func (w *RedisWorker) Name() string     { return w.name }

// Init dials Redis and fails unless the server answers a PING.
func (w *RedisWorker) Init(ctx context.Context, config any) error {
	cfg, ok := config.(*RedisWorkerConfig)
	if !ok {
		return fmt.Errorf("redis worker %s: config is %T, want *RedisWorkerConfig", w.name, config)
	}

	client := redis.NewClient(cfg.options())
	if err := ping(ctx, client); err != nil {
		client.Close()
		return fmt.Errorf("redis worker %s: ping: %w", w.name, err)
	}
	w.client = client
	return nil
}

func ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	return client.Ping(ctx).Err()
}

func (w *RedisWorker) Health(ctx context.Context) error {
	if w.client == nil {
		return fmt.Errorf("redis worker %s: %w", w.name, ErrWorkerNotInitialized)
	}
	return ping(ctx, w.client)
}

// Use passes the *redis.Client to fn.
func (w *RedisWorker) Use(ctx context.Context, fn func(resource any) error) error {
	if w.client == nil {
		return fmt.Errorf("redis worker %s: %w", w.name, ErrWorkerNotInitialized)
	}
	return fn(w.client)
}

func (w *RedisWorker) Close() error {
	if w.client == nil {
		return nil
	}
	return w.client.Close()
}

// =============================================================================
// HTTP Client Worker
// =============================================================================

// HTTPClientWorkerConfig tunes the shared client. Zero fields take defaults.
type HTTPClientWorkerConfig struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

func (c HTTPClientWorkerConfig) withDefaults() HTTPClientWorkerConfig {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 100
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = 10
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = 90 * time.Second
	}
	return c
}

// HTTPClientWorker shares one pooled HTTP client, used by payload producers.
type HTTPClientWorker struct {
	name   string
	client *http.Client
}

// NewHTTPClientWorker returns a worker that builds its client on Init.
func NewHTTPClientWorker(name string) *HTTPClientWorker {
	return &HTTPClientWorker{name: name}
}

// NewHTTPClientWorkerFromConfig returns an initialized worker.
func NewHTTPClientWorkerFromConfig(ctx context.Context, name string, config *HTTPClientWorkerConfig) (*HTTPClientWorker, error) {
	w := NewHTTPClientWorker(name)
	if err := w.Init(ctx, config); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *HTTPClientWorker) Type() WorkerType { return WorkerTypeHTTPClient }
func (w *HTTPClientWorker) Name() string     { return w.name }

func (w *HTTPClientWorker) Init(ctx context.Context, config any) error {
	cfg, ok := config.(*HTTPClientWorkerConfig)
	if !ok {
		return fmt.Errorf("http client worker %s: config is %T, want *HTTPClientWorkerConfig", w.name, config)
	}
	c := cfg.withDefaults()
	w.client = &http.Client{
		Timeout: c.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        c.MaxIdleConns,
			MaxIdleConnsPerHost: c.MaxIdleConnsPerHost,
			IdleConnTimeout:     c.IdleConnTimeout,
		},
	}
	return nil
}

// Health only checks that Init ran; there is no remote end to ping.
func (w *HTTPClientWorker) Health(ctx context.Context) error {
	if w.client == nil {
		return fmt.Errorf("http client worker %s: %w", w.name, ErrWorkerNotInitialized)
	}
	return nil
}

// Use passes the *http.Client to fn.
func (w *HTTPClientWorker) Use(ctx context.Context, fn func(resource any) error) error {
	if w.client == nil {
		return fmt.Errorf("http client worker %s: %w", w.name, ErrWorkerNotInitialized)
	}
	return fn(w.client)
}

// Close drops idle connections.
func (w *HTTPClientWorker) Close() error {
	if w.client != nil {
		w.client.CloseIdleConnections()
	}
	return nil
}
