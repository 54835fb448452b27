package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"executor-go/commonlib/config"
	"executor-go/commonlib/log"
	"executor-go/commonlib/pool"
	"executor-go/commonlib/snowflake"
	actorimpl "executor-go/infrastructure/actor"
	"executor-go/infrastructure/health"
	"executor-go/infrastructure/presence"
	"executor-go/services/bus_http/handler"
)

const (
	redisWorkerName = "redis"
	httpWorkerName  = "http_client"
)

// ServiceContext holds all dependencies for the bus service
type ServiceContext struct {
	Config    *config.Config
	Logger    log.Logger
	IDs       *snowflake.TypedID
	Pool      *pool.Pool
	Directory *actorimpl.Directory
	Monitor   *health.Monitor
	Presence  presence.Store
	Tracker   *presence.Tracker
	Handler   *handler.Handler
}

// NewServiceContext creates a new service context with all dependencies initialized
func NewServiceContext(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	if err := log.Init(log.LogConfig{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		AddCaller:  true,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   true,
	}); err != nil {
		return nil, err
	}
	logger := log.Default().With(log.String("service", cfg.Service.Name))

	ids, err := snowflake.NewTypedID(cfg.Service.NodeID)
	if err != nil {
		return nil, fmt.Errorf("init snowflake: %w", err)
	}

	svc := &ServiceContext{
		Config: cfg,
		Logger: logger,
		IDs:    ids,
		Pool:   pool.NewPool(),
	}

	httpWorker, err := pool.NewHTTPClientWorkerFromConfig(ctx, httpWorkerName, &pool.HTTPClientWorkerConfig{
		Timeout:             cfg.HTTPClient.Timeout,
		MaxIdleConns:        cfg.HTTPClient.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTPClient.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.HTTPClient.IdleConnTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init http client worker: %w", err)
	}
	if err := svc.Pool.Register(httpWorker); err != nil {
		return nil, err
	}

	svc.Directory = actorimpl.NewDirectory(actorimpl.DirectoryConfig{
		Name:           cfg.Service.Name,
		ReceiveTimeout: cfg.Actor.ReceiveTimeout,
		Logger:         logger,
	})

	if cfg.Presence.Enabled {
		if err := svc.initPresence(ctx); err != nil {
			svc.Close()
			return nil, err
		}
	}

	if cfg.Health.Enabled {
		svc.Monitor = health.NewMonitor(svc.Directory, health.Config{
			Name:     cfg.Health.MonitorName,
			Interval: cfg.Health.Interval,
			Timeout:  cfg.Health.Timeout,
		}, logger)
		if svc.Tracker != nil {
			svc.Monitor.SetSeenCallback(svc.Tracker.Seen)
		}
	}

	svc.Handler = handler.NewHandler(handler.Deps{
		Directory:  svc.Directory,
		Monitor:    svc.Monitor,
		Presence:   svc.Presence,
		Pool:       svc.Pool,
		HTTPWorker: httpWorker,
		IDs:        ids,
		WebSocket:  cfg.WebSocket,
		Logger:     logger,
	})
	return svc, nil
}

func (svc *ServiceContext) initPresence(ctx context.Context) error {
	cfg := svc.Config
	node := strconv.FormatInt(cfg.Service.NodeID, 10)

	switch cfg.Presence.Backend {
	case "redis":
		worker, err := pool.NewRedisWorkerFromConfig(ctx, redisWorkerName, &pool.RedisWorkerConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			return fmt.Errorf("init redis worker: %w", err)
		}
		if err := svc.Pool.Register(worker); err != nil {
			worker.Close()
			return err
		}
		svc.Presence = presence.NewRedisStore(worker, node, cfg.Presence.KeyPrefix, cfg.Presence.TTL, svc.Logger)
	default:
		svc.Presence = presence.NewMemoryStore(node, cfg.Presence.TTL)
	}

	svc.Tracker = presence.NewTracker(svc.Presence, svc.Logger)
	svc.Tracker.Attach(svc.Directory)
	return nil
}

// Start runs the background components and starts the bootstrap actors.
func (svc *ServiceContext) Start(ctx context.Context) error {
	if svc.Tracker != nil {
		svc.Tracker.Start(ctx)
	}
	if svc.Monitor != nil {
		if err := svc.Monitor.Start(ctx); err != nil {
			return err
		}
	}
	for _, name := range svc.Config.Actor.Bootstrap {
		if err := svc.Directory.Start(name); err != nil {
			return fmt.Errorf("start bootstrap actor: %w", err)
		}
	}
	return nil
}

// Close closes all resources in the service context
func (svc *ServiceContext) Close() error {
	if svc.Monitor != nil {
		svc.Monitor.Stop()
	}
	if svc.Directory != nil {
		svc.Directory.Shutdown()
	}
	if svc.Tracker != nil {
		svc.Tracker.Close()
	}
	var errs []error
	if svc.Pool != nil {
		errs = append(errs, svc.Pool.Close())
	}
	if svc.Logger != nil {
		// syncing stdout/stderr fails on some platforms; ignore it
		_ = svc.Logger.Sync()
	}
	return errors.Join(errs...)
}
