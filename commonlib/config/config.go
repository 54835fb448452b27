package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Configuration Types
// =============================================================================

// ServiceConfig configures the service.
type ServiceConfig struct {
	Name        string `json:"name" mapstructure:"name"`
	Version     string `json:"version" mapstructure:"version"`
	Environment string `json:"environment" mapstructure:"environment"` // dev, staging, prod
	NodeID      int64  `json:"node_id" mapstructure:"node_id"`
}

// ActorConfig configures the actor directory.
type ActorConfig struct {
	// ReceiveTimeout bounds each blocking receive; a timeout is the idle tick.
	ReceiveTimeout time.Duration `json:"receive_timeout" mapstructure:"receive_timeout"`
	// Bootstrap actors are started when the service boots.
	Bootstrap []string `json:"bootstrap" mapstructure:"bootstrap"`
}

// HealthConfig configures the health monitor.
type HealthConfig struct {
	Enabled     bool          `json:"enabled" mapstructure:"enabled"`
	MonitorName string        `json:"monitor_name" mapstructure:"monitor_name"`
	Interval    time.Duration `json:"interval" mapstructure:"interval"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
}

// PresenceConfig configures the presence mirror.
type PresenceConfig struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled"`
	Backend   string        `json:"backend" mapstructure:"backend"` // memory, redis
	TTL       time.Duration `json:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `json:"key_prefix" mapstructure:"key_prefix"`
}

// RedisConfig configures Redis.
type RedisConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	Password     string `json:"password" mapstructure:"password"`
	DB           int    `json:"db" mapstructure:"db"`
	PoolSize     int    `json:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int    `json:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// HTTPConfig configures the admin HTTP server.
type HTTPConfig struct {
	Host         string        `json:"host" mapstructure:"host"`
	Port         int           `json:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
}

// HTTPClientConfig configures the outbound HTTP client used by payload producers.
type HTTPClientConfig struct {
	Timeout             time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxIdleConns        int           `json:"max_idle_conns" mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host" mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout" mapstructure:"idle_conn_timeout"`
}

// WebSocketConfig configures the envelope tap.
type WebSocketConfig struct {
	ReadBufferSize  int           `json:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `json:"write_buffer_size" mapstructure:"write_buffer_size"`
	WriteWait       time.Duration `json:"write_wait" mapstructure:"write_wait"`
	Backlog         int           `json:"backlog" mapstructure:"backlog"`
	AllowedOrigins  []string      `json:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format     string `json:"format" mapstructure:"format"` // json, console
	OutputPath string `json:"output_path" mapstructure:"output_path"`
	MaxSize    int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAge     int    `json:"max_age" mapstructure:"max_age"` // days
}

// Config holds all configuration.
type Config struct {
	Service    ServiceConfig    `json:"service" mapstructure:"service"`
	Actor      ActorConfig      `json:"actor" mapstructure:"actor"`
	Health     HealthConfig     `json:"health" mapstructure:"health"`
	Presence   PresenceConfig   `json:"presence" mapstructure:"presence"`
	Redis      RedisConfig      `json:"redis" mapstructure:"redis"`
	HTTP       HTTPConfig       `json:"http" mapstructure:"http"`
	HTTPClient HTTPClientConfig `json:"http_client" mapstructure:"http_client"`
	WebSocket  WebSocketConfig  `json:"websocket" mapstructure:"websocket"`
	Log        LogConfig        `json:"log" mapstructure:"log"`
}

// =============================================================================
// Configuration Loading
// =============================================================================

// Load loads configuration from an optional file, defaults and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/executor")
	}

	v.SetEnvPrefix("EXECUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(&config)

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Service
	v.SetDefault("service.name", "executor")
	v.SetDefault("service.version", "1.0.0")
	v.SetDefault("service.environment", "dev")
	v.SetDefault("service.node_id", 1)

	// Actor
	v.SetDefault("actor.receive_timeout", "1s")
	v.SetDefault("actor.bootstrap", []string{})

	// Health
	v.SetDefault("health.enabled", true)
	v.SetDefault("health.monitor_name", "health-monitor")
	v.SetDefault("health.interval", "5s")
	v.SetDefault("health.timeout", "15s")

	// Presence
	v.SetDefault("presence.enabled", false)
	v.SetDefault("presence.backend", "memory")
	v.SetDefault("presence.ttl", "30s")
	v.SetDefault("presence.key_prefix", "executor")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	// HTTP
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "120s")

	// HTTP client
	v.SetDefault("http_client.timeout", "30s")
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 10)
	v.SetDefault("http_client.idle_conn_timeout", "90s")

	// WebSocket
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.backlog", 64)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 30)
}

func overrideFromEnv(config *Config) {
	if pw := os.Getenv("EXECUTOR_REDIS_PASSWORD"); pw != "" {
		config.Redis.Password = pw
	}
}

// =============================================================================
// Validation
// =============================================================================

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service.name is required")
	}
	if c.Actor.ReceiveTimeout <= 0 {
		return fmt.Errorf("actor.receive_timeout must be positive")
	}
	for _, name := range c.Actor.Bootstrap {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("actor.bootstrap contains an empty name")
		}
	}
	if c.Health.Enabled {
		if c.Health.MonitorName == "" {
			return fmt.Errorf("health.monitor_name is required")
		}
		if c.Health.Interval <= 0 || c.Health.Timeout <= 0 {
			return fmt.Errorf("health.interval and health.timeout must be positive")
		}
	}
	if c.Presence.Enabled {
		// records are refreshed by health check replies
		if !c.Health.Enabled {
			return fmt.Errorf("presence requires health.enabled")
		}
		if c.Presence.TTL <= c.Health.Interval {
			return fmt.Errorf("presence.ttl (%s) must be longer than health.interval (%s)", c.Presence.TTL, c.Health.Interval)
		}
		switch c.Presence.Backend {
		case "memory":
		case "redis":
			if c.Redis.Host == "" {
				return fmt.Errorf("redis.host is required for the redis presence backend")
			}
		default:
			return fmt.Errorf("presence.backend %q is not supported", c.Presence.Backend)
		}
	}
	if c.HTTP.Port <= 0 {
		return fmt.Errorf("http.port must be positive")
	}
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// IsProd returns true if in production environment.
func (c *Config) IsProd() bool {
	return c.Service.Environment == "prod" || c.Service.Environment == "production"
}

// GetHTTPAddr returns the HTTP address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// GetRedisAddr returns the Redis address.
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
