package config

import (
	"fmt"
	"time"
)

// Backends selectable for the presence store and the bus.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

// Config holds server configuration values.
type Config struct {
	Addr                   string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout      time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout        time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel               string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat              string        `mapstructure:"log_format" yaml:"log_format"`
	MainRoom               string        `mapstructure:"main_room" yaml:"main_room"`
	NodeID                 string        `mapstructure:"node_id" yaml:"node_id"`
	SendBuffer             int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	Backend                string        `mapstructure:"backend" yaml:"backend"`
	ChannelPrefix          string        `mapstructure:"channel_prefix" yaml:"channel_prefix"`
	DebugBroadcastInterval time.Duration `mapstructure:"debug_broadcast_interval" yaml:"debug_broadcast_interval"`

	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
	NATS  NATSConfig  `mapstructure:"nats" yaml:"nats"`
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`
}

// RedisConfig configures the Redis presence store and bus.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// NATSConfig configures the NATS bus and JetStream presence bucket.
type NATSConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
}

// AdminConfig protects operator endpoints. An empty secret disables checks.
type AdminConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8888",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		MainRoom:          "MainRoom",
		SendBuffer:        64,
		Backend:           BackendMemory,
		ChannelPrefix:     "wirechat",
		Redis: RedisConfig{
			Addr:      "127.0.0.1:6379",
			KeyPrefix: "wirechat:presence:",
		},
		NATS: NATSConfig{
			URL:    "nats://127.0.0.1:4222",
			Bucket: "wirechat_presence",
		},
		Admin: AdminConfig{
			TokenTTL: time.Hour,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the keys exposed as CLI flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Backend != "" {
		c.Backend = other.Backend
	}
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendRedis, BackendNATS:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.SendBuffer < 0 {
		return fmt.Errorf("send_buffer must not be negative")
	}
	if c.DebugBroadcastInterval < 0 {
		return fmt.Errorf("debug_broadcast_interval must not be negative")
	}
	return nil
}
