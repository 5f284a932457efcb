package config

import (
	"fmt"
	"time"
)

// Broadcast scopes accepted by BroadcastScope.
const (
	BroadcastScopeAll          = "all"
	BroadcastScopeConversation = "conversation"
)

// Database drivers accepted by DatabaseDriver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	KeepaliveInterval  time.Duration `mapstructure:"keepalive_interval" yaml:"keepalive_interval"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxFramesPerMinute int           `mapstructure:"max_frames_per_minute" yaml:"max_frames_per_minute"`
	BroadcastScope     string        `mapstructure:"broadcast_scope" yaml:"broadcast_scope"`
	AllowedOrigins     []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTRequired bool   `mapstructure:"jwt_required" yaml:"jwt_required"`

	DatabaseDriver string `mapstructure:"database_driver" yaml:"database_driver"`
	DatabasePath   string `mapstructure:"database_path" yaml:"database_path"`
	PostgresDSN    string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	RedisAddr      string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword  string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB        int    `mapstructure:"redis_db" yaml:"redis_db"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		MaxMessageBytes:    4 << 10,
		KeepaliveInterval:  2 * time.Minute,
		WriteTimeout:       5 * time.Second,
		MaxFramesPerMinute: 0,
		BroadcastScope:     BroadcastScopeAll,
		AllowedOrigins:     []string{"localhost:3000"},
		JWTIssuer:          "msghub",
		JWTAudience:        "msghub",
		DatabaseDriver:     DriverSQLite,
		DatabasePath:       "msghub.db",
		RedisAddr:          "localhost:6379",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
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
	if other.BroadcastScope != "" {
		c.BroadcastScope = other.BroadcastScope
	}
	if other.DatabaseDriver != "" {
		c.DatabaseDriver = other.DatabaseDriver
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.PostgresDSN != "" {
		c.PostgresDSN = other.PostgresDSN
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
}

// Validate reports configuration values the server cannot start with.
func (c *Config) Validate() error {
	switch c.BroadcastScope {
	case BroadcastScopeAll, BroadcastScopeConversation:
	default:
		return fmt.Errorf("unknown broadcast_scope %q", c.BroadcastScope)
	}
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres, DriverRedis:
	default:
		return fmt.Errorf("unknown database_driver %q", c.DatabaseDriver)
	}
	if c.JWTRequired && c.JWTSecret == "" {
		return fmt.Errorf("jwt_required is set but jwt_secret is empty")
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("max_message_bytes must be positive")
	}
	return nil
}
