// Package config provides configuration management for tidehook.
package config

import (
	"time"
)

// Config is the root configuration structure for tidehook.
type Config struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Queues   QueuesConfig   `mapstructure:"queues"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	API      APIConfig      `mapstructure:"api"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// RedisConfig holds broker connection settings.
type RedisConfig struct {
	// Addr is the Redis host:port
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// QueuesConfig names the queues the dispatcher touches.
type QueuesConfig struct {
	// Webhooks is the inbound webhook queue
	Webhooks string `mapstructure:"webhooks"`

	// Tasks is where handler output (deploy/remove tasks) goes
	Tasks string `mapstructure:"tasks"`

	// Logs is the structured emission stream for the log collector
	Logs string `mapstructure:"logs"`

	// Delayed is the sorted set backing delayed re-delivery
	Delayed string `mapstructure:"delayed"`
}

// ConsumerConfig holds consumer-group settings.
type ConsumerConfig struct {
	// Group is the consumer group name
	Group string `mapstructure:"group"`

	// Name identifies this instance within the group
	Name string `mapstructure:"name"`

	// Block is how long one read waits for new messages
	Block time.Duration `mapstructure:"block"`

	// SweepInterval is how often the delayed set is swept
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// APIConfig holds project directory API settings.
type APIConfig struct {
	// Endpoint is the directory API base URL
	Endpoint string `mapstructure:"endpoint"`

	// JWTSecret signs the service token for directory requests
	JWTSecret string `mapstructure:"jwt_secret"`

	// Timeout bounds one lookup request
	Timeout time.Duration `mapstructure:"timeout"`
}

// DispatchConfig holds engine settings.
type DispatchConfig struct {
	// MaxRetries bounds delayed retries of transient lookup failures
	MaxRetries int `mapstructure:"max_retries"`

	// ProcessTimeout bounds processing of one delivery (0 = no deadline)
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
}

// MetricsConfig holds the metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format: console or json
	Format string `mapstructure:"format"`
}
