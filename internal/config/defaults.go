package config

import (
	"fmt"
	"os"
	"time"
)

// Default configuration values.
const (
	// Broker defaults.
	DefaultRedisAddr     = "localhost:6379"
	DefaultWebhooksQueue = "tidehook:webhooks"
	DefaultTasksQueue    = "tidehook:tasks"
	DefaultLogsQueue     = "tidehook:logs"
	DefaultDelayedKey    = "tidehook:webhooks:delayed"

	// Consumer defaults.
	DefaultGroup         = "tidehook"
	DefaultBlock         = 5 * time.Second
	DefaultSweepInterval = time.Second

	// API defaults.
	DefaultAPITimeout = 10 * time.Second

	// Dispatch defaults.
	DefaultMaxRetries = 3

	// Metrics defaults.
	DefaultMetricsAddr = ":9187"

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{
			Addr: DefaultRedisAddr,
		},
		Queues: QueuesConfig{
			Webhooks: DefaultWebhooksQueue,
			Tasks:    DefaultTasksQueue,
			Logs:     DefaultLogsQueue,
			Delayed:  DefaultDelayedKey,
		},
		Consumer: ConsumerConfig{
			Group:         DefaultGroup,
			Name:          defaultConsumerName(),
			Block:         DefaultBlock,
			SweepInterval: DefaultSweepInterval,
		},
		API: APIConfig{
			Timeout: DefaultAPITimeout,
		},
		Dispatch: DispatchConfig{
			MaxRetries: DefaultMaxRetries,
			// ProcessTimeout stays 0: no per-message deadline unless
			// operators configure one.
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    DefaultMetricsAddr,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return fmt.Sprintf("tidehook-%d", os.Getpid())
	}
	return host
}
