package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateRedis(&cfg.Redis)...)
	errs = append(errs, validateQueues(&cfg.Queues)...)
	errs = append(errs, validateConsumer(&cfg.Consumer)...)
	errs = append(errs, validateAPI(&cfg.API)...)
	errs = append(errs, validateDispatch(&cfg.Dispatch)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateRedis(cfg *RedisConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Addr == "" {
		errs = append(errs, ValidationError{
			Field:   "redis.addr",
			Message: "is required",
		})
	}
	if cfg.DB < 0 {
		errs = append(errs, ValidationError{
			Field:   "redis.db",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateQueues(cfg *QueuesConfig) ValidationErrors {
	var errs ValidationErrors

	for field, value := range map[string]string{
		"queues.webhooks": cfg.Webhooks,
		"queues.tasks":    cfg.Tasks,
		"queues.delayed":  cfg.Delayed,
	} {
		if value == "" {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "is required",
			})
		}
	}

	return errs
}

func validateConsumer(cfg *ConsumerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Group == "" {
		errs = append(errs, ValidationError{
			Field:   "consumer.group",
			Message: "is required",
		})
	}
	if cfg.Block < 0 {
		errs = append(errs, ValidationError{
			Field:   "consumer.block",
			Message: "must be non-negative",
		})
	}
	if cfg.SweepInterval < 0 {
		errs = append(errs, ValidationError{
			Field:   "consumer.sweep_interval",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateAPI(cfg *APIConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Endpoint == "" {
		errs = append(errs, ValidationError{
			Field:   "api.endpoint",
			Message: "is required",
		})
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, ValidationError{
			Field:   "api.jwt_secret",
			Message: "is required",
		})
	}
	if cfg.Timeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "api.timeout",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateDispatch(cfg *DispatchConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.MaxRetries < 1 {
		errs = append(errs, ValidationError{
			Field:   "dispatch.max_retries",
			Message: "must be at least 1",
		})
	}
	if cfg.ProcessTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "dispatch.process_timeout",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch cfg.Level {
	case "debug", "info", "warn", "error", "":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: debug, info, warn, error",
		})
	}

	switch cfg.Format {
	case "console", "json", "":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be console or json",
		})
	}

	return errs
}
