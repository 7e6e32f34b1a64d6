package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tidehook/tidehook/internal/broker"
	"github.com/tidehook/tidehook/internal/config"
	"github.com/tidehook/tidehook/internal/dispatch"
	"github.com/tidehook/tidehook/internal/handlers"
	"github.com/tidehook/tidehook/internal/logs"
	"github.com/tidehook/tidehook/internal/metrics"
	"github.com/tidehook/tidehook/internal/project"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the webhook dispatcher",
	Long: `Start the dispatcher: connect to Redis, join the consumer group on the
webhooks queue, run the delayed re-delivery sweeper, and serve metrics.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLogging(cfg.Logging)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
	}

	b := broker.NewRedisBroker(client, broker.RedisConfig{
		Group:         cfg.Consumer.Group,
		Consumer:      cfg.Consumer.Name,
		Block:         cfg.Consumer.Block,
		DelayedKey:    cfg.Queues.Delayed,
		SweepInterval: cfg.Consumer.SweepInterval,
	})

	sink := logs.NewStreamSink(b, cfg.Queues.Logs)
	resolver := project.NewClient(project.ClientConfig{
		Endpoint:  cfg.API.Endpoint,
		JWTSecret: cfg.API.JWTSecret,
		Timeout:   cfg.API.Timeout,
	})
	tasks := handlers.NewTasks(b, cfg.Queues.Tasks)
	router := dispatch.NewRouter(dispatch.Handlers{
		Push:              tasks.Push,
		BranchDeleted:     tasks.BranchDeleted,
		PullRequestClosed: tasks.PullRequestClosed,
	}, sink)
	engine := dispatch.NewEngine(resolver, router, b, sink, dispatch.EngineConfig{
		WebhooksQueue:  cfg.Queues.Webhooks,
		Policy:         dispatch.RetryPolicy{MaxRetries: cfg.Dispatch.MaxRetries},
		ProcessTimeout: cfg.Dispatch.ProcessTimeout,
	})

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = serveMetrics(cfg.Metrics.Addr)
	}

	go b.RunDelayed(ctx)

	log.Info().
		Str("queue", cfg.Queues.Webhooks).
		Str("group", cfg.Consumer.Group).
		Str("consumer", cfg.Consumer.Name).
		Msg("Dispatcher started")

	err = b.Consume(ctx, cfg.Queues.Webhooks, engine.Process)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("consuming webhooks: %w", err)
	}
	log.Info().Msg("Dispatcher stopped")
	return nil
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFromFile(cfgFile)
	}
	return config.LoadWithDefaults()
}

// applyLogging reconfigures the global logger from config; the --verbose
// flag still wins for level.
func applyLogging(cfg config.LoggingConfig) {
	if !verbose {
		if level, err := zerolog.ParseLevel(cfg.Level); err == nil && cfg.Level != "" {
			zerolog.SetGlobalLevel(level)
		}
	}
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("Metrics listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}
