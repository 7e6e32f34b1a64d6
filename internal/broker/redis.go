package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Stream entry field names.
const (
	fieldBody        = "body"
	fieldRoutingKey  = "routing_key"
	fieldContentType = "content_type"
	fieldAppID       = "app_id"
	fieldTimestamp   = "timestamp"
	fieldRetry       = "x-retry"
)

// RedisConfig holds settings for the Redis Streams broker.
type RedisConfig struct {
	// Group is the consumer group name.
	Group string
	// Consumer is this instance's name within the group.
	Consumer string
	// Block is how long one XREADGROUP call waits for new entries.
	Block time.Duration
	// DelayedKey is the sorted set holding delayed publications.
	DelayedKey string
	// SweepInterval is how often the delayed set is checked for due entries.
	SweepInterval time.Duration
}

// DefaultRedisConfig returns sensible broker defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Group:         "tidehook",
		Consumer:      "tidehook-1",
		Block:         5 * time.Second,
		DelayedKey:    "tidehook:webhooks:delayed",
		SweepInterval: time.Second,
	}
}

// RedisBroker is a Publisher and consumer backed by Redis Streams. Queues
// are streams consumed through a consumer group; acknowledgment is
// XACK+XDEL; the delayed re-delivery path is a sorted set scored by
// due-time, swept back into the target stream by RunDelayed.
type RedisBroker struct {
	client *redis.Client
	cfg    RedisConfig

	mu     sync.Mutex
	groups map[string]bool // streams whose consumer group exists
}

// NewRedisBroker wraps an existing client. The client's connection pool is
// shared by concurrent ack/publish calls; go-redis is safe for that.
func NewRedisBroker(client *redis.Client, cfg RedisConfig) *RedisBroker {
	if cfg.Group == "" {
		cfg.Group = DefaultRedisConfig().Group
	}
	if cfg.Block <= 0 {
		cfg.Block = DefaultRedisConfig().Block
	}
	if cfg.DelayedKey == "" {
		cfg.DelayedKey = DefaultRedisConfig().DelayedKey
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultRedisConfig().SweepInterval
	}
	return &RedisBroker{
		client: client,
		cfg:    cfg,
		groups: make(map[string]bool),
	}
}

// Publish appends a message to the queue stream.
func (b *RedisBroker) Publish(ctx context.Context, queue string, pub Publishing) error {
	if err := b.ensureGroup(ctx, queue); err != nil {
		return err
	}
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: queue,
		Values: publishingValues(pub),
	}).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", queue, err)
	}
	return nil
}

// PublishDelayed stores the message in the delayed set, scored by its
// due-time. RunDelayed moves it into the queue stream once due.
func (b *RedisBroker) PublishDelayed(ctx context.Context, queue string, pub Publishing, delay time.Duration) error {
	entry, err := encodeDelayed(queue, pub)
	if err != nil {
		return err
	}
	due := time.Now().Add(delay)
	if err := b.client.ZAdd(ctx, b.cfg.DelayedKey, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: entry,
	}).Err(); err != nil {
		return fmt.Errorf("scheduling delayed publish to %s: %w", queue, err)
	}
	return nil
}

// Consume reads the queue stream through the consumer group and invokes
// handler for each delivery, one at a time. Pending entries left by a
// previous run of this consumer are replayed first. Blocks until ctx is
// cancelled.
func (b *RedisBroker) Consume(ctx context.Context, queue string, handler HandlerFunc) error {
	if err := b.ensureGroup(ctx, queue); err != nil {
		return err
	}

	// First pass re-reads this consumer's pending entries so a crashed
	// predecessor's unacked deliveries are not stranded.
	cursor := "0"
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			Streams:  []string{queue, cursor},
			Count:    1,
			Block:    b.cfg.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			cursor = ">"
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("queue", queue).Msg("Reading from stream failed")
			time.Sleep(time.Second)
			continue
		}

		delivered := false
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				delivered = true
				handler(ctx, b.delivery(queue, msg))
			}
		}
		if !delivered && cursor == "0" {
			// Pending backlog drained; switch to new entries.
			cursor = ">"
		}
	}
}

func (b *RedisBroker) delivery(queue string, msg redis.XMessage) *Delivery {
	d := &Delivery{
		ID:          msg.ID,
		Body:        []byte(stringValue(msg.Values, fieldBody)),
		RoutingKey:  stringValue(msg.Values, fieldRoutingKey),
		ContentType: stringValue(msg.Values, fieldContentType),
		AppID:       stringValue(msg.Values, fieldAppID),
		Headers:     Headers{RetryCount: intValue(msg.Values, fieldRetry)},
	}
	if ts := stringValue(msg.Values, fieldTimestamp); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			d.Timestamp = t
		}
	}
	d.ack = func(ctx context.Context) error {
		pipe := b.client.TxPipeline()
		pipe.XAck(ctx, queue, b.cfg.Group, msg.ID)
		pipe.XDel(ctx, queue, msg.ID)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("acking %s on %s: %w", msg.ID, queue, err)
		}
		return nil
	}
	return d
}

func (b *RedisBroker) ensureGroup(ctx context.Context, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.groups[queue] {
		return nil
	}
	err := b.client.XGroupCreateMkStream(ctx, queue, b.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group on %s: %w", queue, err)
	}
	b.groups[queue] = true
	return nil
}

func publishingValues(pub Publishing) map[string]any {
	values := map[string]any{
		fieldBody:       string(pub.Body),
		fieldRoutingKey: pub.RoutingKey,
		fieldRetry:      pub.Headers.RetryCount,
	}
	if pub.ContentType != "" {
		values[fieldContentType] = pub.ContentType
	}
	if pub.AppID != "" {
		values[fieldAppID] = pub.AppID
	}
	if !pub.Timestamp.IsZero() {
		values[fieldTimestamp] = pub.Timestamp.Format(time.RFC3339Nano)
	}
	return values
}

func stringValue(values map[string]any, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}

func intValue(values map[string]any, key string) int {
	switch v := values[key].(type) {
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	case int64:
		return int(v)
	default:
		return 0
	}
}
