package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// delayedEntry is the JSON form of a delayed publication stored in the
// sorted-set member. The original body bytes are carried unmodified
// (base64 inside the member, byte-identical once republished).
type delayedEntry struct {
	Queue       string          `json:"queue"`
	Body        []byte          `json:"body"`
	RoutingKey  string          `json:"routing_key,omitempty"`
	RetryCount  int             `json:"x_retry,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	AppID       string          `json:"app_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp,omitempty"`
}

func encodeDelayed(queue string, pub Publishing) (string, error) {
	entry := delayedEntry{
		Queue:       queue,
		Body:        pub.Body,
		RoutingKey:  pub.RoutingKey,
		RetryCount:  pub.Headers.RetryCount,
		ContentType: pub.ContentType,
		AppID:       pub.AppID,
		Timestamp:   pub.Timestamp,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encoding delayed entry: %w", err)
	}
	return string(data), nil
}

func (e delayedEntry) publishing() Publishing {
	return Publishing{
		Body:        e.Body,
		Headers:     Headers{RetryCount: e.RetryCount},
		RoutingKey:  e.RoutingKey,
		ContentType: e.ContentType,
		AppID:       e.AppID,
		Timestamp:   e.Timestamp,
	}
}

// RunDelayed sweeps the delayed set and republishes entries whose due-time
// has passed. Blocks until ctx is cancelled.
func (b *RedisBroker) RunDelayed(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.sweepDelayed(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Sweeping delayed queue failed")
			}
		}
	}
}

func (b *RedisBroker) sweepDelayed(ctx context.Context) error {
	now := time.Now().UnixMilli()
	members, err := b.client.ZRangeByScore(ctx, b.cfg.DelayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("reading delayed set: %w", err)
	}

	for _, member := range members {
		var entry delayedEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			// Undecodable entries would otherwise be re-read forever.
			log.Error().Err(err).Msg("Dropping undecodable delayed entry")
			b.client.ZRem(ctx, b.cfg.DelayedKey, member)
			continue
		}

		// Remove before republishing so a concurrent sweeper cannot
		// double-publish; ZREM returns 0 if someone else won.
		removed, err := b.client.ZRem(ctx, b.cfg.DelayedKey, member).Result()
		if err != nil {
			return fmt.Errorf("removing delayed entry: %w", err)
		}
		if removed == 0 {
			continue
		}

		if err := b.Publish(ctx, entry.Queue, entry.publishing()); err != nil {
			log.Error().Err(err).Str("queue", entry.Queue).Msg("Republishing delayed entry failed")
			// Put it back so the message is not lost.
			b.client.ZAdd(ctx, b.cfg.DelayedKey, redis.Z{
				Score:  float64(now),
				Member: member,
			})
		}
	}

	return nil
}
