// Package broker provides the message transport for webhook deliveries:
// queue consumption with explicit acknowledgment, publishing, and a delayed
// re-delivery path for retries.
package broker

import (
	"context"
	"sync"
	"time"
)

// Headers is the delivery metadata carried alongside the message body.
// RetryCount mirrors the x-retry header and defaults to 0 when absent.
type Headers struct {
	RetryCount int
}

// Publishing is an outbound message.
type Publishing struct {
	Body        []byte
	Headers     Headers
	RoutingKey  string
	ContentType string
	AppID       string
	Timestamp   time.Time
}

// Publisher publishes messages to a named queue, immediately or after a
// delay. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, queue string, pub Publishing) error
	PublishDelayed(ctx context.Context, queue string, pub Publishing, delay time.Duration) error
}

// Delivery is one message handed to a consumer. Ack removes it from the
// queue; calling Ack more than once is a no-op, so processing code can keep
// the one-ack-per-delivery invariant without tracking state itself.
type Delivery struct {
	ID          string
	RoutingKey  string
	Body        []byte
	Headers     Headers
	ContentType string
	AppID       string
	Timestamp   time.Time

	ackOnce sync.Once
	ack     func(ctx context.Context) error
	ackErr  error
	acked   bool
}

// NewDelivery builds a Delivery whose Ack invokes fn once.
func NewDelivery(id string, body []byte, h Headers, fn func(ctx context.Context) error) *Delivery {
	return &Delivery{ID: id, Body: body, Headers: h, ack: fn}
}

// Ack acknowledges the delivery. Only the first call has an effect.
func (d *Delivery) Ack(ctx context.Context) error {
	d.ackOnce.Do(func() {
		d.acked = true
		if d.ack != nil {
			d.ackErr = d.ack(ctx)
		}
	})
	return d.ackErr
}

// Acked reports whether Ack has been called.
func (d *Delivery) Acked() bool {
	return d.acked
}

// HandlerFunc processes one delivery. It is responsible for acknowledging
// the delivery on every path; the consumer loop does not ack on its behalf.
type HandlerFunc func(ctx context.Context, d *Delivery)
