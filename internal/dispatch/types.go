// Package dispatch is the webhook dispatch core: it consumes one delivery
// at a time, resolves the owning projects, routes the event to handlers
// with per-project isolation, and schedules bounded delayed retries when
// resolution fails transiently.
package dispatch

import (
	"context"
	"time"

	"github.com/tidehook/tidehook/internal/project"
	"github.com/tidehook/tidehook/internal/webhook"
)

// OutcomeKind classifies the result of routing one (webhook, project) pair.
type OutcomeKind int

const (
	// OutcomeHandled means a handler ran and succeeded.
	OutcomeHandled OutcomeKind = iota
	// OutcomeUnhandled means no handler matches the event.
	OutcomeUnhandled
	// OutcomeHandlerFailed means the handler returned an error or panicked.
	OutcomeHandlerFailed
)

// Outcome is the result of routing one (webhook, project) pair. It feeds
// logging and metrics only; it never changes acknowledgment behavior.
type Outcome struct {
	Kind      OutcomeKind
	FullEvent string
	Project   string
	Err       error
}

// RetryDecision says what to do about a transient resolution failure.
type RetryDecision struct {
	// GiveUp means the retry budget is exhausted; the delivery is dropped.
	GiveUp bool
	// Delay is how long to hold the retry before re-delivery.
	Delay time.Duration
	// Count is the retry counter to carry on the re-published message.
	Count int
}

// Handler processes one webhook for one project. Errors are opaque to the
// router; they are contained and logged, never propagated.
type Handler func(ctx context.Context, hook *webhook.Webhook, proj project.Project) error
