package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tidehook/tidehook/internal/broker"
	"github.com/tidehook/tidehook/internal/logs"
	"github.com/tidehook/tidehook/internal/metrics"
	"github.com/tidehook/tidehook/internal/project"
	"github.com/tidehook/tidehook/internal/webhook"
)

// EngineConfig holds engine settings.
type EngineConfig struct {
	// WebhooksQueue is where retry re-publishes go (the inbound queue,
	// reached through the delayed path).
	WebhooksQueue string
	// Policy bounds retries of transient resolution failures.
	Policy RetryPolicy
	// ProcessTimeout bounds processing of one delivery so a hung handler
	// cannot occupy the consumer forever. Zero disables the deadline.
	ProcessTimeout time.Duration
}

// Engine processes webhook deliveries. Every collaborator is passed in
// explicitly; the engine owns no state beyond them and keeps nothing
// between deliveries.
type Engine struct {
	resolver  project.Resolver
	router    *Router
	publisher broker.Publisher
	sink      logs.Sink
	cfg       EngineConfig
}

// NewEngine wires the dispatch engine.
func NewEngine(resolver project.Resolver, router *Router, publisher broker.Publisher, sink logs.Sink, cfg EngineConfig) *Engine {
	if sink == nil {
		sink = logs.NopSink{}
	}
	if cfg.Policy.MaxRetries <= 0 {
		cfg.Policy = DefaultRetryPolicy()
	}
	return &Engine{
		resolver:  resolver,
		router:    router,
		publisher: publisher,
		sink:      sink,
		cfg:       cfg,
	}
}

// Process handles one delivery end to end. Exactly one acknowledgment is
// issued on every path; a failure in one project's handler neither blocks
// the other projects nor the acknowledgment.
func (e *Engine) Process(ctx context.Context, d *broker.Delivery) {
	start := time.Now()
	defer func() {
		metrics.ObserveProcessDuration(time.Since(start))
	}()

	if e.cfg.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ProcessTimeout)
		defer cancel()
	}

	hook, err := webhook.Parse(d.Body)
	if err != nil {
		// An unparseable message can never succeed; retrying it would
		// loop forever.
		log.Warn().
			Err(err).
			Str("delivery", d.ID).
			Msg("Dropping malformed webhook message")
		metrics.RecordProcessed(metrics.ResultMalformed)
		e.ack(ctx, d)
		return
	}

	projects, err := e.resolver.ProjectsByGitURL(ctx, hook.GitURL)
	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			e.unresolved(ctx, d, hook)
			return
		}
		e.retryOrGiveUp(ctx, d, hook, err)
		return
	}
	if len(projects) == 0 {
		e.unresolved(ctx, d, hook)
		return
	}

	e.fanOut(ctx, hook, projects)
	e.ack(ctx, d)
}

// fanOut routes the webhook to every project concurrently and waits for
// the whole group. Outcomes are independent: handler failures are already
// contained by the router and only counted here.
func (e *Engine) fanOut(ctx context.Context, hook *webhook.Webhook, projects []project.Project) {
	outcomes := make([]Outcome, len(projects))

	var wg sync.WaitGroup
	for i, proj := range projects {
		wg.Add(1)
		go func(i int, proj project.Project) {
			defer wg.Done()
			outcomes[i] = e.router.Route(ctx, hook, proj)
		}(i, proj)
	}
	wg.Wait()

	for _, outcome := range outcomes {
		switch outcome.Kind {
		case OutcomeHandled:
			metrics.RecordProcessed(metrics.ResultHandled)
		case OutcomeUnhandled:
			metrics.RecordProcessed(metrics.ResultUnhandled)
		case OutcomeHandlerFailed:
			// counted per event by the router's failure metric
		}
	}
}

// unresolved handles "no project owns this repository": a stable condition
// that retrying cannot change, so the delivery is logged and dropped.
func (e *Engine) unresolved(ctx context.Context, d *broker.Delivery, hook *webhook.Webhook) {
	fullEvent := hook.WebhookType + ":" + hook.Event
	e.sink.Emit(ctx, logs.Emission{
		Severity: "warn",
		UUID:     hook.UUID,
		Event:    "unresolvedProject:webhooks",
		Meta:     map[string]any{"event": fullEvent, "giturl": hook.GitURL},
		Message:  fmt.Sprintf("Unresolved project %s while handling %s", hook.GitURL, fullEvent),
	})
	metrics.RecordProcessed(metrics.ResultUnresolved)
	e.ack(ctx, d)
}

// retryOrGiveUp handles a transient resolution failure: re-publish through
// the delayed path with an incremented retry counter, or drop once the
// retry budget is spent. Either way the original delivery is acknowledged.
func (e *Engine) retryOrGiveUp(ctx context.Context, d *broker.Delivery, hook *webhook.Webhook, cause error) {
	decision := e.cfg.Policy.Decide(d.Headers.RetryCount)

	if decision.GiveUp {
		e.sink.Emit(ctx, logs.Emission{
			Severity: "error",
			UUID:     hook.UUID,
			Event:    "webhooks:resolveproject:fail",
			Meta: map[string]any{
				"error":       cause.Error(),
				"msg":         string(d.Body),
				"retry_count": d.Headers.RetryCount,
			},
			Message: fmt.Sprintf("Error loading project for %s, bailing after %d retries: %v",
				hook.GitURL, d.Headers.RetryCount, cause),
		})
		metrics.RecordProcessed(metrics.ResultGaveUp)
		e.ack(ctx, d)
		return
	}

	e.sink.Emit(ctx, logs.Emission{
		Severity: "warn",
		UUID:     hook.UUID,
		Event:    "webhooks:resolveproject:retry",
		Meta: map[string]any{
			"error":       cause.Error(),
			"msg":         string(d.Body),
			"retry_count": decision.Count,
		},
		Message: fmt.Sprintf("Error loading project for %s, will try again in %s: %v",
			hook.GitURL, decision.Delay, cause),
	})

	// The re-published message carries the original bytes and transport
	// metadata unchanged; only the retry counter and the delay differ.
	pub := broker.Publishing{
		Body:        d.Body,
		Headers:     broker.Headers{RetryCount: decision.Count},
		RoutingKey:  d.RoutingKey,
		ContentType: d.ContentType,
		AppID:       d.AppID,
		Timestamp:   d.Timestamp,
	}
	if err := e.publisher.PublishDelayed(ctx, e.cfg.WebhooksQueue, pub, decision.Delay); err != nil {
		log.Error().
			Err(err).
			Str("uuid", hook.UUID).
			Int("retry_count", decision.Count).
			Msg("Scheduling retry failed; delivery is dropped")
	}
	metrics.RecordRetry(strconv.Itoa(decision.Count))
	metrics.RecordProcessed(metrics.ResultRetried)
	e.ack(ctx, d)
}

func (e *Engine) ack(ctx context.Context, d *broker.Delivery) {
	if err := d.Ack(ctx); err != nil {
		log.Error().Err(err).Str("delivery", d.ID).Msg("Acknowledging delivery failed")
	}
}
