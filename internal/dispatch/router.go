package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tidehook/tidehook/internal/logs"
	"github.com/tidehook/tidehook/internal/metrics"
	"github.com/tidehook/tidehook/internal/project"
	"github.com/tidehook/tidehook/internal/webhook"
)

// Handlers is the set of per-event handlers the router can invoke.
type Handlers struct {
	Push              Handler
	BranchDeleted     Handler
	PullRequestClosed Handler
}

// Router maps (webhooktype, event, payload discriminator) to a handler and
// invokes it with containment: a handler error or panic becomes an
// OutcomeHandlerFailed, never a propagated failure.
type Router struct {
	handlers Handlers
	sink     logs.Sink
}

// NewRouter builds a router over the handler set.
func NewRouter(handlers Handlers, sink logs.Sink) *Router {
	if sink == nil {
		sink = logs.NopSink{}
	}
	return &Router{handlers: handlers, sink: sink}
}

// Route dispatches one webhook to one project.
func (r *Router) Route(ctx context.Context, hook *webhook.Webhook, proj project.Project) Outcome {
	fullEvent := hook.FullEvent()

	switch hook.WebhookType + ":" + hook.Event {
	case "github:pull_request":
		if p, ok := hook.Payload.(webhook.PullRequestPayload); ok && p.Action == "closed" {
			return r.invoke(ctx, r.handlers.PullRequestClosed, hook, proj, fullEvent)
		}
		return r.unhandled(ctx, hook, proj, fullEvent)

	case "github:delete":
		// Branch deletions are handled via the push event (deleted=true);
		// acting on the delete event too would process the same deletion
		// twice.
		return r.unhandled(ctx, hook, proj, fullEvent)

	case "github:push":
		if p, ok := hook.Payload.(webhook.PushPayload); ok && p.Deleted {
			return r.invoke(ctx, r.handlers.BranchDeleted, hook, proj, fullEvent)
		}
		return r.invoke(ctx, r.handlers.Push, hook, proj, fullEvent)

	default:
		return r.unhandled(ctx, hook, proj, fullEvent)
	}
}

func (r *Router) invoke(ctx context.Context, handler Handler, hook *webhook.Webhook, proj project.Project, fullEvent string) Outcome {
	if handler == nil {
		return r.unhandled(ctx, hook, proj, fullEvent)
	}

	log.Info().
		Str("event", fullEvent).
		Str("project", proj.Name).
		Str("uuid", hook.UUID).
		Str("giturl", hook.GitURL).
		Msg("Handling webhook")

	if err := r.safeCall(ctx, handler, hook, proj); err != nil {
		log.Error().
			Err(err).
			Str("event", fullEvent).
			Str("project", proj.Name).
			Str("uuid", hook.UUID).
			Msg("Handler failed")
		metrics.RecordHandlerFailure(fullEvent)
		return Outcome{Kind: OutcomeHandlerFailed, FullEvent: fullEvent, Project: proj.Name, Err: err}
	}

	return Outcome{Kind: OutcomeHandled, FullEvent: fullEvent, Project: proj.Name}
}

func (r *Router) safeCall(ctx context.Context, handler Handler, hook *webhook.Webhook, proj project.Project) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return handler(ctx, hook, proj)
}

func (r *Router) unhandled(ctx context.Context, hook *webhook.Webhook, proj project.Project, fullEvent string) Outcome {
	r.sink.Emit(ctx, logs.Emission{
		Severity: "info",
		Project:  proj.Name,
		UUID:     hook.UUID,
		Event:    "unhandledWebhook",
		Meta:     map[string]any{"full_event": fullEvent},
		Message:  fmt.Sprintf("Unhandled webhook %s for %s", fullEvent, proj.Name),
	})
	return Outcome{Kind: OutcomeUnhandled, FullEvent: fullEvent, Project: proj.Name}
}
