package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidehook/tidehook/internal/logs"
	"github.com/tidehook/tidehook/internal/project"
	"github.com/tidehook/tidehook/internal/webhook"
)

type callCounter struct {
	push, branchDeleted, prClosed int
}

func (c *callCounter) handlers() Handlers {
	return Handlers{
		Push: func(context.Context, *webhook.Webhook, project.Project) error {
			c.push++
			return nil
		},
		BranchDeleted: func(context.Context, *webhook.Webhook, project.Project) error {
			c.branchDeleted++
			return nil
		},
		PullRequestClosed: func(context.Context, *webhook.Webhook, project.Project) error {
			c.prClosed++
			return nil
		},
	}
}

func parseHook(t *testing.T, raw string) *webhook.Webhook {
	t.Helper()
	hook, err := webhook.Parse([]byte(raw))
	require.NoError(t, err)
	return hook
}

func TestRouter_Table(t *testing.T) {
	proj := project.Project{ID: 1, Name: "demo"}

	tests := []struct {
		name     string
		raw      string
		wantKind OutcomeKind
		check    func(t *testing.T, c *callCounter)
	}{
		{
			name:     "pull request closed",
			raw:      `{"webhooktype":"github","event":"pull_request","giturl":"g","uuid":"u","body":{"action":"closed","number":42}}`,
			wantKind: OutcomeHandled,
			check: func(t *testing.T, c *callCounter) {
				assert.Equal(t, 1, c.prClosed)
			},
		},
		{
			name:     "pull request opened is unhandled",
			raw:      `{"webhooktype":"github","event":"pull_request","giturl":"g","uuid":"u","body":{"action":"opened"}}`,
			wantKind: OutcomeUnhandled,
			check: func(t *testing.T, c *callCounter) {
				assert.Zero(t, c.prClosed)
			},
		},
		{
			name:     "push deleted routes to branch deleted only",
			raw:      `{"webhooktype":"github","event":"push","giturl":"g","uuid":"u","body":{"ref":"refs/heads/f","deleted":true}}`,
			wantKind: OutcomeHandled,
			check: func(t *testing.T, c *callCounter) {
				assert.Equal(t, 1, c.branchDeleted)
				assert.Zero(t, c.push, "push handler must not run for a deletion")
			},
		},
		{
			name:     "regular push routes to push handler",
			raw:      `{"webhooktype":"github","event":"push","giturl":"g","uuid":"u","body":{"ref":"refs/heads/main","deleted":false}}`,
			wantKind: OutcomeHandled,
			check: func(t *testing.T, c *callCounter) {
				assert.Equal(t, 1, c.push)
				assert.Zero(t, c.branchDeleted)
			},
		},
		{
			name:     "branch delete event is deliberately unhandled",
			raw:      `{"webhooktype":"github","event":"delete","giturl":"g","uuid":"u","body":{"ref_type":"branch"}}`,
			wantKind: OutcomeUnhandled,
			check: func(t *testing.T, c *callCounter) {
				assert.Zero(t, c.branchDeleted)
			},
		},
		{
			name:     "unknown event is unhandled",
			raw:      `{"webhooktype":"gitlab","event":"note","giturl":"g","uuid":"u","body":{}}`,
			wantKind: OutcomeUnhandled,
			check:    func(t *testing.T, c *callCounter) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c callCounter
			sink := logs.NewRecorder()
			router := NewRouter(c.handlers(), sink)

			outcome := router.Route(context.Background(), parseHook(t, tt.raw), proj)

			assert.Equal(t, tt.wantKind, outcome.Kind)
			tt.check(t, &c)

			if tt.wantKind == OutcomeUnhandled {
				emissions := sink.ByEvent("unhandledWebhook")
				require.Len(t, emissions, 1)
				assert.Equal(t, "info", emissions[0].Severity)
				assert.Equal(t, "demo", emissions[0].Project)
			}
		})
	}
}

func TestRouter_UnhandledTagCarriesDiscriminator(t *testing.T) {
	sink := logs.NewRecorder()
	router := NewRouter(Handlers{}, sink)

	hook := parseHook(t, `{"webhooktype":"github","event":"delete","giturl":"g","uuid":"u","body":{"ref_type":"branch"}}`)
	router.Route(context.Background(), hook, project.Project{Name: "demo"})

	emissions := sink.ByEvent("unhandledWebhook")
	require.Len(t, emissions, 1)
	assert.Equal(t, "github:delete:branch", emissions[0].Meta["full_event"])
}

func TestRouter_HandlerErrorContained(t *testing.T) {
	boom := errors.New("boom")
	router := NewRouter(Handlers{
		Push: func(context.Context, *webhook.Webhook, project.Project) error {
			return boom
		},
	}, logs.NopSink{})

	hook := parseHook(t, `{"webhooktype":"github","event":"push","giturl":"g","uuid":"u","body":{"ref":"refs/heads/main"}}`)
	outcome := router.Route(context.Background(), hook, project.Project{Name: "demo"})

	assert.Equal(t, OutcomeHandlerFailed, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, boom)
}

func TestRouter_HandlerPanicContained(t *testing.T) {
	router := NewRouter(Handlers{
		Push: func(context.Context, *webhook.Webhook, project.Project) error {
			panic("boom")
		},
	}, logs.NopSink{})

	hook := parseHook(t, `{"webhooktype":"github","event":"push","giturl":"g","uuid":"u","body":{"ref":"refs/heads/main"}}`)
	outcome := router.Route(context.Background(), hook, project.Project{Name: "demo"})

	assert.Equal(t, OutcomeHandlerFailed, outcome.Kind)
	assert.Contains(t, outcome.Err.Error(), "panicked")
}

func TestRouter_MissingHandlerIsUnhandled(t *testing.T) {
	sink := logs.NewRecorder()
	router := NewRouter(Handlers{}, sink)

	hook := parseHook(t, `{"webhooktype":"github","event":"push","giturl":"g","uuid":"u","body":{"ref":"refs/heads/main"}}`)
	outcome := router.Route(context.Background(), hook, project.Project{Name: "demo"})

	assert.Equal(t, OutcomeUnhandled, outcome.Kind)
}
