package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PushPayload(t *testing.T) {
	raw := []byte(`{
		"webhooktype": "github",
		"event": "push",
		"giturl": "git@example.com:org/repo.git",
		"uuid": "abc-123",
		"body": {"ref": "refs/heads/main", "after": "deadbeef", "deleted": false}
	}`)

	hook, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "github", hook.WebhookType)
	assert.Equal(t, "push", hook.Event)
	assert.Equal(t, "git@example.com:org/repo.git", hook.GitURL)
	assert.Equal(t, "abc-123", hook.UUID)
	assert.Equal(t, raw, hook.Raw)

	p, ok := hook.Payload.(PushPayload)
	require.True(t, ok, "push event must decode to PushPayload")
	assert.Equal(t, "refs/heads/main", p.Ref)
	assert.Equal(t, "deadbeef", p.After)
	assert.False(t, p.Deleted)
}

func TestParse_PullRequestPayload(t *testing.T) {
	hook, err := Parse([]byte(`{"webhooktype":"github","event":"pull_request","giturl":"g","uuid":"u","body":{"action":"closed","number":12}}`))
	require.NoError(t, err)

	p, ok := hook.Payload.(PullRequestPayload)
	require.True(t, ok)
	assert.Equal(t, "closed", p.Action)
	assert.Equal(t, 12, p.Number)
}

func TestParse_DeletePayload(t *testing.T) {
	hook, err := Parse([]byte(`{"webhooktype":"github","event":"delete","giturl":"g","uuid":"u","body":{"ref_type":"branch","ref":"feature"}}`))
	require.NoError(t, err)

	p, ok := hook.Payload.(DeletePayload)
	require.True(t, ok)
	assert.Equal(t, "branch", p.RefType)
	assert.Equal(t, "feature", p.Ref)
}

func TestParse_UnknownEventKeepsRawPayload(t *testing.T) {
	hook, err := Parse([]byte(`{"webhooktype":"gitlab","event":"note","giturl":"g","uuid":"u","body":{"anything":true}}`))
	require.NoError(t, err)

	p, ok := hook.Payload.(RawPayload)
	require.True(t, ok)
	assert.JSONEq(t, `{"anything":true}`, string(p.Body))
}

func TestParse_GeneratesUUIDWhenMissing(t *testing.T) {
	hook, err := Parse([]byte(`{"webhooktype":"github","event":"push","giturl":"g","body":{"ref":"refs/heads/main"}}`))
	require.NoError(t, err)
	assert.NotEmpty(t, hook.UUID)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "not json at all"},
		{"missing webhooktype", `{"event":"push","giturl":"g","body":{}}`},
		{"missing event", `{"webhooktype":"github","giturl":"g","body":{}}`},
		{"push without body", `{"webhooktype":"github","event":"push","giturl":"g"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestFullEvent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			"pull request carries action",
			`{"webhooktype":"github","event":"pull_request","giturl":"g","uuid":"u","body":{"action":"opened"}}`,
			"github:pull_request:opened",
		},
		{
			"delete carries ref type",
			`{"webhooktype":"github","event":"delete","giturl":"g","uuid":"u","body":{"ref_type":"tag"}}`,
			"github:delete:tag",
		},
		{
			"push has no discriminator",
			`{"webhooktype":"github","event":"push","giturl":"g","uuid":"u","body":{"ref":"refs/heads/main"}}`,
			"github:push",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook, err := Parse([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, hook.FullEvent())
		})
	}
}
