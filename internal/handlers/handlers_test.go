package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidehook/tidehook/internal/broker"
	"github.com/tidehook/tidehook/internal/project"
	"github.com/tidehook/tidehook/internal/webhook"
)

func parseHook(t *testing.T, raw string) *webhook.Webhook {
	t.Helper()
	hook, err := webhook.Parse([]byte(raw))
	require.NoError(t, err)
	return hook
}

func publishedTask(t *testing.T, b *broker.MemoryBroker) Task {
	t.Helper()
	published := b.Published("tasks")
	require.Len(t, published, 1)
	var task Task
	require.NoError(t, json.Unmarshal(published[0].Body, &task))
	return task
}

func TestTasks_Push(t *testing.T) {
	b := broker.NewMemoryBroker()
	tasks := NewTasks(b, "tasks")
	proj := project.Project{ID: 1, Name: "demo"}

	hook := parseHook(t, `{"webhooktype":"github","event":"push","giturl":"g","uuid":"u1","body":{"ref":"refs/heads/main","after":"abc123","deleted":false}}`)
	require.NoError(t, tasks.Push(context.Background(), hook, proj))

	task := publishedTask(t, b)
	assert.Equal(t, TaskDeploy, task.Type)
	assert.Equal(t, "demo", task.Project)
	assert.Equal(t, "main", task.Branch)
	assert.Equal(t, "abc123", task.SHA)
	assert.Equal(t, "u1", task.UUID)

	assert.Equal(t, "demo", b.Published("tasks")[0].RoutingKey)
}

func TestTasks_BranchDeleted(t *testing.T) {
	b := broker.NewMemoryBroker()
	tasks := NewTasks(b, "tasks")
	proj := project.Project{ID: 1, Name: "demo"}

	hook := parseHook(t, `{"webhooktype":"github","event":"push","giturl":"g","uuid":"u2","body":{"ref":"refs/heads/feature-x","deleted":true}}`)
	require.NoError(t, tasks.BranchDeleted(context.Background(), hook, proj))

	task := publishedTask(t, b)
	assert.Equal(t, TaskRemove, task.Type)
	assert.Equal(t, "feature-x", task.Branch)
	assert.Equal(t, "feature-x", task.Environment)
}

func TestTasks_PullRequestClosed(t *testing.T) {
	b := broker.NewMemoryBroker()
	tasks := NewTasks(b, "tasks")
	proj := project.Project{ID: 1, Name: "demo"}

	hook := parseHook(t, `{"webhooktype":"github","event":"pull_request","giturl":"g","uuid":"u3","body":{"action":"closed","number":42}}`)
	require.NoError(t, tasks.PullRequestClosed(context.Background(), hook, proj))

	task := publishedTask(t, b)
	assert.Equal(t, TaskRemove, task.Type)
	assert.Equal(t, 42, task.PullRequest)
	assert.Equal(t, "pr-42", task.Environment)
}

func TestTasks_WrongPayloadType(t *testing.T) {
	b := broker.NewMemoryBroker()
	tasks := NewTasks(b, "tasks")
	proj := project.Project{Name: "demo"}

	prHook := parseHook(t, `{"webhooktype":"github","event":"pull_request","giturl":"g","uuid":"u","body":{"action":"closed"}}`)
	pushHook := parseHook(t, `{"webhooktype":"github","event":"push","giturl":"g","uuid":"u","body":{"ref":"refs/heads/main"}}`)

	assert.Error(t, tasks.Push(context.Background(), prHook, proj))
	assert.Error(t, tasks.BranchDeleted(context.Background(), prHook, proj))
	assert.Error(t, tasks.PullRequestClosed(context.Background(), pushHook, proj))
	assert.Empty(t, b.Published("tasks"))
}
