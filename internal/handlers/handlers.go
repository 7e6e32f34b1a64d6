// Package handlers implements the per-event webhook handlers. Each handler
// turns one (webhook, project) pair into a task on the tasks queue: pushes
// become deploy tasks, branch deletions and closed pull requests become
// environment removal tasks.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tidehook/tidehook/internal/broker"
	"github.com/tidehook/tidehook/internal/project"
	"github.com/tidehook/tidehook/internal/webhook"
)

// Task types published to the tasks queue.
const (
	TaskDeploy = "deploy"
	TaskRemove = "remove"
)

// Task is the message the deploy workers consume.
type Task struct {
	Type        string `json:"type"`
	Project     string `json:"project"`
	GitURL      string `json:"giturl"`
	UUID        string `json:"uuid"`
	Branch      string `json:"branch,omitempty"`
	SHA         string `json:"sha,omitempty"`
	PullRequest int    `json:"pullrequest,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// Tasks publishes handler output to the tasks queue.
type Tasks struct {
	publisher broker.Publisher
	queue     string
}

// NewTasks builds the handler set's task publisher.
func NewTasks(publisher broker.Publisher, queue string) *Tasks {
	return &Tasks{publisher: publisher, queue: queue}
}

// Push handles a regular push: schedule a deploy of the pushed branch.
func (t *Tasks) Push(ctx context.Context, hook *webhook.Webhook, proj project.Project) error {
	p, ok := hook.Payload.(webhook.PushPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for push event", hook.Payload)
	}

	branch := branchName(p.Ref)
	return t.publish(ctx, Task{
		Type:    TaskDeploy,
		Project: proj.Name,
		GitURL:  hook.GitURL,
		UUID:    hook.UUID,
		Branch:  branch,
		SHA:     p.After,
	})
}

// BranchDeleted handles a push with deleted=true: remove the branch's
// environment.
func (t *Tasks) BranchDeleted(ctx context.Context, hook *webhook.Webhook, proj project.Project) error {
	p, ok := hook.Payload.(webhook.PushPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for branch deletion", hook.Payload)
	}

	branch := branchName(p.Ref)
	return t.publish(ctx, Task{
		Type:        TaskRemove,
		Project:     proj.Name,
		GitURL:      hook.GitURL,
		UUID:        hook.UUID,
		Branch:      branch,
		Environment: branch,
	})
}

// PullRequestClosed handles a closed pull request: remove its preview
// environment.
func (t *Tasks) PullRequestClosed(ctx context.Context, hook *webhook.Webhook, proj project.Project) error {
	p, ok := hook.Payload.(webhook.PullRequestPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for pull_request event", hook.Payload)
	}

	return t.publish(ctx, Task{
		Type:        TaskRemove,
		Project:     proj.Name,
		GitURL:      hook.GitURL,
		UUID:        hook.UUID,
		PullRequest: p.Number,
		Environment: fmt.Sprintf("pr-%d", p.Number),
	})
}

func (t *Tasks) publish(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding %s task: %w", task.Type, err)
	}

	pub := broker.Publishing{
		Body:        body,
		RoutingKey:  task.Project,
		ContentType: "application/json",
		AppID:       "tidehook",
		Timestamp:   time.Now(),
	}
	if err := t.publisher.Publish(ctx, t.queue, pub); err != nil {
		return fmt.Errorf("publishing %s task for %s: %w", task.Type, task.Project, err)
	}

	log.Info().
		Str("type", task.Type).
		Str("project", task.Project).
		Str("uuid", task.UUID).
		Str("environment", task.Environment).
		Msg("Task published")
	return nil
}

func branchName(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
