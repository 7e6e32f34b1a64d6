// Package project resolves source-repository URLs to the projects that own
// them via the project directory API.
package project

import (
	"context"
	"errors"
)

// ErrNotFound means no project is registered for the git URL. This is a
// stable condition: it cannot resolve itself without configuration changes,
// so callers must not retry it.
var ErrNotFound = errors.New("no project found for git url")

// Project is the internal record owning a source repository. Fields beyond
// identity are opaque to the dispatcher.
type Project struct {
	ID   int    `json:"id"`
	Name string `json:"name"`

	ProductionEnvironment string `json:"production_environment,omitempty"`
	Branches              string `json:"branches,omitempty"`
	PullRequests          string `json:"pullrequests,omitempty"`
}

// Resolver looks up the projects owning a git URL. Any error other than
// ErrNotFound is treated as transient by callers.
type Resolver interface {
	ProjectsByGitURL(ctx context.Context, gitURL string) ([]Project, error)
}
