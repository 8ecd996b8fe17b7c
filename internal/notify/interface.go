// Package notify delivers pipeline events to chat and webhook endpoints.
package notify

import "context"

// Event types.
const (
	EventTaskFailed        = "task_failed"
	EventPROpened          = "pr_opened"
	EventReviewPosted      = "review_posted"
	EventRepositoryIndexed = "repository_indexed"
	EventMaintainCompleted = "maintain_completed"
)

// Event is one pipeline occurrence worth telling someone about.
type Event struct {
	Type       string
	Title      string
	Body       string
	URL        string // pull request or gateway link
	Severity   string // high | medium | low | ""
	Repository string // owner/name
	Metadata   map[string]any
}

// Channel is implemented by each notification provider.
type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, evt Event) error
}

// Notifier is what pipeline stages depend on.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(context.Context, Event) {}
