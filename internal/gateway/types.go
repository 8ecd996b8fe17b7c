package gateway

import (
	"strings"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/models"
)

// EventType names an SSE event. The part before the first dot is its
// topic, used by the /events?topics= filter.
type EventType string

const (
	EventConnected      EventType = "connected"
	EventGatewayStarted EventType = "gateway.started"
	EventStatusUpdate   EventType = "status.update"
	EventScheduleFired  EventType = "schedule.fired"
)

// TaskEventType is "task.<status>".
func TaskEventType(s models.TaskStatus) EventType {
	return EventType("task." + string(s))
}

// Topic returns the prefix before the first dot.
func (t EventType) Topic() string {
	topic, _, _ := strings.Cut(string(t), ".")
	return topic
}

// SSEEvent is serialised as JSON and pushed over the GET /events SSE stream.
// Seq is assigned by the broadcaster and doubles as the SSE id.
type SSEEvent struct {
	Seq     uint64    `json:"seq"`
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// TaskEvent is the payload of task.* events.
type TaskEvent struct {
	TaskID     string            `json:"task_id"`
	Kind       string            `json:"kind"`
	Status     models.TaskStatus `json:"status"`
	Message    string            `json:"message,omitempty"`
	Error      string            `json:"error,omitempty"`
	ResultID   string            `json:"result_id,omitempty"`
	DurationMS int64             `json:"duration_ms"`
}

func newTaskEvent(t models.Task) TaskEvent {
	end := t.UpdatedAt
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	var d time.Duration
	if !t.CreatedAt.IsZero() && end.After(t.CreatedAt) {
		d = end.Sub(t.CreatedAt)
	}
	return TaskEvent{
		TaskID:     t.ID,
		Kind:       t.Kind,
		Status:     t.Status,
		Message:    t.Message,
		Error:      t.Error,
		ResultID:   t.ResultID,
		DurationMS: d.Milliseconds(),
	}
}

// ScheduleFiredEvent is the payload of schedule.fired.
type ScheduleFiredEvent struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	TaskID string `json:"task_id"`
}

// GatewayStartedEvent is the payload of gateway.started.
type GatewayStartedEvent struct {
	Addr string `json:"addr"`
}

// Status is a live snapshot of the gateway.
type Status struct {
	Tasks         map[models.TaskStatus]int `json:"tasks"`
	Schedules     int                       `json:"schedules"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
}

type indexRequest struct {
	URL          string `json:"url"`
	Provider     string `json:"provider"`
	Branch       string `json:"branch"`
	ForceReindex bool   `json:"force_reindex"`
}

type mineRequest struct {
	RepositoryID string   `json:"repository_id"`
	Types        []string `json:"types"`
	Languages    []string `json:"languages"`
	Max          int      `json:"max"`
}

type planRequest struct {
	OpportunityID string         `json:"opportunity_id"`
	Preferences   map[string]any `json:"preferences"`
}

type implementRequest struct {
	PlanID string `json:"plan_id"`
	DryRun *bool  `json:"dry_run"` // defaults to true
}

type pullRequestRequest struct {
	ImplementationID string `json:"implementation_id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	Draft            bool   `json:"draft"`
	Provider         string `json:"provider"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type reviewRequest struct {
	PullRequestID string   `json:"pull_request_id"`
	Reviewers     []string `json:"reviewers"`
}

type maintainRequest struct {
	URL          string   `json:"url"`
	Provider     string   `json:"provider"`
	Branch       string   `json:"branch"`
	ForceReindex bool     `json:"force_reindex"`
	Types        []string `json:"types"`
	Max          int      `json:"max"`
	DryRun       *bool    `json:"dry_run"` // defaults to true
	CreatePRs    bool     `json:"create_prs"`
	Draft        bool     `json:"draft"`
	Review       bool     `json:"review"`
	Reviewers    []string `json:"reviewers"`
}

type taskAccepted struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}
