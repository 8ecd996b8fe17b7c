package models

import "time"

// TaskStatus is shared by background tasks and implementations.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Change record statuses.
const (
	ChangeSimulated = "simulated"
	ChangeCompleted = "completed"
)

// ChangeRecord describes what one plan step did.
type ChangeRecord struct {
	Step          int      `json:"step"`
	Description   string   `json:"description"`
	Status        string   `json:"status"` // simulated | completed
	FilesModified []string `json:"files_modified"`
	Changes       string   `json:"changes"`
}

// Implementation is the executed result of a Plan.
type Implementation struct {
	ID          string         `json:"id"`
	PlanID      string         `json:"plan_id"`
	Status      TaskStatus     `json:"status"`
	DryRun      bool           `json:"dry_run"`
	Changes     []ChangeRecord `json:"changes"`
	TestsPassed *bool          `json:"tests_passed,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
