package models

import "time"

// Task is the status record of one background unit of work.
type Task struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"` // index | implement | maintain
	Status      TaskStatus `json:"status"`
	Message     string     `json:"message"`
	Error       string     `json:"error,omitempty"`
	ResultID    string     `json:"result_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
