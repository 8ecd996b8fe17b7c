package models

import (
	"fmt"
	"time"
)

// ReviewStatus is the aggregated verdict of a review.
type ReviewStatus string

const (
	ReviewApproved         ReviewStatus = "approved"
	ReviewChangesRequested ReviewStatus = "changes_requested"
	ReviewCommented        ReviewStatus = "commented"
)

// SeverityLevel ranks a review comment.
type SeverityLevel string

const (
	SeverityHigh   SeverityLevel = "high"
	SeverityMedium SeverityLevel = "medium"
	SeverityLow    SeverityLevel = "low"
	SeverityInfo   SeverityLevel = "info"
)

// Weight returns a numeric weight for sorting (higher = more severe).
func (s SeverityLevel) Weight() int {
	switch s {
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// MapSeverity normalises agent-specific severity strings.
func MapSeverity(raw string) SeverityLevel {
	switch raw {
	case "CRITICAL", "critical", "HIGH", "high", "ERROR", "error":
		return SeverityHigh
	case "MEDIUM", "medium", "MODERATE", "moderate", "WARNING", "warning":
		return SeverityMedium
	case "LOW", "low":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// ReviewComment is a single agent finding.
type ReviewComment struct {
	Agent    string        `json:"agent"`
	File     string        `json:"file"`
	Line     int           `json:"line"`
	Comment  string        `json:"comment"`
	Severity SeverityLevel `json:"severity"`
}

// Review is one multi-agent review invocation against a pull request.
type Review struct {
	ID            string          `json:"id"`
	PullRequestID string          `json:"pull_request_id"`
	Reviewer      string          `json:"reviewer"`
	Status        ReviewStatus    `json:"status"`
	Comments      []ReviewComment `json:"comments"`
	Score         float64         `json:"score"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Validate checks the score range.
func (r *Review) Validate() error {
	if !(r.Score >= 0 && r.Score <= 10) {
		return fmt.Errorf("score %.2f out of range [0,10]", r.Score)
	}
	return nil
}
