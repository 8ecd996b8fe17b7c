package models

import "time"

// Effort is a coarse plan size estimate.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Valid reports whether e is one of the known effort levels.
func (e Effort) Valid() bool {
	return e == EffortLow || e == EffortMedium || e == EffortHigh
}

// PlanStep is one ordered unit of work inside a Plan.
type PlanStep struct {
	Step          int      `json:"step"`
	Description   string   `json:"description"`
	EstimatedTime string   `json:"estimated_time,omitempty"`
	Files         []string `json:"files,omitempty"`
}

// Plan is the step list generated from exactly one Opportunity.
type Plan struct {
	ID              string     `json:"id"`
	OpportunityID   string     `json:"opportunity_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Steps           []PlanStep `json:"steps"`
	EstimatedEffort Effort     `json:"estimated_effort"`
	Risks           []string   `json:"risks"`
	CreatedAt       time.Time  `json:"created_at"`
}
