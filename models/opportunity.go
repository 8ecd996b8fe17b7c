package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OpportunityType is the tag dispatched on by the miner and planner strategy tables.
type OpportunityType string

const (
	OpportunityDependencyUpdate      OpportunityType = "dependency_update"
	OpportunitySecurityVulnerability OpportunityType = "security_vulnerability"
	OpportunityAPIMigration          OpportunityType = "api_migration"
	OpportunityCodeOptimization      OpportunityType = "code_optimization"
	OpportunityTestCoverage          OpportunityType = "test_coverage"
	OpportunityDocumentation         OpportunityType = "documentation"
)

// AllOpportunityTypes lists every opportunity type in declaration order.
var AllOpportunityTypes = []OpportunityType{
	OpportunityDependencyUpdate,
	OpportunitySecurityVulnerability,
	OpportunityAPIMigration,
	OpportunityCodeOptimization,
	OpportunityTestCoverage,
	OpportunityDocumentation,
}

// ParseOpportunityType validates a raw opportunity type name.
func ParseOpportunityType(raw string) (OpportunityType, error) {
	for _, t := range AllOpportunityTypes {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown opportunity type %q", raw)
}

const (
	MinPriority = 1
	MaxPriority = 10
)

// Opportunity is a detected, scored candidate for an automatable change.
// Priority 1 is the most urgent.
type Opportunity struct {
	ID            string          `json:"id"`
	RepositoryID  string          `json:"repository_id"`
	Type          OpportunityType `json:"type"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Priority      int             `json:"priority"`
	Confidence    float64         `json:"confidence"`
	FilesAffected []string        `json:"files_affected"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OpportunityInput carries the caller supplied fields of a new Opportunity.
type OpportunityInput struct {
	RepositoryID  string
	Type          OpportunityType
	Title         string
	Description   string
	Priority      int
	Confidence    float64
	FilesAffected []string
	Metadata      map[string]any
}

// NewOpportunity validates in and returns an Opportunity with a fresh id.
func NewOpportunity(in OpportunityInput) (*Opportunity, error) {
	o := &Opportunity{
		ID:            uuid.NewString(),
		RepositoryID:  in.RepositoryID,
		Type:          in.Type,
		Title:         in.Title,
		Description:   in.Description,
		Priority:      in.Priority,
		Confidence:    in.Confidence,
		FilesAffected: in.FilesAffected,
		Metadata:      in.Metadata,
		CreatedAt:     time.Now().UTC(),
	}
	if o.FilesAffected == nil {
		o.FilesAffected = []string{}
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate enforces the priority and confidence ranges.
func (o *Opportunity) Validate() error {
	if o.Priority < MinPriority || o.Priority > MaxPriority {
		return fmt.Errorf("priority %d out of range [%d,%d]", o.Priority, MinPriority, MaxPriority)
	}
	if !(o.Confidence >= 0 && o.Confidence <= 1) {
		return fmt.Errorf("confidence %.3f out of range [0,1]", o.Confidence)
	}
	if _, err := ParseOpportunityType(string(o.Type)); err != nil {
		return err
	}
	if o.RepositoryID == "" {
		return fmt.Errorf("repository id is required")
	}
	return nil
}
