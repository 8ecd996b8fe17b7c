package agents

import (
	"context"

	"github.com/CosmoTheDev/repomaint-agent/models"
)

// Built-in agent names, in default order.
const (
	SecurityAgent      = "security-agent"
	PerformanceAgent   = "performance-agent"
	StyleAgent         = "style-agent"
	TestingAgent       = "testing-agent"
	DocumentationAgent = "documentation-agent"
)

// BuiltinNames lists the built-in agents. The first three are the default
// review panel.
var BuiltinNames = []string{SecurityAgent, PerformanceAgent, StyleAgent, TestingAgent, DocumentationAgent}

// ScriptedComment is a canned finding.
type ScriptedComment struct {
	File     string `yaml:"file"`
	Line     int    `yaml:"line"`
	Comment  string `yaml:"comment"`
	Severity string `yaml:"severity"`
}

// ScriptedAgent returns the same comments and score for every pull request.
type ScriptedAgent struct {
	AgentName string            `yaml:"name"`
	Score     float64           `yaml:"score"`
	Comments  []ScriptedComment `yaml:"comments"`
}

func (s *ScriptedAgent) Name() string { return s.AgentName }

func (s *ScriptedAgent) Review(ctx context.Context, _ Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := &Result{Score: s.Score, Comments: make([]models.ReviewComment, 0, len(s.Comments))}
	for _, c := range s.Comments {
		out.Comments = append(out.Comments, models.ReviewComment{
			Agent:    s.AgentName,
			File:     c.File,
			Line:     c.Line,
			Comment:  c.Comment,
			Severity: models.MapSeverity(c.Severity),
		})
	}
	return out, nil
}

// Builtins returns fresh copies of the five built-in agents.
func Builtins() []Agent {
	return []Agent{
		&ScriptedAgent{AgentName: SecurityAgent, Score: 7.5, Comments: []ScriptedComment{
			{File: "src/auth.py", Line: 42, Comment: "Consider using parameterized queries to prevent SQL injection", Severity: "high"},
		}},
		&ScriptedAgent{AgentName: PerformanceAgent, Score: 8.0, Comments: []ScriptedComment{
			{File: "src/api.py", Line: 123, Comment: "This database query could be optimized with an index", Severity: "medium"},
		}},
		&ScriptedAgent{AgentName: StyleAgent, Score: 9.0, Comments: []ScriptedComment{
			{File: "src/utils.py", Line: 15, Comment: "Function name should follow snake_case convention", Severity: "low"},
		}},
		&ScriptedAgent{AgentName: TestingAgent, Score: 6.5, Comments: []ScriptedComment{
			{File: "tests/", Line: 0, Comment: "New functionality lacks comprehensive test coverage", Severity: "medium"},
		}},
		&ScriptedAgent{AgentName: DocumentationAgent, Score: 8.5, Comments: []ScriptedComment{
			{File: "src/new_feature.py", Line: 1, Comment: "Public functions should have docstrings", Severity: "low"},
		}},
	}
}

func defaultAgent(name string) Agent {
	return &ScriptedAgent{AgentName: name, Score: 8.0, Comments: []ScriptedComment{
		{File: "general", Line: 0, Comment: "Code looks good overall", Severity: "info"},
	}}
}
