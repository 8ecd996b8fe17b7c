// Package agents provides the review agents the reviewer fans out to.
package agents

import (
	"context"
	"sort"
	"sync"

	"github.com/CosmoTheDev/repomaint-agent/models"
)

// Input is what an agent sees of a pull request.
type Input struct {
	PullRequest *models.PullRequest
	Repository  *models.Repository // nil when the repository record is gone
}

// Result is one agent's verdict.
type Result struct {
	Comments []models.ReviewComment
	Score    float64 // 0-10
}

// Agent reviews a pull request from one angle.
type Agent interface {
	Name() string
	Review(ctx context.Context, in Input) (*Result, error)
}

// Catalog resolves agent names. Unknown names get a default agent that
// finds nothing wrong.
type Catalog struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewCatalog returns a catalog holding the built-in agents.
func NewCatalog() *Catalog {
	c := &Catalog{agents: map[string]Agent{}}
	for _, a := range Builtins() {
		c.Register(a)
	}
	return c
}

// Register adds or replaces an agent.
func (c *Catalog) Register(a Agent) {
	c.mu.Lock()
	c.agents[a.Name()] = a
	c.mu.Unlock()
}

// Get returns the named agent or the default one.
func (c *Catalog) Get(name string) Agent {
	c.mu.RLock()
	a, ok := c.agents[name]
	c.mu.RUnlock()
	if ok {
		return a
	}
	return defaultAgent(name)
}

// Has reports whether name is registered.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.agents[name]
	return ok
}

// Names lists registered agents alphabetically.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.agents))
	for n := range c.agents {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
