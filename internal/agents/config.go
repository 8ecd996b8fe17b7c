package agents

import (
	"github.com/CosmoTheDev/repomaint-agent/internal/config"
)

// FromConfig builds the catalog: built-ins, then profile agents, then the
// OpenAI agent when a key is configured.
func FromConfig(cfg config.ReviewerConfig) (*Catalog, error) {
	c := NewCatalog()
	if cfg.ProfilesFile != "" {
		extra, err := LoadProfiles(cfg.ProfilesFile)
		if err != nil {
			return nil, err
		}
		for _, a := range extra {
			c.Register(a)
		}
	}
	if cfg.OpenAIKey != "" {
		c.Register(NewOpenAIAgent(cfg.OpenAIKey, cfg.Model, cfg.BaseURL))
	}
	return c, nil
}
