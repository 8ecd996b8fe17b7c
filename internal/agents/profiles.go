package agents

import (
	"fmt"
	"log/slog"
	"os"

	"go.yaml.in/yaml/v3"
)

// profilesFile is the on-disk layout of extra scripted agents:
//
//	agents:
//	  - name: license-agent
//	    score: 9
//	    comments:
//	      - file: LICENSE
//	        comment: Licence header missing
//	        severity: low
type profilesFile struct {
	Agents []*ScriptedAgent `yaml:"agents"`
}

// LoadProfiles reads scripted agents from a YAML file.
func LoadProfiles(path string) ([]*ScriptedAgent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agent profiles: %w", err)
	}
	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing agent profiles %s: %w", path, err)
	}
	out := make([]*ScriptedAgent, 0, len(f.Agents))
	for i, a := range f.Agents {
		if a == nil || a.AgentName == "" {
			slog.Warn("Skipping agent profile without a name", "file", path, "index", i)
			continue
		}
		if a.Score < 0 || a.Score > 10 {
			return nil, fmt.Errorf("agent %s: score %.1f out of range [0,10]", a.AgentName, a.Score)
		}
		out = append(out, a)
	}
	return out, nil
}
