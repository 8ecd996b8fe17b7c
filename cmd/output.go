package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/apperr"
	"github.com/CosmoTheDev/repomaint-agent/internal/pipeline"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"go.yaml.in/yaml/v3"
)

// render writes v in the --output format. text is used for "text".
func render(v any, text func(w io.Writer)) error {
	switch output {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// round-trip through JSON so field names follow the json tags
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(doc)
	case "text", "":
		text(os.Stdout)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (valid: text, json, yaml)", output)
	}
}

// describeError renders apperr failures with their stable code.
func describeError(err error) string {
	kind := apperr.KindOf(err)
	if kind == "" || kind == apperr.KindInternal {
		return err.Error()
	}
	_, msg := apperr.Public(err)
	return fmt.Sprintf("%s (%s)", msg, kind)
}

// waitTask polls a task until it is terminal, printing progress messages in
// text mode.
func waitTask(ctx context.Context, p *pipeline.Pipeline, id string) (models.Task, error) {
	t := time.NewTicker(200 * time.Millisecond)
	defer t.Stop()
	last := ""
	for {
		task, err := p.GetTaskStatus(id)
		if err != nil {
			return models.Task{}, err
		}
		if output == "text" && task.Message != last && !task.Status.Terminal() {
			fmt.Println(dimStyle.Render("  " + task.Message))
			last = task.Message
		}
		if task.Status.Terminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-t.C:
		}
	}
}

// taskError turns a failed task into an error.
func taskError(task models.Task) error {
	if task.Status == models.StatusFailed {
		return fmt.Errorf("%s task %s failed: %s", task.Kind, task.ID, task.Error)
	}
	return nil
}
