package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"
)

// OpenAIAgentName is the catalog name of the LLM-backed agent.
const OpenAIAgentName = "openai-agent"

const reviewPrompt = `You are a senior engineer reviewing a pull request opened by an automated maintenance agent.
Return ONLY a JSON object, no markdown, with:
- "score": number from 0 to 10
- "comments": array of {"file": string, "line": integer, "comment": string, "severity": "high"|"medium"|"low"|"info"}`

// OpenAIAgent asks a chat model to review the pull request description.
type OpenAIAgent struct {
	name    string
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIAgent creates an agent. An empty baseURL uses the public API.
func NewOpenAIAgent(apiKey, model, baseURL string) *OpenAIAgent {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIAgent{name: OpenAIAgentName, client: &client, model: model, timeout: 120 * time.Second}
}

func (o *OpenAIAgent) Name() string { return o.name }

func (o *OpenAIAgent) Review(ctx context.Context, in Input) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(reviewPrompt),
			openai.UserMessage(describe(in)),
		},
		MaxTokens: openai.Int(1024),
	})
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no openai response")
	}
	return parseVerdict(o.name, resp.Choices[0].Message.Content)
}

func describe(in Input) string {
	var b strings.Builder
	if in.Repository != nil {
		fmt.Fprintf(&b, "Repository: %s (languages: %v)\n", in.Repository.FullName, in.Repository.Languages)
	}
	if pr := in.PullRequest; pr != nil {
		fmt.Fprintf(&b, "Branch: %s -> %s\nTitle: %s\n\n%s\n", pr.BranchName, pr.TargetBranch, pr.Title, pr.Description)
	}
	return b.String()
}

// parseVerdict reads the model's JSON answer, tolerating code fences.
func parseVerdict(agent, content string) (*Result, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if !gjson.Valid(content) {
		return nil, fmt.Errorf("model returned invalid JSON")
	}
	doc := gjson.Parse(content)
	score := doc.Get("score")
	if !score.Exists() {
		return nil, fmt.Errorf("model answer has no score")
	}
	out := &Result{Score: min(max(score.Float(), 0), 10)}
	doc.Get("comments").ForEach(func(_, c gjson.Result) bool {
		out.Comments = append(out.Comments, models.ReviewComment{
			Agent:    agent,
			File:     c.Get("file").String(),
			Line:     int(c.Get("line").Int()),
			Comment:  c.Get("comment").String(),
			Severity: models.MapSeverity(c.Get("severity").String()),
		})
		return true
	})
	return out, nil
}
