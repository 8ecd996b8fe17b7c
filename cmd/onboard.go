package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/CosmoTheDev/repomaint-agent/internal/agents"
	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Interactive setup wizard for repomaint",
	Long: `Walks you through configuring repomaint:
  - Git provider credentials (GitHub, GitLab, Azure DevOps)
  - Storage backend and vector index
  - Review agents (optionally an OpenAI-backed reviewer)
  - Notifications (Slack, signed webhook)

The result is written to ~/.repomaint/config.json with mode 0600.`,
	RunE: runOnboard,
}

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#7C3AED")).
	MarginBottom(1)

var successStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#10B981"))

var warnStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#F59E0B"))

var dimStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#6B7280"))

func runOnboard(cmd *cobra.Command, args []string) error {
	fmt.Println()
	fmt.Println(headerStyle.Render("  repomaint, automated repository maintenance"))

	cfg, err := config.Load(cfgFile)
	if err != nil {
		cfg = &config.Config{}
	}

	// --- Step 1: GitHub ---
	fmt.Println(headerStyle.Render("  Step 1/5 · GitHub Credentials"))

	var githubToken string
	githubHost := "github.com"
	if len(cfg.Git.GitHub) > 0 {
		githubToken = cfg.Git.GitHub[0].Token
		if cfg.Git.GitHub[0].Host != "" {
			githubHost = cfg.Git.GitHub[0].Host
		}
	}
	ghForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("GitHub Personal Access Token").
				Description("Needs repo read access; add write access so repomaint can open pull requests and post reviews.").
				Placeholder("ghp_...").
				EchoMode(huh.EchoModePassword).
				Value(&githubToken),
			huh.NewInput().
				Title("GitHub host").
				Description("Use 'github.com' for public GitHub or your enterprise hostname").
				Value(&githubHost),
		),
	)
	if err := ghForm.Run(); err != nil {
		return err
	}
	if githubToken != "" {
		cfg.Git.GitHub = []config.GitHubConfig{{Token: githubToken, Host: githubHost}}
	}

	// --- Step 2: Other providers ---
	fmt.Println(headerStyle.Render("\n  Step 2/5 · Additional Git Providers (optional)"))

	var addGitLab, addAzure bool
	extraForm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().Title("Add GitLab credentials?").Value(&addGitLab),
			huh.NewConfirm().Title("Add Azure DevOps credentials?").Value(&addAzure),
		),
	)
	if err := extraForm.Run(); err != nil {
		return err
	}

	if addGitLab {
		glToken, glHost := "", "gitlab.com"
		if len(cfg.Git.GitLab) > 0 {
			glToken = cfg.Git.GitLab[0].Token
			glHost = cfg.Git.GitLab[0].Host
		}
		glForm := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("GitLab token").Placeholder("glpat-...").EchoMode(huh.EchoModePassword).Value(&glToken),
			huh.NewInput().Title("GitLab host").Value(&glHost),
		))
		if err := glForm.Run(); err != nil {
			return err
		}
		cfg.Git.GitLab = []config.GitLabConfig{{Token: glToken, Host: glHost}}
	}

	if addAzure {
		var azToken, azOrg string
		if len(cfg.Git.Azure) > 0 {
			azToken = cfg.Git.Azure[0].Token
			azOrg = cfg.Git.Azure[0].Org
		}
		azForm := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Azure DevOps PAT").EchoMode(huh.EchoModePassword).Value(&azToken),
			huh.NewInput().Title("Azure DevOps organisation name").Value(&azOrg),
		))
		if err := azForm.Run(); err != nil {
			return err
		}
		cfg.Git.Azure = []config.AzureConfig{{Token: azToken, Org: azOrg, Host: "dev.azure.com"}}
	}

	// --- Step 3: Storage ---
	fmt.Println(headerStyle.Render("\n  Step 3/5 · Storage and Vector Index"))

	driver := firstNonEmpty(cfg.Database.Driver, "sqlite")
	vectorBackend := firstNonEmpty(cfg.Vector.Backend, "none")
	vectorURL := firstNonEmpty(cfg.Vector.URL, "http://localhost:6333")
	dimension := strconv.Itoa(cfg.Vector.Dimension)
	storeForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Database").
				Options(
					huh.NewOption("SQLite file (default)", "sqlite"),
					huh.NewOption("MySQL", "mysql"),
					huh.NewOption("In memory (nothing persists)", "memory"),
				).
				Value(&driver),
			huh.NewSelect[string]().
				Title("Vector index").
				Options(
					huh.NewOption("None", "none"),
					huh.NewOption("Qdrant", "qdrant"),
				).
				Value(&vectorBackend),
			huh.NewInput().
				Title("Qdrant URL").
				Description("Only used with the Qdrant backend").
				Value(&vectorURL),
			huh.NewInput().
				Title("Embedding dimension").
				Validate(func(s string) error {
					if n, err := strconv.Atoi(s); err != nil || n <= 0 {
						return fmt.Errorf("must be a positive integer")
					}
					return nil
				}).
				Value(&dimension),
		),
	)
	if err := storeForm.Run(); err != nil {
		return err
	}
	cfg.Database.Driver = driver
	if driver == "mysql" {
		dsn := cfg.Database.DSN
		if err := huh.NewInput().Title("MySQL DSN").Placeholder("user:pass@tcp(host:3306)/repomaint").Value(&dsn).Run(); err != nil {
			return err
		}
		cfg.Database.DSN = dsn
	}
	cfg.Vector.Backend = vectorBackend
	if vectorBackend == "qdrant" {
		cfg.Vector.URL = vectorURL
	}
	cfg.Vector.Dimension, _ = strconv.Atoi(dimension)

	// --- Step 4: Review agents ---
	fmt.Println(headerStyle.Render("\n  Step 4/5 · Review Agents"))

	defaults := cfg.Reviewer.DefaultAgents
	if len(defaults) == 0 {
		defaults = append([]string(nil), agents.BuiltinNames[:3]...)
	}
	openAIKey := cfg.Reviewer.OpenAIKey
	model := firstNonEmpty(cfg.Reviewer.Model, "gpt-4o-mini")
	options := make([]huh.Option[string], 0, len(agents.BuiltinNames))
	for _, name := range agents.BuiltinNames {
		options = append(options, huh.NewOption(name, name))
	}
	reviewForm := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Default review panel").
				Options(options...).
				Value(&defaults),
			huh.NewInput().
				Title("OpenAI API Key (optional)").
				Description("Adds the openai-agent reviewer. Leave blank for scripted agents only.").
				Placeholder("sk-...").
				EchoMode(huh.EchoModePassword).
				Value(&openAIKey),
			huh.NewInput().
				Title("OpenAI model").
				Value(&model),
		),
	)
	if err := reviewForm.Run(); err != nil {
		return err
	}
	cfg.Reviewer.DefaultAgents = defaults
	cfg.Reviewer.OpenAIKey = strings.TrimSpace(openAIKey)
	cfg.Reviewer.Model = model

	// --- Step 5: Notifications ---
	fmt.Println(headerStyle.Render("\n  Step 5/5 · Notifications (optional)"))

	slackURL := cfg.Notify.Slack.WebhookURL
	webhookURL := cfg.Notify.Webhook.URL
	webhookSecret := cfg.Notify.Webhook.Secret
	notifyForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Slack incoming webhook URL").Placeholder("https://hooks.slack.com/services/...").Value(&slackURL),
			huh.NewInput().Title("Generic webhook URL").Value(&webhookURL),
			huh.NewInput().Title("Webhook signing secret").EchoMode(huh.EchoModePassword).Value(&webhookSecret),
		),
	)
	if err := notifyForm.Run(); err != nil {
		return err
	}
	cfg.Notify.Slack.WebhookURL = strings.TrimSpace(slackURL)
	cfg.Notify.Webhook.URL = strings.TrimSpace(webhookURL)
	cfg.Notify.Webhook.Secret = webhookSecret

	cfgPath, err := config.ConfigPath(cfgFile)
	if err != nil {
		return err
	}
	if err := config.Save(cfg, cfgPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Println(successStyle.Render("  Configuration saved to " + cfgPath))
	fmt.Println(dimStyle.Render("  Next: run 'repomaint doctor', then 'repomaint maintain <url>'."))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
