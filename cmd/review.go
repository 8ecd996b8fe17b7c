package cmd

import (
	"fmt"
	"io"

	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/spf13/cobra"
)

var reviewAgents []string

var reviewCmd = &cobra.Command{
	Use:   "review <pull-request-id>",
	Short: "Review a pull request with a panel of agents and post the verdict",
	Long: `Runs each named review agent, averages their scores, derives a verdict and
posts it to the provider. Any high severity comment requests changes.

Built-in agents: security-agent, performance-agent, style-agent,
testing-agent, documentation-agent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.pipeline.ReviewPullRequest(ctx, args[0], reviewAgents)
		if err != nil {
			return err
		}
		return render(map[string]any{
			"review":     out.Review,
			"posted":     out.Posted,
			"post_error": out.PostError,
		}, func(w io.Writer) {
			printReview(w, out.Review)
			if out.Posted {
				fmt.Fprintln(w, successStyle.Render("Posted to the provider."))
			} else if out.PostError != "" {
				fmt.Fprintln(w, warnStyle.Render("Not posted: "+out.PostError))
			}
		})
	},
}

func init() {
	reviewCmd.Flags().StringSliceVar(&reviewAgents, "agents", nil, "review agents to run (default: reviewer.default_agents)")
}

func printReview(w io.Writer, r *models.Review) {
	fmt.Fprintf(w, "Review %s: %s (%.2f/10)\n", r.ID, r.Status, r.Score)
	for _, c := range r.Comments {
		loc := c.File
		if c.Line > 0 {
			loc = fmt.Sprintf("%s:%d", c.File, c.Line)
		}
		fmt.Fprintf(w, "  [%s] %-20s %s  %s\n", c.Severity, c.Agent, loc, c.Comment)
	}
}
