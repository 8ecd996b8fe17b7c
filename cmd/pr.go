package cmd

import (
	"fmt"
	"io"

	"github.com/CosmoTheDev/repomaint-agent/internal/prmanager"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/spf13/cobra"
)

var (
	prTitle       string
	prDescription string
	prDraft       bool
	prProvider    string
)

var prCmd = &cobra.Command{
	Use:   "pr",
	Short: "Open pull requests and change their status",
}

var prCreateCmd = &cobra.Command{
	Use:   "create <implementation-id>",
	Short: "Open a pull request for a completed implementation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		provider, err := parseProviderFlag(prProvider)
		if err != nil {
			return err
		}
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		pr, err := a.pipeline.CreatePullRequest(ctx, prmanager.Request{
			ImplementationID: args[0],
			Title:            prTitle,
			Description:      prDescription,
			Draft:            prDraft,
			Provider:         provider,
		})
		if err != nil {
			return err
		}
		return render(pr, func(w io.Writer) { printPullRequest(w, pr) })
	},
}

var prStatusCmd = &cobra.Command{
	Use:   "status <pull-request-id> <open|closed|merged|draft>",
	Short: "Transition a pull request on its provider",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		status, err := models.ParsePRStatus(args[1])
		if err != nil {
			return err
		}
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		pr, err := a.pipeline.UpdatePullRequestStatus(ctx, args[0], status)
		if err != nil {
			return err
		}
		return render(pr, func(w io.Writer) { printPullRequest(w, pr) })
	},
}

func init() {
	prCreateCmd.Flags().StringVar(&prTitle, "title", "", "pull request title (default: the plan title)")
	prCreateCmd.Flags().StringVar(&prDescription, "description", "", "pull request body (default: generated from the plan)")
	prCreateCmd.Flags().BoolVar(&prDraft, "draft", false, "open as a draft")
	prCreateCmd.Flags().StringVar(&prProvider, "provider", "", "provider override")
	prCmd.AddCommand(prCreateCmd, prStatusCmd)
}

func printPullRequest(w io.Writer, pr *models.PullRequest) {
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("#%d %s", pr.Number, pr.Title)))
	fmt.Fprintf(w, "  ID     : %s\n", pr.ID)
	fmt.Fprintf(w, "  Branch : %s -> %s\n", pr.BranchName, pr.TargetBranch)
	fmt.Fprintf(w, "  Status : %s\n", pr.Status)
	if pr.URL != "" {
		fmt.Fprintf(w, "  URL    : %s\n", pr.URL)
	}
}
