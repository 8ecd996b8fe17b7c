package cmd

import (
	"fmt"
	"io"

	"github.com/CosmoTheDev/repomaint-agent/internal/pipeline"
	"github.com/CosmoTheDev/repomaint-agent/internal/planner"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/spf13/cobra"
)

var (
	maintainProvider  string
	maintainBranch    string
	maintainForce     bool
	maintainTypes     []string
	maintainMax       int
	maintainDryRun    bool
	maintainCreatePRs bool
	maintainDraft     bool
	maintainReview    bool
	maintainAgents    []string
	maintainRisk      string
)

var maintainCmd = &cobra.Command{
	Use:   "maintain <url|path>",
	Short: "Run the whole pipeline against one repository",
	Long: `Indexes the repository, mines the top opportunities, then for each one
generates a plan and implements it. With --create-prs a pull request is opened
for every completed implementation, and --review runs the agent panel on it.

A failure on one opportunity is reported and the run continues with the next.`,
	Args: cobra.ExactArgs(1),
	RunE: runMaintain,
}

func init() {
	f := maintainCmd.Flags()
	f.StringVar(&maintainProvider, "provider", "", "provider type (detected from the URL when empty)")
	f.StringVar(&maintainBranch, "branch", "", "branch to clone")
	f.BoolVar(&maintainForce, "force", false, "reindex even when the repository is up to date")
	f.StringSliceVar(&maintainTypes, "type", nil, "opportunity types to mine (default: all)")
	f.IntVar(&maintainMax, "max", 5, "maximum number of opportunities to process")
	f.BoolVar(&maintainDryRun, "dry-run", true, "simulate implementations")
	f.BoolVar(&maintainCreatePRs, "create-prs", false, "open a pull request per implementation")
	f.BoolVar(&maintainDraft, "draft", false, "open pull requests as drafts (always on for dry runs)")
	f.BoolVar(&maintainReview, "review", false, "review every opened pull request")
	f.StringSliceVar(&maintainAgents, "agents", nil, "review agents to run")
	f.StringVar(&maintainRisk, "risk-tolerance", "", "planner risk tolerance")
}

func runMaintain(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	provider, err := parseProviderFlag(maintainProvider)
	if err != nil {
		return err
	}
	types := make([]models.OpportunityType, 0, len(maintainTypes))
	for _, raw := range maintainTypes {
		t, err := models.ParseOpportunityType(raw)
		if err != nil {
			return err
		}
		types = append(types, t)
	}
	var prefs planner.Preferences
	if maintainRisk != "" {
		prefs = planner.Preferences{"risk_tolerance": maintainRisk}
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.pipeline.MaintainRepository(ctx, args[0], pipeline.MaintainOptions{
		Provider:     provider,
		Branch:       maintainBranch,
		ForceReindex: maintainForce,
		Types:        types,
		Max:          maintainMax,
		Preferences:  prefs,
		DryRun:       maintainDryRun,
		CreatePRs:    maintainCreatePRs,
		Draft:        maintainDraft,
		Review:       maintainReview,
		Reviewers:    maintainAgents,
	})
	if err != nil {
		return err
	}
	return render(report, func(w io.Writer) { printMaintainReport(w, report) })
}

func printMaintainReport(w io.Writer, r *pipeline.MaintainReport) {
	fmt.Fprintln(w, headerStyle.Render("Maintenance of "+r.Repository.FullName))
	if r.SkippedIndex {
		fmt.Fprintln(w, dimStyle.Render("Repository up to date, index reused."))
	}
	if len(r.Opportunities) == 0 {
		fmt.Fprintln(w, "No opportunities found.")
		return
	}
	for i, o := range r.Opportunities {
		fmt.Fprintf(w, "%d. [P%d] %s\n", i+1, o.Opportunity.Priority, o.Opportunity.Title)
		if o.Plan != nil {
			fmt.Fprintf(w, "   plan           %s (%d steps, %s effort)\n", o.Plan.ID, len(o.Plan.Steps), o.Plan.EstimatedEffort)
		}
		if o.Implementation != nil {
			fmt.Fprintf(w, "   implementation %s %s\n", o.Implementation.ID, o.Implementation.Status)
		}
		if o.PullRequest != nil {
			fmt.Fprintf(w, "   pull request   %s %s\n", o.PullRequest.BranchName, o.PullRequest.URL)
		}
		if o.Review != nil {
			fmt.Fprintf(w, "   review         %s %.2f/10\n", o.Review.Status, o.Review.Score)
		}
		if o.Error != "" {
			fmt.Fprintln(w, warnStyle.Render("   error          "+o.Error))
		}
	}
}
