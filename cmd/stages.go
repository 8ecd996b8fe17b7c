package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/CosmoTheDev/repomaint-agent/internal/miner"
	"github.com/CosmoTheDev/repomaint-agent/internal/planner"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/spf13/cobra"
)

var (
	mineTypes     []string
	mineLanguages []string
	mineMax       int
	mineList      bool

	planRequireTests bool
	planRisk         string

	implementDryRun bool
)

var mineCmd = &cobra.Command{
	Use:   "mine <repository-id>",
	Short: "Find ranked maintenance opportunities in an indexed repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runMine,
}

var planCmd = &cobra.Command{
	Use:   "plan <opportunity-id>",
	Short: "Generate an ordered implementation plan for an opportunity",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

var implementCmd = &cobra.Command{
	Use:   "implement <plan-id>",
	Short: "Execute a plan step by step",
	Long: `Executes each plan step in order and stops at the first failure. Without
--dry-run=false no change is applied and tests are not run.`,
	Args: cobra.ExactArgs(1),
	RunE: runImplement,
}

func init() {
	mineCmd.Flags().StringSliceVar(&mineTypes, "type", nil, "opportunity types to mine (default: all)")
	mineCmd.Flags().StringSliceVar(&mineLanguages, "language", nil, "override the detected languages")
	mineCmd.Flags().IntVar(&mineMax, "max", 10, "maximum number of opportunities")
	mineCmd.Flags().BoolVar(&mineList, "list", false, "list stored opportunities instead of mining")

	planCmd.Flags().BoolVar(&planRequireTests, "require-tests", false, "make sure the plan contains a testing step")
	planCmd.Flags().StringVar(&planRisk, "risk-tolerance", "", "low raises the estimated effort")

	implementCmd.Flags().BoolVar(&implementDryRun, "dry-run", true, "simulate the steps without changing anything")
}

func runMine(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	types := make([]models.OpportunityType, 0, len(mineTypes))
	for _, raw := range mineTypes {
		t, err := models.ParseOpportunityType(raw)
		if err != nil {
			return err
		}
		types = append(types, t)
	}
	langs := make([]models.Language, 0, len(mineLanguages))
	for _, l := range mineLanguages {
		langs = append(langs, models.Language(strings.ToLower(l)))
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var opps []models.Opportunity
	if mineList {
		opps, err = a.pipeline.GetOpportunities(ctx, args[0])
	} else {
		opps, err = a.pipeline.MineOpportunities(ctx, miner.Request{
			RepositoryID: args[0],
			Types:        types,
			Languages:    langs,
			Max:          mineMax,
		})
	}
	if err != nil {
		return err
	}
	return render(opps, func(w io.Writer) {
		if len(opps) == 0 {
			fmt.Fprintln(w, "No opportunities found.")
			return
		}
		for _, o := range opps {
			fmt.Fprintf(w, "%s  P%d  %.2f  %-24s %s\n", o.ID, o.Priority, o.Confidence, o.Type, o.Title)
		}
	})
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	prefs := planner.Preferences{}
	if planRequireTests {
		prefs["require_tests"] = true
	}
	if planRisk != "" {
		prefs["risk_tolerance"] = planRisk
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := a.pipeline.GeneratePlan(ctx, args[0], prefs)
	if err != nil {
		return err
	}
	return render(plan, func(w io.Writer) { printPlan(w, plan) })
}

func printPlan(w io.Writer, plan *models.Plan) {
	fmt.Fprintln(w, headerStyle.Render(plan.Title))
	fmt.Fprintf(w, "Plan %s (effort: %s)\n", plan.ID, plan.EstimatedEffort)
	for _, s := range plan.Steps {
		fmt.Fprintf(w, "  %d. %s", s.Step, s.Description)
		if s.EstimatedTime != "" {
			fmt.Fprintf(w, " (%s)", s.EstimatedTime)
		}
		fmt.Fprintln(w)
	}
	if len(plan.Risks) > 0 {
		fmt.Fprintln(w, warnStyle.Render("Risks: "+strings.Join(plan.Risks, "; ")))
	}
}

func runImplement(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.pipeline.StartImplementation(ctx, args[0], implementDryRun)
	if err != nil {
		return err
	}
	task, err := waitTask(ctx, a.pipeline, id)
	if err != nil {
		return err
	}
	if task.ResultID == "" {
		return taskError(task)
	}
	impl, err := a.store.GetImplementation(ctx, task.ResultID)
	if err != nil {
		return err
	}
	if err := render(impl, func(w io.Writer) { printImplementation(w, impl) }); err != nil {
		return err
	}
	return taskError(task)
}

func printImplementation(w io.Writer, impl *models.Implementation) {
	status := string(impl.Status)
	if impl.Status == models.StatusCompleted {
		status = successStyle.Render(status)
	} else {
		status = warnStyle.Render(status)
	}
	fmt.Fprintf(w, "Implementation %s: %s (dry run: %t)\n", impl.ID, status, impl.DryRun)
	for _, c := range impl.Changes {
		fmt.Fprintf(w, "  %d. [%s] %s\n", c.Step, c.Status, c.Changes)
	}
	if impl.TestsPassed != nil {
		fmt.Fprintf(w, "  Tests passed: %t\n", *impl.TestsPassed)
	}
	if impl.Error != "" {
		fmt.Fprintln(w, warnStyle.Render("  Error: "+impl.Error))
	}
}
