package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/CosmoTheDev/repomaint-agent/internal/config"
	"github.com/CosmoTheDev/repomaint-agent/internal/database"
	"github.com/CosmoTheDev/repomaint-agent/internal/notify"
	"github.com/CosmoTheDev/repomaint-agent/internal/osv"
	"github.com/CosmoTheDev/repomaint-agent/internal/repository"
	"github.com/CosmoTheDev/repomaint-agent/internal/vectorindex"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify credentials, database and vector index",
	Long: `Checks that the database can be reached, each configured git provider
can be constructed, the vector index answers and notification channels are
set up.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	allOK := true

	fmt.Println(headerStyle.Render("=== repomaint doctor ==="))

	fmt.Print("Database ................. ")
	if cfg.Database.Driver == "memory" {
		fmt.Println("OK (in-memory, nothing persists)")
	} else if db, err := database.New(cfg.Database); err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		if err := db.Ping(ctx); err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else {
			fmt.Printf("OK (%s)\n", db.Driver())
		}
		_ = db.Close()
	}

	fmt.Println("Git providers:")
	reg := repository.NewRegistry(cfg)
	configured := map[models.ProviderType]bool{
		models.ProviderGitHub:      len(cfg.Git.GitHub) > 0 && cfg.Git.GitHub[0].Token != "",
		models.ProviderGitLab:      len(cfg.Git.GitLab) > 0 && cfg.Git.GitLab[0].Token != "",
		models.ProviderAzureDevOps: len(cfg.Git.Azure) > 0 && cfg.Git.Azure[0].Token != "",
	}
	ready := false
	for _, t := range []models.ProviderType{models.ProviderGitHub, models.ProviderGitLab, models.ProviderAzureDevOps} {
		fmt.Printf("  %-14s ... ", t)
		if !configured[t] {
			fmt.Println(dimStyle.Render("not configured"))
			continue
		}
		if _, err := reg.Get(t); err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
			continue
		}
		ready = true
		fmt.Println("OK")
	}
	if !ready {
		fmt.Println(warnStyle.Render("  No provider credentials: only local paths and public clones will work."))
		allOK = false
	}

	fmt.Print("Vector index ............. ")
	if idx, err := vectorindex.New(cfg.Vector); err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else if err := idx.Ping(ctx); err != nil {
		fmt.Printf("FAIL (%s: %s)\n", idx.Name(), err)
		allOK = false
	} else {
		fmt.Printf("OK (%s)\n", idx.Name())
	}

	fmt.Print("Review agents ............ ")
	if cfg.Reviewer.OpenAIKey != "" {
		fmt.Printf("OK (scripted + openai %s)\n", cfg.Reviewer.Model)
	} else {
		fmt.Println("OK (scripted only)")
	}

	fmt.Print("Dependency advisories .... ")
	if !cfg.Miner.Advisories {
		fmt.Println(dimStyle.Render("disabled"))
	} else {
		sample := []osv.PackageQuery{{Package: osv.PackageID{Name: "github.com/google/uuid", Ecosystem: osv.EcosystemGo}, Version: "1.6.0"}}
		if _, err := osv.New(cfg.Miner.OSVURL, cfg.Miner.OSVTimeout).BatchQuery(ctx, sample); err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else {
			fmt.Printf("OK (%s)\n", cfg.Miner.OSVURL)
		}
	}

	fmt.Print("Notifications ............ ")
	if d := notify.NewDispatcher(cfg.Notify); d.IsAnyConfigured() {
		fmt.Printf("OK %v\n", d.Channels())
	} else {
		fmt.Println(dimStyle.Render("none configured"))
	}

	fmt.Println()
	if allOK {
		fmt.Println(successStyle.Render("All checks passed, repomaint is ready!"))
	} else {
		fmt.Println(warnStyle.Render("Some checks failed, run 'repomaint onboard' to fix."))
	}
	return nil
}
