package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/CosmoTheDev/repomaint-agent/internal/indexer"
	"github.com/CosmoTheDev/repomaint-agent/models"
	"github.com/spf13/cobra"
)

var (
	indexProvider string
	indexBranch   string
	indexForce    bool
)

var indexCmd = &cobra.Command{
	Use:   "index <url|path>",
	Short: "Clone a repository and record its languages, manifests and files",
	Long: `Resolves the repository through its provider, clones it into a temporary
directory, takes a language census, hashes every tracked file and creates the
vector index collection. Unchanged files are skipped on reindex; a repository
that has not been pushed since the last run is skipped entirely unless
--force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexProvider, "provider", "", "provider type (detected from the URL when empty)")
	indexCmd.Flags().StringVar(&indexBranch, "branch", "", "branch to clone (default branch when empty)")
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "reindex even when the repository is up to date")
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseProviderFlag(raw string) (models.ProviderType, error) {
	if raw == "" {
		return "", nil
	}
	return models.ParseProviderType(raw)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	provider, err := parseProviderFlag(indexProvider)
	if err != nil {
		return err
	}
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.pipeline.StartIndexing(ctx, indexer.Request{
		URL:          args[0],
		Provider:     provider,
		Branch:       indexBranch,
		ForceReindex: indexForce,
	})
	if err != nil {
		return err
	}
	task, err := waitTask(ctx, a.pipeline, id)
	if err != nil {
		return err
	}
	if err := taskError(task); err != nil {
		return err
	}
	repo, err := a.store.GetRepository(ctx, task.ResultID)
	if err != nil {
		return err
	}
	return render(map[string]any{"task": task, "repository": repo}, func(w io.Writer) {
		fmt.Fprintln(w, successStyle.Render("Indexed "+repo.FullName))
		fmt.Fprintf(w, "  Repository ID : %s\n", repo.ID)
		fmt.Fprintf(w, "  Provider      : %s\n", repo.ProviderType)
		fmt.Fprintf(w, "  Languages     : %v\n", repo.Languages)
		fmt.Fprintf(w, "  Result        : %s\n", task.Message)
	})
}
