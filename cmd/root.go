package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
	output  string
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "repomaint",
	Short: "Automated repository maintenance: index, mine, plan, implement, open and review PRs",
	Long: `repomaint indexes source repositories hosted on GitHub, GitLab or Azure
DevOps, mines them for maintenance opportunities, turns each one into an
ordered plan, applies it, opens a pull request and reviews it with a panel of
agents.

Get started:
  repomaint onboard          Interactive setup wizard
  repomaint doctor           Verify credentials, database and vector index
  repomaint maintain <url>   Run the whole pipeline against one repository
  repomaint gateway          Start the HTTP control plane daemon`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describeError(err))
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.repomaint/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text",
		"output format: text, json or yaml")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		onboardCmd,
		indexCmd,
		mineCmd,
		planCmd,
		implementCmd,
		prCmd,
		watchCmd,
		reviewCmd,
		statusCmd,
		maintainCmd,
		gatewayCmd,
		configCmd,
		doctorCmd,
	)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
