// Package cli implements the dctwinctl command tree.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dctwin/internal/app"
	"dctwin/internal/config"
	"dctwin/internal/logger"
)

var version = "dev"

var sectionTitleColor = color.New(color.FgBlue, color.Bold)

// SetVersion sets the version printed by --version
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// globalOptions are shared by every subcommand
type globalOptions struct {
	configPath string
	jsonOutput bool
	verbose    bool
}

// NewRootCommand builds a fresh command tree
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:     "dctwinctl",
		Version: version,
		Short:   "Operate a data center digital twin from the command line",
		Long: `dctwinctl imports site scenes, plans device moves across lifecycle
phases, reconciles verification scans and searches for AI-ready capacity.

It opens the same database as the dctwin server, located through the
server's config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file path (default: search standard locations)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	root.AddGroup(
		&cobra.Group{ID: "inventory", Title: sectionTitleColor.Sprint("Inventory:")},
		&cobra.Group{ID: "analysis", Title: sectionTitleColor.Sprint("Analysis:")},
	)

	root.AddCommand(
		newMigrateCmd(opts),
		newSitesCmd(opts),
		newImportCmd(opts),
		newExportCmd(opts),
		newMoveCmd(opts),
		newHistoryCmd(opts),
		newCapacityCmd(opts),
		newAnomaliesCmd(opts),
	)
	return root
}

// Execute runs the command tree against os.Args
func Execute() error {
	return NewRootCommand().Execute()
}

// openApp loads configuration and wires the services for one command
func openApp(opts *globalOptions) (*app.App, error) {
	cfg, _, err := config.Resolve(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	log, err := logger.New(level, "console", "dctwinctl")
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return nil, err
	}
	log.Debug("opened store", zap.String("dialect", cfg.Database.Dialect))
	return a, nil
}
