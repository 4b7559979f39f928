// Package cli implements the ados command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/malbeclabs/ados/agent/pkg/reasoning"
	"github.com/malbeclabs/ados/api/handlers"
	"github.com/malbeclabs/ados/utils/pkg/logger"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string
	Version    handlers.VersionInfo

	// llm replaces the Anthropic client in tests.
	llm reasoning.LLMClient
}

// NewRootCommand creates the ados root command.
func NewRootCommand(version handlers.VersionInfo) *cobra.Command {
	return newRootCommand(&RootOptions{Version: version})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ados",
		Short: "Compile natural-language intents into validated queries",
		Long: `ados scans a catalog of datasets, discovers how they join, and compiles
natural-language intents into queries that are validated before they run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose (debug) logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (text|json)")

	cmd.AddCommand(
		newServeCommand(opts),
		newCompileCommand(opts),
		newDatasetsCommand(opts),
		newGraphCommand(opts),
		newPathCommand(opts),
		newValidateCommand(opts),
		newVersionCommand(opts),
	)
	return cmd
}

// cmdLogger logs to stderr so command output on stdout stays parseable.
func (opts *RootOptions) cmdLogger(cmd *cobra.Command) *slog.Logger {
	return logger.NewWithFormat(cmd.ErrOrStderr(), logger.FormatText, opts.Verbose)
}

// loadApp builds the application and the first knowledge graph.
func (opts *RootOptions) loadApp(ctx context.Context, log *slog.Logger, appOpts AppOptions) (*App, error) {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if appOpts.LLM == nil {
		appOpts.LLM = opts.llm
	}
	app, err := NewApp(ctx, log, cfg, appOpts)
	if err != nil {
		return nil, err
	}
	if _, err := app.Graph.Refresh(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func newVersionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format == FormatJSON {
				return writeJSON(cmd.OutOrStdout(), opts.Version)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ados %s (commit %s, built %s)\n", opts.Version.Version, opts.Version.Commit, opts.Version.Date)
			return nil
		},
	}
}
