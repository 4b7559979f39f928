package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/malbeclabs/ados/agent/pkg/compiler"
	"github.com/spf13/cobra"
)

// ErrRunFailed is returned after a failed run has been printed.
var ErrRunFailed = errors.New("compilation failed")

func newCompileCommand(opts *RootOptions) *cobra.Command {
	var noAudit bool
	cmd := &cobra.Command{
		Use:   "compile <intent>",
		Short: "Compile an intent into a validated query and run it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := strings.TrimSpace(strings.Join(args, " "))
			if intent == "" {
				return errors.New("intent must not be empty")
			}
			ctx := cmd.Context()
			app, err := opts.loadApp(ctx, opts.cmdLogger(cmd), AppOptions{Reasoning: true, Audit: !noAudit})
			if err != nil {
				return err
			}
			defer app.Close()

			run := app.Compiler.Compile(ctx, intent)
			if opts.Format == FormatJSON {
				if err := writeJSON(cmd.OutOrStdout(), run); err != nil {
					return err
				}
			} else {
				renderRun(cmd.OutOrStdout(), run)
			}
			if run.Stage == compiler.StageFailed {
				return fmt.Errorf("%w: %s", ErrRunFailed, run.Failure.Kind)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noAudit, "no-audit", false, "do not record the run even when POSTGRES_DB is set")
	return cmd
}
