package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/malbeclabs/ados/agent/pkg/validator"
	"github.com/spf13/cobra"
)

// ErrPlanBlocked is returned after a blocked report has been printed.
var ErrPlanBlocked = errors.New("plan blocked")

type validateOutput struct {
	Report validator.Report `json:"report"`
	Audit  string           `json:"audit"`
}

func newValidateCommand(opts *RootOptions) *cobra.Command {
	var (
		query     string
		queryFile string
		datasets  []string
		joinPath  []string
		judge     bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a query plan against the catalog without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if queryFile != "" {
				var (
					data []byte
					err  error
				)
				if queryFile == "-" {
					data, err = io.ReadAll(cmd.InOrStdin())
				} else {
					data, err = os.ReadFile(queryFile)
				}
				if err != nil {
					return fmt.Errorf("failed to read query: %w", err)
				}
				query = string(data)
			}
			if strings.TrimSpace(query) == "" {
				return errors.New("--query or --query-file is required")
			}

			ctx := cmd.Context()
			app, err := opts.loadApp(ctx, opts.cmdLogger(cmd), AppOptions{Reasoning: judge})
			if err != nil {
				return err
			}
			defer app.Close()

			report := app.Validator.Validate(ctx, app.Graph.Graph(), validator.QueryPlan{
				Query:    query,
				Datasets: datasets,
				JoinPath: joinPath,
			})
			out := validateOutput{Report: report, Audit: validator.AuditReport(report.Findings)}
			if opts.Format == FormatJSON {
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), out.Audit)
			}
			if !report.Passed {
				return ErrPlanBlocked
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "query text")
	cmd.Flags().StringVar(&queryFile, "query-file", "", "read the query from a file, or - for stdin")
	cmd.Flags().StringSliceVarP(&datasets, "datasets", "d", nil, "datasets the query reads (comma separated)")
	cmd.Flags().StringSliceVar(&joinPath, "join-path", nil, "join path the query follows (comma separated)")
	cmd.Flags().BoolVar(&judge, "judge", false, "also ask the reasoning service to review business logic")
	return cmd
}
