package cli

import (
	"fmt"

	"github.com/malbeclabs/ados/catalog/pkg/catalog"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
	"github.com/spf13/cobra"
)

func newGraphCommand(opts *RootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show discovered relationships",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.loadApp(cmd.Context(), opts.cmdLogger(cmd), AppOptions{})
			if err != nil {
				return err
			}
			defer app.Close()
			g := app.Graph.Graph()

			edges := g.PrimaryEdges()
			if all {
				edges = g.Edges()
			}
			if opts.Format == FormatJSON {
				return writeJSON(cmd.OutOrStdout(), edges)
			}
			s := g.Summary()
			fmt.Fprintf(cmd.OutOrStdout(), "%d dataset(s), %d relationship(s) across %d pair(s)\n",
				len(s.Datasets), s.Relationships, s.Pairs)
			renderEdges(cmd.OutOrStdout(), edges)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include alternate edges, not just the primary edge per pair")
	return cmd
}

type pathOutput struct {
	From        string                 `json:"from"`
	To          string                 `json:"to"`
	Reachable   bool                   `json:"reachable"`
	Path        []string               `json:"path"`
	JoinColumns []discovery.JoinColumn `json:"join_columns"`
}

func newPathCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path <from> <to>",
		Short: "Show the best join path between two datasets",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.loadApp(cmd.Context(), opts.cmdLogger(cmd), AppOptions{})
			if err != nil {
				return err
			}
			defer app.Close()
			g := app.Graph.Graph()

			from, to := args[0], args[1]
			for _, name := range []string{from, to} {
				if !g.Has(name) {
					return &catalog.NotFoundError{Name: name}
				}
			}
			path := g.JoinPath(from, to)
			cols := g.JoinColumns(path)
			if opts.Format == FormatJSON {
				return writeJSON(cmd.OutOrStdout(), pathOutput{
					From: from, To: to, Reachable: len(path) > 0,
					Path: nonNil(path), JoinColumns: nonNil(cols),
				})
			}
			renderPath(cmd.OutOrStdout(), from, to, path, cols)
			return nil
		},
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
