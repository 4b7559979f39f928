package cli

import (
	"github.com/malbeclabs/ados/catalog/pkg/catalog"
	"github.com/spf13/cobra"
)

func newDatasetsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets [name]",
		Short: "List the catalog, or show one dataset's columns",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.loadApp(cmd.Context(), opts.cmdLogger(cmd), AppOptions{})
			if err != nil {
				return err
			}
			defer app.Close()
			g := app.Graph.Graph()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				if opts.Format == FormatJSON {
					return writeJSON(out, g.Summary())
				}
				renderDatasets(out, g)
				return nil
			}

			ds, ok := g.Dataset(args[0])
			if !ok {
				return &catalog.NotFoundError{Name: args[0]}
			}
			if opts.Format == FormatJSON {
				return writeJSON(out, ds)
			}
			renderDataset(out, ds)
			return nil
		},
	}
}
