package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/malbeclabs/ados/agent/pkg/compiler"
	"github.com/malbeclabs/ados/agent/pkg/engine"
	"github.com/malbeclabs/ados/agent/pkg/validator"
	"github.com/malbeclabs/ados/catalog/pkg/catalog"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
	"github.com/olekukonko/tablewriter"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

var ValidFormats = []string{FormatText, FormatJSON}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(true)
	table.SetHeader(header)
	return table
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func renderRun(w io.Writer, run *compiler.Run) {
	fmt.Fprintf(w, "Run %s: %s\n\n", run.ID, run.Stage)

	trace := newTable(w, "Stage", "Message")
	for _, e := range run.Trace {
		trace.Append([]string{string(e.Stage), e.Message})
	}
	trace.Render()

	if run.Plan != nil {
		fmt.Fprintf(w, "\nQuery:\n%s\n", run.Plan.Query)
		if run.Plan.Explanation != "" {
			fmt.Fprintf(w, "\n%s\n", run.Plan.Explanation)
		}
	}
	if run.Report != nil && len(run.Report.Findings) > 0 {
		fmt.Fprintln(w)
		renderFindings(w, run.Report.Findings)
	}
	if run.Failure != nil {
		fmt.Fprintf(w, "\nFailed at %s (%s): %s\n", run.Failure.Stage, run.Failure.Kind, run.Failure.Message)
	}
	if run.Result != nil {
		fmt.Fprintln(w)
		renderResult(w, *run.Result)
	}
}

func renderResult(w io.Writer, result engine.Result) {
	table := newTable(w, result.Columns...)
	for _, row := range result.Rows {
		cells := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			cells[i] = engine.FormatValue(row[col])
		}
		table.Append(cells)
	}
	table.Render()
	suffix := ""
	if result.Truncated {
		suffix = " (truncated)"
	}
	fmt.Fprintf(w, "%d row(s)%s\n", result.RowCount, suffix)
}

func renderFindings(w io.Writer, findings []validator.Finding) {
	table := newTable(w, "Severity", "Rule", "Message", "Suggestion")
	for _, f := range findings {
		table.Append([]string{string(f.Severity), f.Rule, f.Message, f.Suggestion})
	}
	table.Render()
}

func renderDatasets(w io.Writer, g *discovery.KnowledgeGraph) {
	table := newTable(w, "Dataset", "Format", "Rows", "Columns", "ID Columns", "Location")
	for _, name := range g.Datasets() {
		ds, _ := g.Dataset(name)
		table.Append([]string{
			ds.Name, string(ds.Format), strconv.FormatInt(ds.RowCount, 10),
			strconv.Itoa(len(ds.Columns)), strings.Join(ds.IDColumns(), ", "), ds.Location,
		})
	}
	table.Render()
	for _, warning := range g.Warnings() {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

func renderDataset(w io.Writer, ds catalog.Dataset) {
	fmt.Fprintf(w, "%s (%s, %d rows)\n%s\n\n", ds.Name, ds.Format, ds.RowCount, ds.Location)
	table := newTable(w, "Column", "Type", "Sample")
	for _, c := range ds.Columns {
		table.Append([]string{c.Name, c.Type, strings.Join(c.Sample, ", ")})
	}
	table.Render()
}

func renderEdges(w io.Writer, edges []discovery.Edge) {
	table := newTable(w, "From", "To", "Kind", "Confidence", "Evidence")
	for _, e := range edges {
		table.Append([]string{e.From.String(), e.To.String(), string(e.Kind), strconv.FormatFloat(e.Confidence, 'f', 2, 64), e.Evidence})
	}
	table.Render()
}

func renderPath(w io.Writer, from, to string, path []string, cols []discovery.JoinColumn) {
	if len(path) == 0 {
		fmt.Fprintf(w, "no join path between %s and %s\n", from, to)
		return
	}
	fmt.Fprintln(w, strings.Join(path, " -> "))
	if len(cols) == 0 {
		return
	}
	table := newTable(w, "Left", "Right", "Kind", "Confidence")
	for _, c := range cols {
		table.Append([]string{c.Left.String(), c.Right.String(), string(c.Kind), strconv.FormatFloat(c.Confidence, 'f', 2, 64)})
	}
	table.Render()
}
