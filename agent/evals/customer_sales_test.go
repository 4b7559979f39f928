//go:build evals

package evals_test

import (
	"context"
	"testing"

	"github.com/malbeclabs/ados/agent/pkg/compiler"
	"github.com/stretchr/testify/require"
)

var customerSales = map[string]string{
	"customer": "ID_Client,Score\n1,0.5\n2,0.7\n3,0.9\n",
	"sales":    "ID_Client,Amount\n1,10\n1,15\n2,20\n",
}

func TestADOS_Evals_Anthropic_CustomerSales(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := setupCompiler(t, ctx, writeCSVs(t, customerSales))

	intent := "What is the total sales amount for each customer, with their score?"
	run := h.compiler.Compile(ctx, intent)
	logRun(t, run)

	require.Equal(t, compiler.StageDone, run.Stage, "run failed: %+v", run.Failure)
	require.ElementsMatch(t, []string{"customer", "sales"}, run.Plan.Datasets)
	require.True(t, run.Report.Passed)
	require.NotZero(t, run.Result.RowCount)

	isCorrect, err := evaluateRun(t, ctx, h, intent, run,
		Expectation{
			Description:   "Customer 1 totals 25 and customer 2 totals 20",
			ExpectedValue: "Rows for ID_Client 1 with 25 and ID_Client 2 with 20; customer 3 absent or zero/null",
			Rationale:     "Sales rows are (1,10), (1,15), (2,20)",
		},
		Expectation{
			Description:   "Scores are reported alongside totals",
			ExpectedValue: "Score 0.5 for customer 1 and 0.7 for customer 2",
			Rationale:     "The question asks for the score with each total",
		},
	)
	require.NoError(t, err)
	require.True(t, isCorrect, "evaluation failed for customer sales")
}
