package compiler

import (
	"errors"
	"testing"
	"time"

	"github.com/malbeclabs/ados/agent/pkg/engine"
	"github.com/malbeclabs/ados/agent/pkg/reasoning"
	"github.com/malbeclabs/ados/agent/pkg/validator"
	"github.com/malbeclabs/ados/catalog/pkg/catalog"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
	"github.com/stretchr/testify/require"
)

func chainGraph(t *testing.T) *discovery.KnowledgeGraph {
	t.Helper()
	ds := func(name string, cols ...string) catalog.Dataset {
		d := catalog.Dataset{Name: name, Location: name + ".parquet", Format: catalog.FormatParquet}
		for _, c := range cols {
			d.Columns = append(d.Columns, catalog.NewColumn(c, "BIGINT", nil))
		}
		return d
	}
	snap := catalog.NewSnapshot([]catalog.Dataset{
		ds("orders", "customer_id", "amount"),
		ds("customers", "customer_id", "region_id"),
		ds("regions", "region_id"),
		ds("weather", "temperature"),
	}, nil, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return discovery.Build(snap, discovery.DefaultOptions())
}

func atPlanning(t *testing.T, g *discovery.KnowledgeGraph, datasets ...string) Run {
	t.Helper()
	run := afterDiscovery(newRun("r1", "intent", time.Time{}), g, reasoning.Discovery{Datasets: datasets}, nil)
	require.Equal(t, StagePlanning, run.Stage)
	return run
}

func TestADOS_Compiler_AfterDiscovery_Intersection(t *testing.T) {
	t.Parallel()
	g := chainGraph(t)

	start := newRun("r1", "intent", time.Time{})
	run := afterDiscovery(start, g, reasoning.Discovery{
		Datasets:  []string{"Orders", "ghost", "customers", "orders"},
		Columns:   map[string][]string{"ORDERS": {"amount"}, "ghost": {"x"}},
		Reasoning: "orders by customer",
	}, nil)

	require.Equal(t, StagePlanning, run.Stage)
	require.Equal(t, []string{"orders", "customers"}, run.Discovery.Datasets)
	require.Equal(t, map[string][]string{"orders": {"amount"}}, run.Discovery.Columns)
	require.Equal(t, []string{`dataset "ghost" is not in the catalog`}, run.Warnings)
	require.Nil(t, run.Err())

	// The input run is untouched.
	require.Equal(t, StageDiscovery, start.Stage)
	require.Empty(t, start.Trace)
}

func TestADOS_Compiler_AfterDiscovery_Failures(t *testing.T) {
	t.Parallel()
	g := chainGraph(t)

	run := afterDiscovery(newRun("r1", "intent", time.Time{}), g, reasoning.Discovery{Datasets: []string{"ghost"}}, nil)
	require.Equal(t, StageFailed, run.Stage)
	require.Equal(t, &Failure{Stage: StageDiscovery, Kind: KindNotFound, Message: run.Err().Error()}, run.Failure)
	var notFound *NotFoundError
	require.ErrorAs(t, run.Err(), &notFound)
	require.Equal(t, []string{"ghost"}, notFound.Requested)

	cause := &reasoning.MalformedResponseError{Operation: "discovery", Reason: "no JSON object found"}
	run = afterDiscovery(newRun("r1", "intent", time.Time{}), g, reasoning.Discovery{}, cause)
	require.Equal(t, KindMalformedResponse, run.Failure.Kind)
	require.Equal(t, StageDiscovery, run.Failure.Stage)
	var malformed *reasoning.MalformedResponseError
	require.ErrorAs(t, run.Err(), &malformed)
}

func TestADOS_Compiler_AfterJoinPaths(t *testing.T) {
	t.Parallel()
	g := chainGraph(t)

	tests := []struct {
		name     string
		datasets []string
		path     []string
		hops     int
	}{
		{"single dataset", []string{"orders"}, []string{"orders"}, 0},
		{"direct", []string{"orders", "customers"}, []string{"orders", "customers"}, 1},
		{"through intermediate", []string{"orders", "regions"}, []string{"orders", "customers", "regions"}, 2},
		{"merged legs", []string{"orders", "customers", "regions"}, []string{"orders", "customers", "regions"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			run := afterJoinPaths(atPlanning(t, g, tt.datasets...), g)
			require.Equal(t, StagePlanning, run.Stage)
			require.Equal(t, tt.path, run.JoinPath)
			require.Len(t, run.JoinColumns, tt.hops)
			for _, jc := range run.JoinColumns {
				require.Equal(t, discovery.KindExactName, jc.Kind)
			}
		})
	}
}

func TestADOS_Compiler_AfterJoinPaths_Unreachable(t *testing.T) {
	t.Parallel()
	g := chainGraph(t)

	run := afterJoinPaths(atPlanning(t, g, "orders", "weather"), g)
	require.Equal(t, StageFailed, run.Stage)
	require.Equal(t, StagePlanning, run.Failure.Stage)
	require.Equal(t, KindUnreachable, run.Failure.Kind)
	require.Contains(t, run.Failure.Message, "orders")
	require.Contains(t, run.Failure.Message, "weather")
}

func TestADOS_Compiler_AfterPlanningValidationExecution(t *testing.T) {
	t.Parallel()
	g := chainGraph(t)

	run := afterJoinPaths(atPlanning(t, g, "orders", "customers"), g)
	run = afterPlanning(run, reasoning.PlanDraft{Query: "SELECT 1 FROM orders", Explanation: "x"}, nil)
	require.Equal(t, StageValidation, run.Stage)
	require.Equal(t, []string{"orders", "customers"}, run.Plan.Datasets)
	require.Equal(t, "SELECT 1 FROM orders", run.Plan.Query)

	advisory := validator.Finding{Severity: validator.SeverityAdvisory, Rule: validator.RuleSemanticPlausibility, Message: "odd"}
	passed := afterValidation(run, validator.Report{Passed: true, Findings: []validator.Finding{advisory}})
	require.Equal(t, StageExecution, passed.Stage)

	done := afterExecution(passed, engine.Result{RowCount: 1}, nil)
	require.Equal(t, StageDone, done.Stage)
	require.True(t, done.Stage.Terminal())
	require.Equal(t, []validator.Finding{advisory}, done.Findings())

	failed := afterExecution(passed, engine.Result{}, errors.New("Binder Error: column x not found"))
	require.Equal(t, KindExecution, failed.Failure.Kind)
	require.Equal(t, StageExecution, failed.Failure.Stage)
	require.Contains(t, failed.Failure.Message, "Binder Error")

	blocker := validator.Finding{Severity: validator.SeverityBlocking, Rule: validator.RuleSQLSafety, Message: "DROP is not allowed"}
	blocked := afterValidation(run, validator.Report{Findings: []validator.Finding{blocker, advisory}})
	require.Equal(t, StageFailed, blocked.Stage)
	require.Equal(t, KindValidationBlocked, blocked.Failure.Kind)
	require.Equal(t, []validator.Finding{blocker, advisory}, blocked.Findings())
	var blockedErr *ValidationBlockedError
	require.ErrorAs(t, blocked.Err(), &blockedErr)
	require.Equal(t, []validator.Finding{blocker}, blockedErr.Findings)

	malformed := afterPlanning(afterJoinPaths(atPlanning(t, g, "orders"), g), reasoning.PlanDraft{}, errors.New("context deadline exceeded"))
	require.Equal(t, KindMalformedResponse, malformed.Failure.Kind)
	require.Equal(t, StagePlanning, malformed.Failure.Stage)
}

func TestADOS_Compiler_TransitionOutOfOrder(t *testing.T) {
	t.Parallel()

	run := afterExecution(newRun("r1", "intent", time.Time{}), engine.Result{}, nil)
	require.Equal(t, StageFailed, run.Stage)
	require.Equal(t, StageDiscovery, run.Failure.Stage)
	require.Equal(t, Kind(""), run.Failure.Kind)
}

func TestADOS_Compiler_KindOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, KindNotFound, KindOf(&NotFoundError{}))
	require.Equal(t, KindUnreachable, KindOf(&UnreachableError{From: "a", To: "b"}))
	require.Equal(t, KindMalformedResponse, KindOf(&MalformedResponseError{Stage: StagePlanning, Err: errors.New("x")}))
	require.Equal(t, KindValidationBlocked, KindOf(&ValidationBlockedError{}))
	require.Equal(t, KindExecution, KindOf(&ExecutionError{Err: errors.New("x")}))
	require.Equal(t, Kind(""), KindOf(errors.New("other")))
	require.Equal(t, `no join path between "a" and "b"`, (&UnreachableError{From: "a", To: "b"}).Error())
}
