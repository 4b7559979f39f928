package compiler

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/malbeclabs/ados/agent/pkg/engine"
	"github.com/malbeclabs/ados/agent/pkg/reasoning"
	"github.com/malbeclabs/ados/agent/pkg/validator"
	"github.com/malbeclabs/ados/graph/pkg/discovery"
)

// TraceEntry is one line of a run's audit trail.
type TraceEntry struct {
	Stage   Stage     `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Failure describes where and why a run stopped.
type Failure struct {
	Stage   Stage  `json:"stage"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Run is the state of one compilation. Transitions never mutate a Run in place; each
// returns a new value, so a Run handed out to a caller stays stable.
type Run struct {
	ID          string                 `json:"id"`
	Intent      string                 `json:"intent"`
	Stage       Stage                  `json:"stage"`
	Trace       []TraceEntry           `json:"trace"`
	Warnings    []string               `json:"warnings,omitempty"`
	Discovery   *reasoning.Discovery   `json:"discovery,omitempty"`
	JoinPath    []string               `json:"join_path,omitempty"`
	JoinColumns []discovery.JoinColumn `json:"join_columns,omitempty"`
	Plan        *validator.QueryPlan   `json:"plan,omitempty"`
	Report      *validator.Report      `json:"report,omitempty"`
	Result      *engine.Result         `json:"result,omitempty"`
	Failure     *Failure               `json:"failure,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at,omitzero"`

	err error
}

// Err returns the error that ended the run, or nil when it is not failed.
func (r *Run) Err() error {
	return r.err
}

// Findings returns the validation findings collected so far, including on failure.
func (r *Run) Findings() []validator.Finding {
	if r.Report == nil {
		return nil
	}
	return r.Report.Findings
}

func newRun(id, intent string, now time.Time) Run {
	return Run{ID: id, Intent: intent, Stage: StageDiscovery, StartedAt: now}
}

func (r Run) clone() Run {
	r.Trace = slices.Clone(r.Trace)
	r.Warnings = slices.Clone(r.Warnings)
	r.JoinPath = slices.Clone(r.JoinPath)
	r.JoinColumns = slices.Clone(r.JoinColumns)
	return r
}

func (r Run) trace(format string, args ...any) Run {
	r.Trace = append(r.Trace, TraceEntry{Stage: r.Stage, Message: fmt.Sprintf(format, args...)})
	return r
}

func (r Run) fail(err error) Run {
	r = r.trace("failed: %v", err)
	r.Failure = &Failure{Stage: r.Stage, Kind: KindOf(err), Message: err.Error()}
	r.Stage = StageFailed
	r.err = err
	return r
}

func (r Run) advance(next Stage) Run {
	r.Stage = next
	return r
}

func mismatch(run Run, want Stage) (Run, bool) {
	if run.Stage == want {
		return run, false
	}
	return run.fail(fmt.Errorf("transition for %s applied at %s", want, run.Stage)), true
}

func malformedAt(stage Stage, err error) error {
	var existing *MalformedResponseError
	if errors.As(err, &existing) {
		return err
	}
	return &MalformedResponseError{Stage: stage, Err: err}
}

// afterDiscovery keeps the named datasets that exist in the catalog. Unknown names are
// recovered from with a warning; only an empty intersection fails the run.
func afterDiscovery(run Run, schemas validator.Schemas, d reasoning.Discovery, err error) Run {
	run = run.clone()
	if r, bad := mismatch(run, StageDiscovery); bad {
		return r
	}
	if err != nil {
		return run.fail(malformedAt(StageDiscovery, err))
	}

	byFold := make(map[string]string)
	for _, name := range schemas.Datasets() {
		byFold[strings.ToLower(name)] = name
	}

	kept := reasoning.Discovery{Columns: make(map[string][]string), Reasoning: d.Reasoning}
	seen := make(map[string]bool)
	for _, name := range d.Datasets {
		canonical, ok := byFold[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			warning := fmt.Sprintf("dataset %q is not in the catalog", name)
			run.Warnings = append(run.Warnings, warning)
			run = run.trace("%s", warning)
			continue
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		kept.Datasets = append(kept.Datasets, canonical)
	}
	if len(kept.Datasets) == 0 {
		return run.fail(&NotFoundError{Requested: slices.Clone(d.Datasets)})
	}

	for name, cols := range d.Columns {
		canonical, ok := byFold[strings.ToLower(strings.TrimSpace(name))]
		if !ok || !seen[canonical] {
			continue
		}
		kept.Columns[canonical] = append(kept.Columns[canonical], cols...)
	}

	run.Discovery = &kept
	run = run.trace("selected datasets: %s", strings.Join(kept.Datasets, ", "))
	return run.advance(StagePlanning)
}

// afterJoinPaths chains join paths from the first selected dataset to each other one
// and merges them into a single ordered path.
func afterJoinPaths(run Run, g *discovery.KnowledgeGraph) Run {
	run = run.clone()
	if r, bad := mismatch(run, StagePlanning); bad {
		return r
	}
	if run.Discovery == nil || len(run.Discovery.Datasets) == 0 {
		return run.fail(&NotFoundError{})
	}

	datasets := run.Discovery.Datasets
	first := datasets[0]
	path := []string{first}
	inPath := map[string]bool{first: true}
	type hop struct{ a, b string }
	seenHop := make(map[hop]bool)
	var columns []discovery.JoinColumn

	for _, next := range datasets[1:] {
		leg := g.JoinPath(first, next)
		if len(leg) == 0 {
			return run.fail(&UnreachableError{From: first, To: next})
		}
		for _, name := range leg {
			if !inPath[name] {
				inPath[name] = true
				path = append(path, name)
			}
		}
		for _, jc := range g.JoinColumns(leg) {
			key := hop{jc.Left.Dataset, jc.Right.Dataset}
			if key.a > key.b {
				key.a, key.b = key.b, key.a
			}
			if seenHop[key] {
				continue
			}
			seenHop[key] = true
			columns = append(columns, jc)
		}
	}

	run.JoinPath = path
	run.JoinColumns = columns
	if len(path) > 1 {
		run = run.trace("join path: %s", strings.Join(path, " -> "))
	} else {
		run = run.trace("single dataset, no join needed")
	}
	return run
}

// afterPlanning turns the drafted query into the immutable plan handed to validation.
func afterPlanning(run Run, draft reasoning.PlanDraft, err error) Run {
	run = run.clone()
	if r, bad := mismatch(run, StagePlanning); bad {
		return r
	}
	if err != nil {
		return run.fail(malformedAt(StagePlanning, err))
	}

	columns := make(map[string][]string)
	if run.Discovery != nil {
		for name, cols := range run.Discovery.Columns {
			columns[name] = slices.Clone(cols)
		}
	}
	plan := validator.QueryPlan{
		Query:       draft.Query,
		Datasets:    slices.Clone(run.JoinPath),
		Columns:     columns,
		JoinPath:    slices.Clone(run.JoinPath),
		Explanation: draft.Explanation,
	}
	run.Plan = &plan
	run = run.trace("planned query over %s", strings.Join(plan.Datasets, ", "))
	return run.advance(StageValidation)
}

// afterValidation gates execution on the report. Findings are kept whatever the verdict.
func afterValidation(run Run, report validator.Report) Run {
	run = run.clone()
	if r, bad := mismatch(run, StageValidation); bad {
		return r
	}
	report.Findings = slices.Clone(report.Findings)
	run.Report = &report
	if !report.Passed {
		return run.fail(&ValidationBlockedError{Findings: report.Blocking()})
	}
	run = run.trace("validation passed with %d finding(s)", len(report.Findings))
	return run.advance(StageExecution)
}

// afterExecution records the result or surfaces the raw engine error.
func afterExecution(run Run, result engine.Result, err error) Run {
	run = run.clone()
	if r, bad := mismatch(run, StageExecution); bad {
		return r
	}
	if err != nil {
		return run.fail(&ExecutionError{Err: err})
	}
	run.Result = &result
	run = run.trace("query returned %d row(s)", result.RowCount)
	return run.advance(StageDone)
}
