package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/malbeclabs/ados/catalog/pkg/catalog"
)

type Severity string

const (
	SeverityBlocking      Severity = "blocking"
	SeverityAdvisory      Severity = "advisory"
	SeverityInformational Severity = "informational"
)

const (
	RuleDatasetExistence      = "dataset_existence"
	RuleColumnExistence       = "column_existence"
	RuleSQLSyntax             = "sql_syntax"
	RuleJoinTypeCompatibility = "join_type_compatibility"
	RuleSQLSafety             = "sql_safety"
	RuleSemanticPlausibility  = "semantic_plausibility"
)

// Finding is one validator observation.
type Finding struct {
	Severity   Severity `json:"severity"`
	Rule       string   `json:"rule"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Report passes iff no finding is blocking.
type Report struct {
	Passed   bool      `json:"passed"`
	Findings []Finding `json:"findings"`
}

// Blocking returns the blocking findings.
func (r Report) Blocking() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == SeverityBlocking {
			out = append(out, f)
		}
	}
	return out
}

// QueryPlan is a candidate query and the datasets and columns it claims to use.
// A plan is never modified once created.
type QueryPlan struct {
	Query       string              `json:"query"`
	Datasets    []string            `json:"datasets"`
	Columns     map[string][]string `json:"columns,omitempty"`
	JoinPath    []string            `json:"join_path,omitempty"`
	Explanation string              `json:"explanation,omitempty"`
}

// Schemas is the dataset snapshot a plan is validated against.
type Schemas interface {
	Datasets() []string
	Dataset(name string) (catalog.Dataset, bool)
}

// Judge reviews a query for business-logic problems. It answers "OK" or lists issues.
type Judge interface {
	Judge(ctx context.Context, query string, datasets []string) (string, error)
}

const DefaultJudgeTimeout = 30 * time.Second

type Config struct {
	Logger *slog.Logger
	// Judge enables the semantic plausibility rule.
	Judge        Judge
	JudgeTimeout time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.JudgeTimeout <= 0 {
		cfg.JudgeTimeout = DefaultJudgeTimeout
	}
	return nil
}

type Validator struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate validator config: %w", err)
	}
	return &Validator{log: cfg.Logger, cfg: cfg}, nil
}

// Validate runs every rule in order. Rules other than semantic plausibility are pure
// functions of the plan and schemas, and only they decide the verdict. The semantic
// rule is skipped when the plan is already blocked.
func (v *Validator) Validate(ctx context.Context, schemas Schemas, plan QueryPlan) Report {
	findings := Check(schemas, plan)
	passed := !slices.ContainsFunc(findings, func(f Finding) bool { return f.Severity == SeverityBlocking })

	if passed && v.cfg.Judge != nil {
		findings = append(findings, v.semanticPlausibility(ctx, plan)...)
	}

	for _, f := range findings {
		v.log.Debug("validator: finding", "severity", f.Severity, "rule", f.Rule, "message", f.Message)
	}
	v.log.Info("validator: plan validated", "passed", passed, "findings", len(findings))

	return Report{Passed: passed, Findings: findings}
}

// Check runs the deterministic rules.
func Check(schemas Schemas, plan QueryPlan) []Finding {
	l := lex(plan.Query)
	r := newResolver(schemas, plan, l)

	var findings []Finding
	findings = append(findings, datasetExistence(schemas, plan)...)
	findings = append(findings, columnExistence(schemas, plan, l, r)...)
	findings = append(findings, sqlSyntax(plan.Query, l)...)
	findings = append(findings, joinTypeCompatibility(schemas, l, r)...)
	findings = append(findings, sqlSafety(plan.Query, l)...)
	return findings
}

func blocking(rule, message, suggestion string) Finding {
	return Finding{Severity: SeverityBlocking, Rule: rule, Message: message, Suggestion: suggestion}
}

func datasetExistence(schemas Schemas, plan QueryPlan) []Finding {
	var findings []Finding
	seen := map[string]bool{}
	for _, name := range plan.Datasets {
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := schemas.Dataset(name); !ok {
			findings = append(findings, blocking(RuleDatasetExistence,
				fmt.Sprintf("dataset %q not found in catalog", name),
				"available datasets: "+strings.Join(schemas.Datasets(), ", ")))
		}
	}
	return findings
}

func columnExistence(schemas Schemas, plan QueryPlan, l lexed, r *resolver) []Finding {
	var findings []Finding
	reported := map[string]bool{}
	check := func(dataset, column string) {
		d, ok := schemas.Dataset(dataset)
		if !ok {
			return
		}
		key := dataset + "\x00" + strings.ToLower(column)
		if reported[key] {
			return
		}
		if _, ok := d.Column(column); !ok {
			reported[key] = true
			findings = append(findings, blocking(RuleColumnExistence,
				fmt.Sprintf("column %q not found in dataset %q", column, dataset),
				"available columns: "+strings.Join(d.ColumnNames(), ", ")))
		}
	}

	datasets := make([]string, 0, len(plan.Columns))
	for name := range plan.Columns {
		datasets = append(datasets, name)
	}
	sort.Strings(datasets)
	for _, name := range datasets {
		for _, c := range plan.Columns[name] {
			check(name, c)
		}
	}

	for _, m := range qualifiedRe.FindAllStringSubmatch(l.code, -1) {
		if dataset, ok := r.strict(unquoteIdent(m[1])); ok {
			check(dataset, unquoteIdent(m[2]))
		}
	}
	return findings
}

func sqlSyntax(query string, l lexed) []Finding {
	if strings.TrimSpace(query) == "" {
		return []Finding{blocking(RuleSQLSyntax, "query is empty", "")}
	}
	var findings []Finding
	if !selectRe.MatchString(l.bare) {
		findings = append(findings, blocking(RuleSQLSyntax, "query has no SELECT clause", ""))
	}
	if !fromRe.MatchString(l.bare) {
		findings = append(findings, blocking(RuleSQLSyntax, "query has no FROM clause", ""))
	}
	if l.unclosedSingle {
		findings = append(findings, blocking(RuleSQLSyntax, "unbalanced single quotes", "close every string literal"))
	}
	if l.unclosedDouble {
		findings = append(findings, blocking(RuleSQLSyntax, "unbalanced double quotes", "close every quoted identifier"))
	}
	if l.unclosedParen || l.strayParen {
		findings = append(findings, blocking(RuleSQLSyntax, "unbalanced parentheses", ""))
	}
	return findings
}

func joinTypeCompatibility(schemas Schemas, l lexed, r *resolver) []Finding {
	var findings []Finding
	for _, m := range conditionRe.FindAllStringSubmatch(l.code, -1) {
		leftDS, ok1 := r.loose(unquoteIdent(m[1]))
		rightDS, ok2 := r.loose(unquoteIdent(m[3]))
		if !ok1 || !ok2 {
			continue
		}
		leftCol, rightCol := unquoteIdent(m[2]), unquoteIdent(m[4])
		lt, ok1 := columnType(schemas, leftDS, leftCol)
		rt, ok2 := columnType(schemas, rightDS, rightCol)
		if !ok1 || !ok2 || catalog.Compatible(lt, rt) {
			continue
		}
		findings = append(findings, blocking(RuleJoinTypeCompatibility,
			fmt.Sprintf("incompatible join: %s.%s (%s) = %s.%s (%s)", leftDS, leftCol, lt, rightDS, rightCol, rt),
			"CAST() one side to a common type"))
	}
	return findings
}

func columnType(schemas Schemas, dataset, column string) (string, bool) {
	d, ok := schemas.Dataset(dataset)
	if !ok {
		return "", false
	}
	c, ok := d.Column(column)
	if !ok {
		return "", false
	}
	return c.Type, true
}

var (
	// destructiveKeywords block wherever they appear, literals and comments included.
	destructiveKeywords = []string{"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE"}
	// statementKeywords block only in query code.
	statementKeywords = []string{
		"CREATE", "REPLACE", "MERGE", "GRANT", "REVOKE", "ATTACH", "DETACH", "COPY", "INSTALL",
		"LOAD", "PRAGMA", "SET", "EXPORT", "IMPORT", "CALL",
	}
	destructiveRe = regexp.MustCompile(`(?i)\b(` + strings.Join(destructiveKeywords, "|") + `)\b`)
	statementKwRe = regexp.MustCompile(`(?i)\b(` + strings.Join(statementKeywords, "|") + `)\b(\s*\()?`)
	statementRe   = regexp.MustCompile(`;\s*\S`)
)

func sqlSafety(query string, l lexed) []Finding {
	var findings []Finding
	seen := map[string]bool{}
	flag := func(kw string) {
		if seen[kw] {
			return
		}
		seen[kw] = true
		findings = append(findings, blocking(RuleSQLSafety,
			fmt.Sprintf("%s is not allowed: only read-only queries may run", kw),
			"rewrite the request as a single SELECT query"))
	}
	for _, m := range destructiveRe.FindAllStringSubmatch(query, -1) {
		flag(strings.ToUpper(m[1]))
	}
	for _, m := range statementKwRe.FindAllStringSubmatch(l.bare, -1) {
		kw := strings.ToUpper(m[1])
		// replace(...) is a string function and SELECT * REPLACE (...) a projection modifier.
		if kw == "REPLACE" && m[2] != "" {
			continue
		}
		flag(kw)
	}
	if statementRe.MatchString(l.bare) {
		findings = append(findings, blocking(RuleSQLSafety,
			"multiple statements are not allowed", "submit a single SELECT query"))
	}
	return findings
}

func (v *Validator) semanticPlausibility(ctx context.Context, plan QueryPlan) []Finding {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.JudgeTimeout)
	defer cancel()

	resp, err := v.cfg.Judge.Judge(ctx, plan.Query, plan.Datasets)
	if err != nil {
		v.log.Warn("validator: semantic check unavailable", "error", err)
		return []Finding{{
			Severity: SeverityInformational,
			Rule:     RuleSemanticPlausibility,
			Message:  fmt.Sprintf("semantic check unavailable: %v", err),
		}}
	}
	resp = strings.TrimSpace(resp)
	if strings.EqualFold(strings.TrimRight(resp, ".!"), "OK") {
		return nil
	}
	return []Finding{{
		Severity: SeverityAdvisory,
		Rule:     RuleSemanticPlausibility,
		Message:  resp,
	}}
}
