package validator

import (
	"path"
	"regexp"
	"strings"
)

// lexed is a query with literal and comment contents blanked out, plus its structural faults.
type lexed struct {
	// code blanks single-quoted literal contents and comments; double-quoted identifiers are kept.
	code string
	// bare additionally blanks double-quoted identifier contents.
	bare string

	unclosedSingle bool
	unclosedDouble bool
	unclosedParen  bool
	strayParen     bool
}

func lex(q string) lexed {
	code := []byte(q)
	bare := []byte(q)
	blank := func(i int) {
		if code[i] != '\n' {
			code[i] = ' '
			bare[i] = ' '
		}
	}

	var l lexed
	depth := 0
	for i := 0; i < len(q); i++ {
		switch c := q[i]; {
		case c == '\'':
			j := i + 1
			closed := false
			for j < len(q) {
				if q[j] == '\'' {
					if j+1 < len(q) && q[j+1] == '\'' {
						blank(j)
						blank(j + 1)
						j += 2
						continue
					}
					closed = true
					break
				}
				blank(j)
				j++
			}
			if !closed {
				l.unclosedSingle = true
			}
			i = j
		case c == '"':
			j := i + 1
			closed := false
			for j < len(q) {
				if q[j] == '"' {
					if j+1 < len(q) && q[j+1] == '"' {
						bare[j], bare[j+1] = ' ', ' '
						j += 2
						continue
					}
					closed = true
					break
				}
				bare[j] = ' '
				j++
			}
			if !closed {
				l.unclosedDouble = true
			}
			i = j
		case c == '-' && i+1 < len(q) && q[i+1] == '-':
			for i < len(q) && q[i] != '\n' {
				blank(i)
				i++
			}
		case c == '/' && i+1 < len(q) && q[i+1] == '*':
			j := i
			for j < len(q) && !(q[j] == '*' && j+1 < len(q) && q[j+1] == '/' && j >= i+2) {
				blank(j)
				j++
			}
			if j < len(q) {
				blank(j)
				blank(j + 1)
				j++
			}
			i = j
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				l.strayParen = true
				depth = 0
			}
		}
	}
	l.unclosedParen = depth > 0
	l.code = string(code)
	l.bare = string(bare)
	return l
}

const identPattern = `(?:[A-Za-z_][A-Za-z0-9_]*|"(?:[^"]|"")+")`

var (
	selectRe    = regexp.MustCompile(`(?i)\bSELECT\b`)
	fromRe      = regexp.MustCompile(`(?i)\bFROM\b`)
	identRe     = regexp.MustCompile(identPattern)
	qualifiedRe = regexp.MustCompile(`(` + identPattern + `)\.(` + identPattern + `)`)
	conditionRe = regexp.MustCompile(
		`(` + identPattern + `)\.(` + identPattern + `)\s*=\s*(` + identPattern + `)\.(` + identPattern + `)`,
	)
	sourceRe = regexp.MustCompile(
		`(?i)\b(?:FROM|JOIN)\s+` +
			`(?:read_(?:parquet|csv|csv_auto)\s*\(\s*'((?:[^']|'')*)'[^)]*\)` + // table function
			`|'((?:[^']|'')*)'` + // quoted path
			`|(` + identPattern + `(?:\.` + identPattern + `)*))` + // bare or quoted name
			`(?:\s+(?:AS\s+)?(` + identPattern + `))?`,
	)
)

var notAliases = map[string]bool{
	"on": true, "where": true, "join": true, "inner": true, "left": true, "right": true,
	"full": true, "outer": true, "cross": true, "natural": true, "group": true, "order": true,
	"limit": true, "having": true, "union": true, "using": true, "window": true, "qualify": true,
	"offset": true, "except": true, "intersect": true, "as": true, "positional": true, "asof": true,
	"anti": true, "semi": true, "lateral": true, "select": true,
}

func unquoteIdent(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}

// stem is the dataset name a file path refers to.
func stem(p string) string {
	base := path.Base(strings.ReplaceAll(p, `\`, "/"))
	if i := strings.Index(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}

type source struct {
	dataset string
	alias   string
}

// sources extracts FROM/JOIN sources from the raw query. Keywords inside literals or
// comments are ignored; subquery sources are skipped.
func sources(raw, code string) []source {
	var out []source
	for _, idx := range sourceRe.FindAllStringSubmatchIndex(raw, -1) {
		if code[idx[0]] != raw[idx[0]] {
			continue
		}
		group := func(n int) string {
			if idx[2*n] < 0 {
				return ""
			}
			return raw[idx[2*n]:idx[2*n+1]]
		}
		var name string
		switch {
		case group(1) != "":
			name = stem(strings.ReplaceAll(group(1), "''", "'"))
		case group(2) != "":
			name = stem(strings.ReplaceAll(group(2), "''", "'"))
		case group(3) != "":
			parts := identRe.FindAllString(group(3), -1)
			name = unquoteIdent(parts[len(parts)-1])
		default:
			continue
		}
		alias := unquoteIdent(group(4))
		if notAliases[strings.ToLower(alias)] {
			alias = ""
		}
		out = append(out, source{dataset: name, alias: alias})
	}
	return out
}

// resolver maps query-level table references to catalog datasets.
type resolver struct {
	aliases map[string]string
	plan    []string
}

func newResolver(schemas Schemas, plan QueryPlan, l lexed) *resolver {
	r := &resolver{aliases: map[string]string{}}
	for _, src := range sources(plan.Query, l.code) {
		name, ok := lookup(schemas, src.dataset)
		if !ok {
			continue
		}
		r.aliases[strings.ToLower(name)] = name
		if src.alias != "" {
			r.aliases[strings.ToLower(src.alias)] = name
		}
	}
	for _, name := range plan.Datasets {
		if name, ok := lookup(schemas, name); ok {
			r.plan = append(r.plan, name)
		}
	}
	return r
}

// strict resolves a reference through FROM/JOIN sources only.
func (r *resolver) strict(ref string) (string, bool) {
	name, ok := r.aliases[strings.ToLower(ref)]
	return name, ok
}

// loose falls back to a substring match against the plan datasets.
func (r *resolver) loose(ref string) (string, bool) {
	if name, ok := r.strict(ref); ok {
		return name, true
	}
	ref = strings.ToLower(ref)
	if ref == "" {
		return "", false
	}
	for _, name := range r.plan {
		lower := strings.ToLower(name)
		if strings.Contains(lower, ref) || strings.Contains(ref, lower) {
			return name, true
		}
	}
	return "", false
}

func lookup(schemas Schemas, name string) (string, bool) {
	if _, ok := schemas.Dataset(name); ok {
		return name, true
	}
	for _, candidate := range schemas.Datasets() {
		if strings.EqualFold(candidate, name) {
			return candidate, true
		}
	}
	return "", false
}
