package validator

import (
	"fmt"
	"strings"
)

var severityOrder = []Severity{SeverityBlocking, SeverityAdvisory, SeverityInformational}

// AuditReport renders findings grouped by severity.
func AuditReport(findings []Finding) string {
	var b strings.Builder
	b.WriteString("=== Validation Audit ===\n")

	blockingCount := 0
	for _, f := range findings {
		if f.Severity == SeverityBlocking {
			blockingCount++
		}
	}
	if blockingCount == 0 {
		b.WriteString("Verdict: PASSED\n")
	} else {
		fmt.Fprintf(&b, "Verdict: BLOCKED (%d blocking)\n", blockingCount)
	}
	if len(findings) == 0 {
		b.WriteString("No findings.\n")
		return b.String()
	}

	for _, sev := range severityOrder {
		var group []Finding
		for _, f := range findings {
			if f.Severity == sev {
				group = append(group, f)
			}
		}
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s (%d):\n", strings.ToUpper(string(sev)), len(group))
		for _, f := range group {
			fmt.Fprintf(&b, "  - [%s] %s\n", f.Rule, f.Message)
			if f.Suggestion != "" {
				fmt.Fprintf(&b, "    suggestion: %s\n", f.Suggestion)
			}
		}
	}
	return b.String()
}
