package decision

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the decisions of every strategy as Markdown string.
func RenderMarkdown(results []*Result, generatedAt time.Time) string {
	var sb strings.Builder

	sb.WriteString("# Decision Gate Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", generatedAt.Format(time.RFC3339)))

	if len(results) == 0 {
		sb.WriteString("No strategy aggregates available.\n")
		return sb.String()
	}

	// Overview
	sb.WriteString("| Strategy | Decision |\n")
	sb.WriteString("|----------|----------|\n")
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("| %s | %s |\n", r.StrategyID, r.Decision))
	}
	sb.WriteString("\n")

	for _, r := range results {
		renderResult(&sb, r)
	}
	return sb.String()
}

func renderResult(sb *strings.Builder, r *Result) {
	sb.WriteString(fmt.Sprintf("## %s: %s\n\n", r.StrategyID, r.Decision))

	renderChecks(sb, "Data Sufficiency", "Check", r.Sufficiency, "PASS", "FAIL")
	renderChecks(sb, "GO Criteria", "Criterion", r.GOCriteria, "PASS", "FAIL")
	renderChecks(sb, "NO-GO Triggers", "Trigger", r.NOGOChecks, "NOT TRIGGERED", "TRIGGERED")

	// Summary
	switch r.Decision {
	case DecisionGO:
		sb.WriteString("All GO criteria passed and no NO-GO triggers fired.\n\n")
	case DecisionInsufficientData:
		sb.WriteString("Not enough backtest data to decide. Run more backtests.\n\n")
	default:
		sb.WriteString("Decision is NO-GO due to:\n")
		for _, c := range r.GOCriteria {
			if !c.Pass {
				sb.WriteString(fmt.Sprintf("- GO criterion failed: %s (actual: %s)\n", c.Name, c.Actual))
			}
		}
		for _, c := range r.NOGOChecks {
			if !c.Pass {
				sb.WriteString(fmt.Sprintf("- NO-GO trigger fired: %s (actual: %s)\n", c.Name, c.Actual))
			}
		}
		sb.WriteString("\n")
	}
}

func renderChecks(sb *strings.Builder, title, column string, checks []CriterionResult, pass, fail string) {
	sb.WriteString(fmt.Sprintf("### %s\n\n", title))
	sb.WriteString(fmt.Sprintf("| # | %s | Threshold | Actual | Status |\n", column))
	sb.WriteString("|---|-----------|-----------|--------|--------|\n")
	passed := 0
	for i, c := range checks {
		status := fail
		if c.Pass {
			status = pass
			passed++
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n", i+1, c.Name, c.Threshold, c.Actual, status))
	}
	sb.WriteString(fmt.Sprintf("\n%s: %d/%d passed\n\n", title, passed, len(checks)))
}
