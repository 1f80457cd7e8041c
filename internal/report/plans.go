package report

import (
	"fmt"
	"strings"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderPlans formats an explain-only run. Plans are omitted; the table shows
// which check queries the backend accepted.
func RenderPlans(plans []domain.PlanOutcome) string {
	var b strings.Builder
	rule := strings.Repeat("=", bannerWidth)

	fmt.Fprintln(&b, rule)
	b.WriteString("CHECK CATALOG EXPLAIN\n")
	fmt.Fprintln(&b, rule)

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Check", "Planned"})
	ok := 0
	for i, p := range plans {
		status := "yes"
		if p.OK() {
			ok++
		} else {
			status = "no"
		}
		t.AppendRow(table.Row{i + 1, p.Name, status})
	}
	if len(plans) > 0 {
		b.WriteString(t.Render())
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "EXPLAIN SUMMARY: %d/%d check queries planned\n", ok, len(plans))
	for _, p := range plans {
		if !p.OK() {
			fmt.Fprintf(&b, "  ✗ %s\n      %s\n", p.Name, p.Error)
		}
	}
	return b.String()
}
