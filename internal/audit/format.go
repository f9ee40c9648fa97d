package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/tracegate/internal/tracer"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders entries as a human-readable text timeline.
func FormatTimeline(traceID string, entries []Entry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("Trace: %s | No entries found.\n", traceID)
	}

	s := Summarize(entries)
	var b strings.Builder

	fmt.Fprintf(&b, "Trace: %s | %s - %s UTC\n", traceID, formatDate(s.FirstTimestamp), formatTimeOnly(s.LastTimestamp))
	b.WriteString(separator + "\n")

	for _, e := range entries {
		fmt.Fprintf(&b, "%-10s %-21s %-13s %-40s %s\n",
			formatTimeOnly(e.Timestamp),
			strings.ToUpper(e.DecisionResult()),
			truncate(e.Action.Tool, 12),
			truncate(e.Action.Resource, 40),
			e.Data.Classification,
		)
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(s))
	return b.String()
}

func formatDate(ts string) string {
	t, err := time.Parse(tracer.TimeFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(tracer.TimeFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s Summary) string {
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(s.AllowCount, "allow")
	add(s.RedactCount, "redact")
	add(s.RewriteCount, "rewrite")
	add(s.ApprovalCount, "approval")
	add(s.DenyCount, "deny")
	return fmt.Sprintf("Summary: %d events | %s\n", s.Total, strings.Join(parts, ", "))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
