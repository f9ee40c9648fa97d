package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Policy diff: %s -> %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s -> %s\n", r.OldPath, r.NewPath)

	if len(r.RuleChanges) > 0 {
		b.WriteString("\n  Rules:\n")
		for _, rc := range r.RuleChanges {
			mark := "~"
			switch rc.Type {
			case "added":
				mark = "+"
			case "removed":
				mark = "-"
			case "moved":
				mark = "^"
			}
			fmt.Fprintf(&b, "    %s %s", mark, rc.Rule)
			if rc.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", rc.Comment)
			}
			b.WriteString("\n")
		}
	}

	if len(r.PatternChanges) > 0 {
		b.WriteString("\n  Denylist:\n")
		for _, pc := range r.PatternChanges {
			mark := "+"
			if pc.Type == "removed" {
				mark = "-"
			}
			fmt.Fprintf(&b, "    %s %-8s %s\n", mark, pc.Category, pc.Pattern)
		}
	}

	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}
