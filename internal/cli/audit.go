package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tracegate/internal/audit"
)

var (
	tailLines      int
	timelineFrom   string
	timelineTo     string
	timelineFormat string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditTimelineCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditTimelineCmd.Flags().StringVar(&timelineFrom, "from", "", "Only entries at or after this RFC 3339 time")
	auditTimelineCmd.Flags().StringVar(&timelineTo, "to", "", "Only entries at or before this RFC 3339 time")
	auditTimelineCmd.Flags().StringVarP(&timelineFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent audit log entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

var auditTimelineCmd = &cobra.Command{
	Use:   "timeline <path> <trace-id>",
	Short: "Show the decisions of one trace",
	Args:  cobra.ExactArgs(2),
	RunE:  runAuditTimeline,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	if result.ErrorLine > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("chain broken at line %d: %s", result.ErrorLine, result.Error)}
	}
	return &ExitError{Code: 1, Err: fmt.Errorf("verify failed: %s", result.Error)}
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	entries, err := audit.ReadEntries(args[0], audit.Filter{})
	if err != nil {
		return err
	}
	if tailLines >= 0 && len(entries) > tailLines {
		entries = entries[len(entries)-tailLines:]
	}
	for _, e := range entries {
		if err := writeJSON(cmd.OutOrStdout(), e); err != nil {
			return err
		}
	}
	return nil
}

func runAuditTimeline(cmd *cobra.Command, args []string) error {
	filter := audit.Filter{TraceID: args[1]}
	var err error
	if filter.From, err = parseTime(timelineFrom); err != nil {
		return err
	}
	if filter.To, err = parseTime(timelineTo); err != nil {
		return err
	}

	entries, err := audit.ReadEntries(args[0], filter)
	if err != nil {
		return err
	}

	if timelineFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"trace_id": args[1],
			"summary":  audit.Summarize(entries),
			"entries":  entries,
		})
	}
	fmt.Fprint(cmd.OutOrStdout(), audit.FormatTimeline(args[1], entries))
	return nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t, nil
}
