package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pendingClear bool

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.Flags().BoolVar(&pendingClear, "clear", false, "Remove every approval record instead of listing")
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List approval requests",
	Long:  "Shows all approval records in the store with their status, resource, and timestamps.",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	store, err := openApprovals()
	if err != nil {
		return err
	}
	if pendingClear {
		if err := store.Cleanup(); err != nil {
			return fmt.Errorf("failed to clear approvals: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cleared approval store.")
		return nil
	}

	list, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list approvals: %w", err)
	}

	w := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(w, "No pending approvals.")
		return nil
	}

	fmt.Fprintf(w, "%-25s %-10s %-12s %-40s %s\n", "KEY", "STATUS", "TOOL", "RESOURCE", "CREATED")
	for _, a := range list {
		fmt.Fprintf(w, "%-25s %-10s %-12s %-40s %s\n",
			a.Key,
			a.Status,
			truncate(a.Tool, 12),
			truncate(a.Resource, 40),
			a.CreatedAt.Format("15:04:05"),
		)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
