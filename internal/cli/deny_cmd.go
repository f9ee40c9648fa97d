package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(denyCmd)
}

var denyCmd = &cobra.Command{
	Use:   "deny <key>",
	Short: "Explicitly deny an approval request",
	Long:  "Denies an approval request. The caller stays blocked for this key until the record is cleaned up.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeny,
}

func runDeny(cmd *cobra.Command, args []string) error {
	key := args[0]

	store, err := openApprovals()
	if err != nil {
		return err
	}
	if err := store.Deny(key); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Denied %q\n", key)
	return nil
}
