package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tracegate/internal/cmdguard"
	"github.com/ppiankov/tracegate/internal/enforce"
	"github.com/ppiankov/tracegate/internal/model"
)

var (
	execVerbose bool
	execDryRun  bool
)

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().BoolVarP(&execVerbose, "verbose", "v", false, "Print trace snapshot to stderr after execution")
	execCmd.Flags().BoolVar(&execDryRun, "dry-run", false, "Check policy without executing")
}

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command> [args...]",
	Short: "Execute a command through policy enforcement",
	Long: "Evaluates the command against denylist and policy before execution.\n" +
		"Blocked commands are not executed. Exit code 77 indicates policy block.",
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime("tracegate exec")
	if err != nil {
		return err
	}
	defer rt.Close()
	guard := cmdguard.New(rt.sess)

	name, cmdArgs := args[0], args[1:]

	if execDryRun {
		result := guard.Check(name, cmdArgs)
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
		return exitFor(result.Decision())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := guard.Run(ctx, name, cmdArgs, cmd.InOrStdin())
	if execVerbose {
		defer func() { _ = writeJSON(cmd.ErrOrStderr(), rt.sess.Snapshot()) }()
	}
	if err != nil {
		if ee, ok := enforce.AsEnforcementError(err); ok {
			reportBlocked(cmd, name, ee)
			return &ExitError{Code: ExitBlocked}
		}
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), result.Stdout)
	if result.Stderr != "" {
		fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
	}
	if result.ExitCode != 0 {
		return &ExitError{Code: result.ExitCode}
	}
	return nil
}

// reportBlocked prints the block to stderr, with the approve hint when one applies.
func reportBlocked(cmd *cobra.Command, resource string, ee *enforce.EnforcementError) {
	resp := map[string]any{
		"blocked":   true,
		"resource":  resource,
		"decision":  string(ee.Decision),
		"reason":    ee.Reason,
		"policy_id": ee.PolicyID,
	}
	if ee.ApprovalKey != "" {
		resp["approval_key"] = ee.ApprovalKey
	}
	_ = writeJSON(cmd.ErrOrStderr(), resp)

	if ee.Decision == model.RequireApproval && ee.ApprovalKey != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nTo approve, run: tracegate approve %s\n", ee.ApprovalKey)
	}
}
