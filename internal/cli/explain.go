package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tracegate/internal/policy"
)

var (
	explainAction actionFlags
	explainFormat string
)

func init() {
	rootCmd.AddCommand(explainCmd)
	explainAction.register(explainCmd)
	explainCmd.Flags().StringVarP(&explainFormat, "format", "f", "text", "Output format (text|json)")
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Show how a decision was reached",
	Long: "Walks the evaluation steps for one action: denylist, purpose-bound rules,\n" +
		"then the risk components. Exit code 77 for deny and require_approval.",
	RunE: runExplain,
}

func runExplain(cmd *cobra.Command, args []string) error {
	action, state, err := explainAction.build(cmd.InOrStdin())
	if err != nil {
		return err
	}
	engine, _, err := loadEngine()
	if err != nil {
		return err
	}

	ex := engine.Explain(action, state, flagPurpose)
	if explainFormat == "json" {
		if err := writeJSON(cmd.OutOrStdout(), ex); err != nil {
			return err
		}
	} else {
		printExplanation(cmd.OutOrStdout(), ex)
	}
	return exitFor(ex.Result.Decision())
}

func printExplanation(w io.Writer, ex policy.Explanation) {
	fmt.Fprintf(w, "Purpose:   %s\n", ex.Purpose)
	fmt.Fprintf(w, "Source:    %s (new: %t)\n", ex.Source, ex.NewSource)
	fmt.Fprintf(w, "Meta:      sensitivity=%s rows=%d bytes=%d egress=%s tags=[%s]\n",
		ex.Meta.Sensitivity, ex.Meta.Rows, ex.Meta.Bytes, ex.Meta.Egress, strings.Join(ex.Meta.Tags, ","))
	fmt.Fprintln(w)

	if ex.Denylist != nil {
		fmt.Fprintf(w, "1. Denylist   MATCH %s pattern %q\n", ex.Denylist.Category, ex.Denylist.Pattern)
	} else {
		fmt.Fprintln(w, "1. Denylist   no match")
	}

	switch {
	case ex.MatchedRule != nil:
		fmt.Fprintf(w, "2. Rules      MATCH purpose=%s pattern=%q -> %s\n",
			ex.MatchedRule.Purpose, ex.MatchedRule.ResourcePattern, ex.MatchedRule.Decision)
	case ex.Denylist != nil:
		fmt.Fprintln(w, "2. Rules      skipped")
	default:
		fmt.Fprintln(w, "2. Rules      no match")
	}

	if ex.Risk != nil {
		fmt.Fprintf(w, "3. Risk       %d = sensitivity %d + volume %d + egress %d + new source %d (allow <= %d, approval >= %d)\n",
			ex.Risk.Total, ex.Risk.Sensitivity, ex.Risk.Volume, ex.Risk.Egress, ex.Risk.NewSource,
			policy.AllowMax, policy.ApprovalMin)
	} else {
		fmt.Fprintln(w, "3. Risk       skipped")
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Decision:  %s\n", ex.Result.Decision())
	fmt.Fprintf(w, "Policy:    %s\n", ex.Result.PolicyID)
	fmt.Fprintf(w, "Reason:    %s\n", ex.Result.Reason)
	if key := ex.Result.ApprovalKey(); key != "" {
		fmt.Fprintf(w, "Approval:  tracegate approve %s\n", key)
	}
}
