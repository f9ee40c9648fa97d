package cli

import (
	"github.com/spf13/cobra"
)

var evalAction actionFlags

func init() {
	rootCmd.AddCommand(evalCmd)
	evalAction.register(evalCmd)
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate one action and print the policy decision",
	Long: "Evaluates an action against the denylist, purpose-bound rules and risk model.\n" +
		"Prints the decision as JSON. Exit code 77 for deny and require_approval.",
	Example: "  tracegate eval --purpose SOC_efficiency --tool hr_api --resource hr/salary_bands --meta sensitivity=high",
	RunE:    runEval,
}

func runEval(cmd *cobra.Command, args []string) error {
	action, state, err := evalAction.build(cmd.InOrStdin())
	if err != nil {
		return err
	}
	engine, _, err := loadEngine()
	if err != nil {
		return err
	}

	result := engine.Evaluate(action, state, flagPurpose)
	if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	return exitFor(result.Decision())
}
